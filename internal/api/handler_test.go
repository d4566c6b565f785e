package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformkit/content-catalog/internal/api"
	"github.com/platformkit/content-catalog/pkg/catalog"
	storememory "github.com/platformkit/content-catalog/pkg/catalog/store/memory"
	memorystorage "github.com/platformkit/content-catalog/pkg/catalog/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, catalog.Service) {
	t.Helper()

	svc, err := catalog.New(
		catalog.WithDocumentStore(storememory.New()),
		catalog.WithBlobStore(catalog.DefaultBucket, memorystorage.New()),
	)
	require.NoError(t, err)

	handler := api.NewHandler(svc, nil)
	mux := http.NewServeMux()
	mux.Handle("/content/", http.StripPrefix("/content", handler.Routes()))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, svc
}

func multipartUpload(t *testing.T, url, filename, metadata string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 content"))
	require.NoError(t, err)

	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(url, w.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeDoc(t *testing.T, resp *http.Response) catalog.Document {
	t.Helper()
	defer resp.Body.Close()
	var doc catalog.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return doc
}

const validMetadata = `{"title":"Report","description":"Numbers","tags":["report"]}`

func TestListTypes(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/content/types")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var defs []catalog.TypeDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	require.Len(t, defs, 3)
	assert.Equal(t, "blog", defs[0].Name)
}

func TestUploadEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("created", func(t *testing.T) {
		resp := multipartUpload(t, server.URL+"/content/documents", "report.pdf", validMetadata)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		doc := decodeDoc(t, resp)
		assert.NotEmpty(t, doc.ID)
		assert.Contains(t, doc.BlobPath, "/documents/report.pdf")
		assert.Equal(t, "application/pdf", doc.MimeType)
	})

	t.Run("missing required metadata is 400", func(t *testing.T) {
		resp := multipartUpload(t, server.URL+"/content/documents", "other.pdf", `{"tags":["x"]}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body api.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "title", body.Field)
	})

	t.Run("bad extension is 400", func(t *testing.T) {
		resp := multipartUpload(t, server.URL+"/content/documents", "report.docx", validMetadata)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown type is 400", func(t *testing.T) {
		resp := multipartUpload(t, server.URL+"/content/videos", "a.mp4", validMetadata)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing file part is 400", func(t *testing.T) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("metadata", validMetadata))
		require.NoError(t, w.Close())

		resp, err := http.Post(server.URL+"/content/documents", w.FormDataContentType(), &body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	doc := decodeDoc(t, multipartUpload(t, server.URL+"/content/documents", "report.pdf", validMetadata))

	t.Run("streams blob", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/content/documents/%s", server.URL, doc.ID))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 content", string(data))
	})

	t.Run("metadata only", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/content/documents/%s?metadata_only=true", server.URL, doc.ID))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		got := decodeDoc(t, resp)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, "Report", got.Fields["title"])
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/nope?metadata_only=true")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdateEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	doc := decodeDoc(t, multipartUpload(t, server.URL+"/content/documents", "report.pdf", validMetadata))
	client := &http.Client{}

	patch := func(t *testing.T, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPatch,
			fmt.Sprintf("%s/content/documents/%s", server.URL, doc.ID), strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("merges metadata", func(t *testing.T) {
		resp := patch(t, `{"metadata":{"author":"pat"}}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeDoc(t, resp)
		assert.Equal(t, "pat", got.Fields["author"])
		assert.Equal(t, "Report", got.Fields["title"])
	})

	t.Run("protected field is 400", func(t *testing.T) {
		resp := patch(t, `{"metadata":{"blob_path":"evil"}}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("replaces content", func(t *testing.T) {
		resp := patch(t, `{"content":"bmV3IGJ5dGVz"}`) // "new bytes"
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeDoc(t, resp)
		assert.Equal(t, int64(len("new bytes")), got.SizeBytes)

		down, err := http.Get(fmt.Sprintf("%s/content/documents/%s", server.URL, doc.ID))
		require.NoError(t, err)
		defer down.Body.Close()
		data, err := io.ReadAll(down.Body)
		require.NoError(t, err)
		assert.Equal(t, "new bytes", string(data))
	})

	t.Run("empty body is 400", func(t *testing.T) {
		resp := patch(t, `{}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteAndRestoreEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	doc := decodeDoc(t, multipartUpload(t, server.URL+"/content/documents", "report.pdf", validMetadata))
	client := &http.Client{}

	del := func(t *testing.T, hard bool) *http.Response {
		t.Helper()
		url := fmt.Sprintf("%s/content/documents/%s", server.URL, doc.ID)
		if hard {
			url += "?hard_delete=true"
		}
		req, err := http.NewRequest(http.MethodDelete, url, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("soft delete hides from listing", func(t *testing.T) {
		resp := del(t, false)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		list, err := http.Get(server.URL + "/content/documents/list")
		require.NoError(t, err)
		defer list.Body.Close()
		var page catalog.Page
		require.NoError(t, json.NewDecoder(list.Body).Decode(&page))
		assert.Zero(t, page.Total)
	})

	t.Run("restore brings it back", func(t *testing.T) {
		resp, err := http.Post(fmt.Sprintf("%s/content/documents/%s/restore", server.URL, doc.ID), "", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeDoc(t, resp)
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("hard delete is permanent", func(t *testing.T) {
		resp := del(t, true)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		get, err := http.Get(fmt.Sprintf("%s/content/documents/%s?metadata_only=true", server.URL, doc.ID))
		require.NoError(t, err)
		defer get.Body.Close()
		assert.Equal(t, http.StatusNotFound, get.StatusCode)
	})
}

func TestListEndpoint(t *testing.T) {
	server, svc := newTestServer(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Upload(context.Background(), catalog.UploadRequest{
			ContentType: "documents",
			Filename:    fmt.Sprintf("doc-%d.pdf", i),
			Reader:      strings.NewReader("x"),
			Metadata: map[string]any{
				"title":       "T",
				"description": "D",
				"tags":        []string{fmt.Sprintf("tag-%d", i)},
			},
		})
		require.NoError(t, err)
	}

	t.Run("lists all", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/list")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var page catalog.Page
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		assert.Equal(t, 3, page.Total)
	})

	t.Run("filters by tag", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/list?tags=tag-1")
		require.NoError(t, err)
		defer resp.Body.Close()

		var page catalog.Page
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		assert.Equal(t, 1, page.Total)
	})

	t.Run("oversized per_page is 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/list?per_page=500")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad date is 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/list?from=tomorrow")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSearchEndpoint(t *testing.T) {
	server, svc := newTestServer(t)
	_, err := svc.Upload(context.Background(), catalog.UploadRequest{
		ContentType: "documents",
		Filename:    "report.pdf",
		Reader:      strings.NewReader("x"),
		Metadata:    map[string]any{"title": "T", "description": "D", "tags": []string{"go"}},
	})
	require.NoError(t, err)

	t.Run("covered search", func(t *testing.T) {
		body := `{"conditions":[{"field":"tags","op":"array-contains","value":"go"}]}`
		resp, err := http.Post(server.URL+"/content/documents/search", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var page catalog.Page
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		assert.Equal(t, 1, page.Total)
	})

	t.Run("uncovered shape is 422", func(t *testing.T) {
		body := `{"conditions":[{"field":"author","op":"==","value":"me"}]}`
		resp, err := http.Post(server.URL+"/content/documents/search", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestTagEndpoints(t *testing.T) {
	server, svc := newTestServer(t)
	doc, err := svc.Upload(context.Background(), catalog.UploadRequest{
		ContentType: "documents",
		Filename:    "report.pdf",
		Reader:      strings.NewReader("x"),
		Metadata:    map[string]any{"title": "T", "description": "D", "tags": []string{"go", "infra"}},
	})
	require.NoError(t, err)

	t.Run("type tags", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/documents/tags")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body api.TagsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"go", "infra"}, body.Tags)
	})

	t.Run("all tags", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/content/tags")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body api.TagsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"go", "infra"}, body.Tags)
	})

	t.Run("update tags", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut,
			fmt.Sprintf("%s/content/documents/%s/tags", server.URL, doc.ID),
			strings.NewReader(`{"tags":["extra"],"operation":"add"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeDoc(t, resp)
		assert.Equal(t, []string{"extra", "go", "infra"}, got.Tags)
	})
}
