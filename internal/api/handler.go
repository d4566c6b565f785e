// Package api exposes the content catalog over HTTP.
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// maxUploadBytes caps multipart upload memory buffering.
const maxUploadBytes = 64 << 20

// Handler serves the /content routes.
type Handler struct {
	service catalog.Service
	logger  *slog.Logger
}

// NewHandler creates a content handler.
func NewHandler(service catalog.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the routes for content.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/types", h.ListTypes)
	r.Get("/tags", h.AllTags)

	r.Route("/{contentType}", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Post("/upload-url", h.UploadURL)
		r.Get("/list", h.List)
		r.Post("/search", h.Search)
		r.Get("/tags", h.TypeTags)

		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/restore", h.Restore)
		r.Put("/{id}/tags", h.UpdateTags)
	})

	return r
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *catalog.ValidationError
	var cerr *catalog.ConfigurationError
	var qerr *catalog.UnsupportedQueryError
	var serr *catalog.StorageError

	switch {
	case errors.As(err, &verr):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &cerr):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: cerr.Error()})
	case errors.Is(err, catalog.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "content not found"})
	case errors.As(err, &qerr):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ErrorResponse{Error: qerr.Error()})
	case errors.As(err, &serr):
		h.logger.Error("storage operation failed", "backend", serr.Backend, "op", serr.Op, "key", serr.Key, "error", serr.Err)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, ErrorResponse{Error: "storage backend error"})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal error"})
	}
}

// ListTypes returns the registered content type definitions.
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.ContentTypes())
}

// Upload accepts a multipart form with a "file" part, an optional "metadata"
// part (JSON object), and optional "creation_date" / "path_date" parts
// (RFC 3339).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.renderError(w, r, &catalog.ValidationError{Reason: "invalid multipart form: " + err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderError(w, r, &catalog.ValidationError{Field: "file", Reason: "file part is required"})
		return
	}
	defer file.Close()

	req := catalog.UploadRequest{
		ContentType: contentType,
		Filename:    header.Filename,
		Reader:      file,
	}

	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			h.renderError(w, r, &catalog.ValidationError{Field: "metadata", Reason: "metadata must be a JSON object"})
			return
		}
	}

	if req.CreatedAt, err = parseTimeField(r.FormValue("creation_date"), "creation_date"); err != nil {
		h.renderError(w, r, err)
		return
	}
	if req.PathDate, err = parseTimeField(r.FormValue("path_date"), "path_date"); err != nil {
		h.renderError(w, r, err)
		return
	}
	if r.FormValue("public") == "true" {
		req.Access = catalog.AccessPublic
	}

	doc, err := h.service.Upload(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.logger.Info("content uploaded", "content_type", contentType, "id", doc.ID, "blob_path", doc.BlobPath)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// UploadURLRequest is the request body for a presigned upload URL.
type UploadURLRequest struct {
	Filename       string `json:"filename"`
	PathDate       string `json:"path_date,omitempty"`
	ExpirySeconds  int    `json:"expiry_seconds,omitempty"`
	AllowOverwrite bool   `json:"allow_overwrite,omitempty"`
}

// UploadURLResponse carries the presigned URL.
type UploadURLResponse struct {
	URL string `json:"url"`
}

// UploadURL returns a presigned PUT URL for direct client upload. The caller
// is responsible for registering metadata afterwards.
func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	var body UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.renderError(w, r, &catalog.ValidationError{Reason: "invalid request body"})
		return
	}

	req := catalog.UploadURLRequest{
		ContentType:    chi.URLParam(r, "contentType"),
		Filename:       body.Filename,
		Expiry:         time.Duration(body.ExpirySeconds) * time.Second,
		AllowOverwrite: body.AllowOverwrite,
	}
	var err error
	if req.PathDate, err = parseTimeField(body.PathDate, "path_date"); err != nil {
		h.renderError(w, r, err)
		return
	}

	url, err := h.service.UploadURL(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, UploadURLResponse{URL: url})
}

// Get streams the blob bytes with the document's MIME type. With
// ?metadata_only=true it returns the metadata document instead.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("metadata_only") == "true" {
		doc, err := h.service.Get(r.Context(), contentType, id)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		render.JSON(w, r, doc)
		return
	}

	rc, doc, err := h.service.Download(r.Context(), contentType, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("failed to stream content", "id", id, "error", err)
	}
}

// UpdateRequest is the request body for PATCH: a metadata merge, a base64
// content replacement, or both.
type UpdateRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// Update merges metadata fields and optionally replaces the blob content.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	var body UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.renderError(w, r, &catalog.ValidationError{Reason: "invalid request body"})
		return
	}
	if len(body.Metadata) == 0 && body.Content == "" {
		h.renderError(w, r, &catalog.ValidationError{Reason: "nothing to update"})
		return
	}

	var doc *catalog.Document
	var err error

	if body.Content != "" {
		data, decodeErr := base64.StdEncoding.DecodeString(body.Content)
		if decodeErr != nil {
			h.renderError(w, r, &catalog.ValidationError{Field: "content", Reason: "content must be base64-encoded"})
			return
		}
		doc, err = h.service.UpdateContent(r.Context(), contentType, id, bytes.NewReader(data))
		if err != nil {
			h.renderError(w, r, err)
			return
		}
	}

	if len(body.Metadata) > 0 {
		doc, err = h.service.UpdateMetadata(r.Context(), contentType, id, body.Metadata)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
	}

	render.JSON(w, r, doc)
}

// Delete soft-deletes by default; ?hard_delete=true removes blob and
// document permanently.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")
	hard := r.URL.Query().Get("hard_delete") == "true"

	if err := h.service.Delete(r.Context(), contentType, id, hard); err != nil {
		h.renderError(w, r, err)
		return
	}

	h.logger.Info("content deleted", "content_type", contentType, "id", id, "hard", hard)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]bool{"deleted": true})
}

// Restore clears a soft delete.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Restore(r.Context(), chi.URLParam(r, "contentType"), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, doc)
}

// List runs a paginated listing with tag, date-range and visibility filters
// from query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOptions{
		DateField: r.URL.Query().Get("date_field"),
		SortBy:    r.URL.Query().Get("sort_by"),
	}

	if tags := r.URL.Query().Get("tags"); tags != "" {
		opts.Tags = strings.Split(tags, ",")
	}
	if v := r.URL.Query().Get("visibility"); v != "" {
		opts.Visibility = catalog.DeletedVisibility(v)
	}
	if v := r.URL.Query().Get("sort_order"); v != "" {
		opts.SortOrder = catalog.SortDirection(v)
	}

	var err error
	if opts.From, err = parseTimeField(r.URL.Query().Get("from"), "from"); err != nil {
		h.renderError(w, r, err)
		return
	}
	if opts.To, err = parseTimeField(r.URL.Query().Get("to"), "to"); err != nil {
		h.renderError(w, r, err)
		return
	}
	if opts.Page, err = parseIntField(r.URL.Query().Get("page"), "page"); err != nil {
		h.renderError(w, r, err)
		return
	}
	if opts.PerPage, err = parseIntField(r.URL.Query().Get("per_page"), "per_page"); err != nil {
		h.renderError(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), chi.URLParam(r, "contentType"), opts)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

// Search runs a field/operator/value search from a JSON body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var criteria catalog.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		h.renderError(w, r, &catalog.ValidationError{Reason: "invalid request body"})
		return
	}

	page, err := h.service.Search(r.Context(), chi.URLParam(r, "contentType"), criteria)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

// TagsResponse is the response body for the tag listing endpoints.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

// TypeTags returns the distinct tags in use for one content type.
func (h *Handler) TypeTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.Tags(r.Context(), chi.URLParam(r, "contentType"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	render.JSON(w, r, TagsResponse{Tags: tags})
}

// AllTags returns the distinct tags across every content type.
func (h *Handler) AllTags(w http.ResponseWriter, r *http.Request) {
	seen := map[string]bool{}
	var tags []string
	for _, def := range h.service.ContentTypes() {
		typeTags, err := h.service.Tags(r.Context(), def.Name)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		for _, tag := range typeTags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	if tags == nil {
		tags = []string{}
	}
	render.JSON(w, r, TagsResponse{Tags: tags})
}

// UpdateTagsRequest is the request body for the tag mutation endpoint.
type UpdateTagsRequest struct {
	Tags      []string             `json:"tags"`
	Operation catalog.TagOperation `json:"operation"`
}

// UpdateTags sets, adds or removes tags on a document.
func (h *Handler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	var body UpdateTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.renderError(w, r, &catalog.ValidationError{Reason: "invalid request body"})
		return
	}
	if body.Operation == "" {
		body.Operation = catalog.TagSet
	}

	doc, err := h.service.UpdateTags(r.Context(), chi.URLParam(r, "contentType"), chi.URLParam(r, "id"), body.Tags, body.Operation)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, doc)
}

func parseTimeField(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Date-only values are accepted for path and range fields.
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, &catalog.ValidationError{Field: field, Reason: "must be RFC 3339 or YYYY-MM-DD"}
		}
	}
	t = t.UTC()
	return &t, nil
}

func parseIntField(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &catalog.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return n, nil
}
