package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformkit/content-catalog/pkg/catalog"
	"github.com/platformkit/content-catalog/pkg/catalog/store/memory"
)

const collection = "platform-documents"

func seed(t *testing.T, store *memory.Store, n int) []*catalog.Document {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := make([]*catalog.Document, 0, n)
	for i := 0; i < n; i++ {
		doc := &catalog.Document{
			ID:        fmt.Sprintf("doc-%02d", i),
			BlobPath:  fmt.Sprintf("2024/01/01/documents/doc-%02d.pdf", i),
			Bucket:    catalog.DefaultBucket,
			MimeType:  "application/pdf",
			Tags:      []string{"common", fmt.Sprintf("tag-%d", i%2)},
			Fields:    map[string]any{"title": fmt.Sprintf("Title %02d", i)},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Create(context.Background(), collection, doc))
		docs = append(docs, doc)
	}
	return docs
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	docs := seed(t, store, 3)

	t.Run("get", func(t *testing.T) {
		got, err := store.Get(ctx, collection, "doc-01")
		require.NoError(t, err)
		assert.Equal(t, "Title 01", got.Fields["title"])
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get(ctx, collection, "nope")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("create duplicate", func(t *testing.T) {
		err := store.Create(ctx, collection, docs[0])
		assert.Error(t, err)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		got, err := store.Get(ctx, collection, "doc-01")
		require.NoError(t, err)
		got.Fields["title"] = "mutated"

		again, err := store.Get(ctx, collection, "doc-01")
		require.NoError(t, err)
		assert.Equal(t, "Title 01", again.Fields["title"])
	})

	t.Run("replace", func(t *testing.T) {
		doc := docs[2].Clone()
		doc.Fields["title"] = "Replaced"
		require.NoError(t, store.Replace(ctx, collection, doc))

		got, err := store.Get(ctx, collection, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Replaced", got.Fields["title"])
	})

	t.Run("replace unknown", func(t *testing.T) {
		err := store.Replace(ctx, collection, &catalog.Document{ID: "nope"})
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, collection, "doc-00"))
		_, err := store.Get(ctx, collection, "doc-00")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, collection, "doc-00"), catalog.ErrNotFound)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		_, err := store.Get(ctx, "platform-images", "doc-01")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	docs := seed(t, store, 10)

	// Soft-delete two of them.
	for _, i := range []int{3, 7} {
		doc := docs[i].Clone()
		at := doc.CreatedAt.Add(time.Hour)
		doc.DeletedAt = &at
		require.NoError(t, store.Replace(ctx, collection, doc))
	}

	t.Run("visibility modes", func(t *testing.T) {
		active, err := store.Query(ctx, collection, catalog.Query{Visibility: catalog.VisibilityActive})
		require.NoError(t, err)
		assert.Equal(t, 8, active.Total)

		all, err := store.Query(ctx, collection, catalog.Query{Visibility: catalog.VisibilityAll})
		require.NoError(t, err)
		assert.Equal(t, 10, all.Total)

		deleted, err := store.Query(ctx, collection, catalog.Query{Visibility: catalog.VisibilityDeletedOnly})
		require.NoError(t, err)
		assert.Equal(t, 2, deleted.Total)
	})

	t.Run("default sort newest first", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{Visibility: catalog.VisibilityAll})
		require.NoError(t, err)
		require.NotEmpty(t, page.Items)
		assert.Equal(t, "doc-09", page.Items[0].ID)
	})

	t.Run("ascending sort", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Sort:       []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortAsc}},
		})
		require.NoError(t, err)
		assert.Equal(t, "doc-00", page.Items[0].ID)
	})

	t.Run("tag containment", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityActive,
			Conditions: []catalog.Condition{{Field: catalog.FieldTags, Op: catalog.OpContains, Value: "tag-1"}},
			Sort:       []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortDesc}},
		})
		require.NoError(t, err)
		// Odd ids carry tag-1; two of those are deleted (3 and 7).
		assert.Equal(t, 3, page.Total)
	})

	t.Run("any-of tag match", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Conditions: []catalog.Condition{{Field: catalog.FieldTags, Op: catalog.OpContains, Value: []string{"tag-0", "tag-1"}}},
			Sort:       []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortDesc}},
		})
		require.NoError(t, err)
		assert.Equal(t, 10, page.Total)
	})

	t.Run("date range", func(t *testing.T) {
		from := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Conditions: []catalog.Condition{{Field: catalog.FieldCreatedAt, Op: catalog.OpGreaterOrEqual, Value: from}},
			Sort:       []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortAsc}},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, "doc-05", page.Items[0].ID)
	})

	t.Run("metadata field sort", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityActive,
			Sort: []catalog.Sort{
				{Field: "title", Direction: catalog.SortDesc},
				{Field: catalog.FieldCreatedAt, Direction: catalog.SortAsc},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Title 09", page.Items[0].Fields["title"])
	})

	t.Run("uncovered shape fails", func(t *testing.T) {
		_, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityActive,
			Conditions: []catalog.Condition{{Field: "author", Op: catalog.OpEqual, Value: "me"}},
		})
		var qerr *catalog.UnsupportedQueryError
		require.ErrorAs(t, err, &qerr)
		assert.Equal(t, collection, qerr.Collection)
	})

	t.Run("pagination math", func(t *testing.T) {
		page, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Page:       2,
			PerPage:    4,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, page.Total)
		assert.Equal(t, 3, page.PageCount)
		assert.Len(t, page.Items, 4)

		last, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Page:       3,
			PerPage:    4,
		})
		require.NoError(t, err)
		assert.Len(t, last.Items, 2)

		past, err := store.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Page:       9,
			PerPage:    4,
		})
		require.NoError(t, err)
		assert.Empty(t, past.Items)
		assert.Equal(t, 10, past.Total)
	})
}
