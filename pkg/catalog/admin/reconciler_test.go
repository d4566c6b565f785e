package admin_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformkit/content-catalog/pkg/catalog"
	"github.com/platformkit/content-catalog/pkg/catalog/admin"
	storememory "github.com/platformkit/content-catalog/pkg/catalog/store/memory"
	memorystorage "github.com/platformkit/content-catalog/pkg/catalog/storage/memory"
	"github.com/platformkit/content-catalog/pkg/catalog/storagepath"
)

type fixture struct {
	svc        catalog.Service
	docs       catalog.DocumentStore
	blobs      *memorystorage.Backend
	reconciler *admin.Reconciler
}

func setup(t *testing.T) *fixture {
	t.Helper()

	docs := storememory.New()
	blobs := memorystorage.New()
	registry := catalog.DefaultRegistry()

	svc, err := catalog.New(
		catalog.WithRegistry(registry),
		catalog.WithDocumentStore(docs),
		catalog.WithBlobStore(catalog.DefaultBucket, blobs),
	)
	require.NoError(t, err)

	reconciler := admin.New(registry, map[string]catalog.BlobStore{catalog.DefaultBucket: blobs}, docs, nil)
	return &fixture{svc: svc, docs: docs, blobs: blobs, reconciler: reconciler}
}

func (f *fixture) upload(t *testing.T, filename string) *catalog.Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), catalog.UploadRequest{
		ContentType: "documents",
		Filename:    filename,
		Reader:      strings.NewReader("content"),
		Metadata: map[string]any{
			"title":       "T",
			"description": "D",
			"tags":        []string{"x"},
		},
	})
	require.NoError(t, err)
	return doc
}

func TestSweepClean(t *testing.T) {
	f := setup(t)
	f.upload(t, "a.pdf")
	f.upload(t, "b.pdf")

	report, err := f.reconciler.Sweep(context.Background(), "documents", admin.SweepOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.BlobCount)
	assert.Equal(t, 2, report.DocCount)
	assert.Empty(t, report.OrphanBlobs)
	assert.Empty(t, report.MissingBlobs)
	assert.Empty(t, report.DeletedBlobs)
}

func TestSweepOrphans(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.upload(t, "kept.pdf")

	// A blob with no document, dated well outside the grace window.
	orphanKey := "2020/06/01/documents/orphan.pdf"
	require.NoError(t, f.blobs.Upload(ctx, strings.NewReader("x"), catalog.UploadParams{Key: orphanKey}))

	// A recent unreferenced blob stays out of the report.
	recentKey, err := storagepath.Build("documents", "recent.pdf", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.blobs.Upload(ctx, strings.NewReader("x"), catalog.UploadParams{Key: recentKey}))

	t.Run("dry run reports without deleting", func(t *testing.T) {
		report, err := f.reconciler.Sweep(ctx, "documents", admin.SweepOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{orphanKey}, report.OrphanBlobs)
		assert.Empty(t, report.DeletedBlobs)

		exists, err := f.blobs.Exists(ctx, orphanKey)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("delete orphans removes them", func(t *testing.T) {
		report, err := f.reconciler.Sweep(ctx, "documents", admin.SweepOptions{DeleteOrphans: true})
		require.NoError(t, err)
		assert.Equal(t, []string{orphanKey}, report.DeletedBlobs)

		exists, err := f.blobs.Exists(ctx, orphanKey)
		require.NoError(t, err)
		assert.False(t, exists)

		// The recent blob was spared.
		exists, err = f.blobs.Exists(ctx, recentKey)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestSweepMissingBlobs(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	doc := f.upload(t, "gone.pdf")

	require.NoError(t, f.blobs.Delete(ctx, doc.BlobPath))

	report, err := f.reconciler.Sweep(ctx, "documents", admin.SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{doc.BlobPath}, report.MissingBlobs)
}

func TestSweepSoftDeletedStillReferenced(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	doc := f.upload(t, "soft.pdf")
	require.NoError(t, f.svc.Delete(ctx, "documents", doc.ID, false))

	report, err := f.reconciler.Sweep(ctx, "documents", admin.SweepOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.OrphanBlobs)
	assert.Equal(t, 1, report.DocCount)
}

func TestSweepIgnoresOtherTypes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// An images blob in the shared bucket is not an orphan of documents.
	require.NoError(t, f.blobs.Upload(ctx, strings.NewReader("x"), catalog.UploadParams{
		Key: "2020/06/01/images/pic.jpg",
	}))

	report, err := f.reconciler.Sweep(ctx, "documents", admin.SweepOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.OrphanBlobs)
	assert.Zero(t, report.BlobCount)
}

func TestSweepAll(t *testing.T) {
	f := setup(t)
	f.upload(t, "a.pdf")

	reports, err := f.reconciler.SweepAll(context.Background(), admin.SweepOptions{})
	require.NoError(t, err)
	assert.Len(t, reports, 3)
}

func TestSweepUnknownType(t *testing.T) {
	f := setup(t)
	_, err := f.reconciler.Sweep(context.Background(), "videos", admin.SweepOptions{})
	var cerr *catalog.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}
