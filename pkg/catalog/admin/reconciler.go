// Package admin holds offline maintenance tooling. The reconciler compares
// the object store against the document index and reports (or repairs) the
// two failure modes a crash between the paired writes can leave behind:
// orphaned blobs with no document, and documents whose blob is missing.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/platformkit/content-catalog/pkg/catalog"
	"github.com/platformkit/content-catalog/pkg/catalog/storagepath"
)

// SweepOptions controls one reconciliation pass.
type SweepOptions struct {
	// DeleteOrphans removes blobs with no referencing document. Off by
	// default; a dry run only reports.
	DeleteOrphans bool
	// GracePeriod excludes blobs younger than this from orphan handling,
	// so sweeps do not race in-flight uploads. Judged by the blob key's
	// date folder. Defaults to 24h.
	GracePeriod time.Duration
}

// Report summarizes one reconciliation pass over a content type.
type Report struct {
	ContentType string   `json:"content_type"`
	BlobCount   int      `json:"blob_count"`
	DocCount    int      `json:"doc_count"`
	// OrphanBlobs exist in the object store but no document references them.
	OrphanBlobs []string `json:"orphan_blobs,omitempty"`
	// MissingBlobs are blob paths referenced by documents but absent from
	// the object store.
	MissingBlobs []string `json:"missing_blobs,omitempty"`
	// DeletedBlobs were removed because DeleteOrphans was set.
	DeletedBlobs []string `json:"deleted_blobs,omitempty"`
}

// Reconciler sweeps one service's content types.
type Reconciler struct {
	registry *catalog.Registry
	stores   map[string]catalog.BlobStore
	docs     catalog.DocumentStore
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a reconciler over the given registry, blob stores (keyed by
// bucket name) and document store.
func New(registry *catalog.Registry, stores map[string]catalog.BlobStore, docs catalog.DocumentStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		registry: registry,
		stores:   stores,
		docs:     docs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep reconciles one content type and returns what it found. Soft-deleted
// documents count as referencing their blob; only hard-deleted content frees
// the blob path.
func (r *Reconciler) Sweep(ctx context.Context, contentType string, opts SweepOptions) (*Report, error) {
	def, err := r.registry.Definition(contentType)
	if err != nil {
		return nil, err
	}
	store, ok := r.stores[def.Bucket]
	if !ok {
		return nil, &catalog.ConfigurationError{ContentType: contentType, Reason: "no blob store registered for bucket " + def.Bucket}
	}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 24 * time.Hour
	}

	referenced, err := r.referencedPaths(ctx, def.Collection)
	if err != nil {
		return nil, err
	}

	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, &catalog.StorageError{Backend: def.Bucket, Op: "list", Err: err}
	}

	report := &Report{ContentType: contentType, DocCount: len(referenced)}
	present := map[string]bool{}
	cutoff := r.now().Add(-opts.GracePeriod)

	for _, key := range keys {
		// The bucket may be shared across content types; only judge keys
		// that belong to this type's date layout.
		ct, ok := storagepath.ContentTypeOf(key)
		if !ok || ct != def.Name {
			continue
		}
		report.BlobCount++
		present[key] = true
		if referenced[key] {
			continue
		}

		// Recent keys may belong to uploads still in flight.
		if day, err := storagepath.DateOf(key); err == nil && day.After(cutoff) {
			continue
		}

		report.OrphanBlobs = append(report.OrphanBlobs, key)
		if opts.DeleteOrphans {
			if err := store.Delete(ctx, key); err != nil {
				r.logger.Error("failed to delete orphaned blob", "bucket", def.Bucket, "key", key, "error", err)
				continue
			}
			report.DeletedBlobs = append(report.DeletedBlobs, key)
		}
	}

	for path := range referenced {
		if !present[path] {
			report.MissingBlobs = append(report.MissingBlobs, path)
		}
	}

	r.logger.Info("reconciliation sweep complete",
		"content_type", contentType,
		"blobs", report.BlobCount,
		"docs", report.DocCount,
		"orphans", len(report.OrphanBlobs),
		"missing", len(report.MissingBlobs),
		"deleted", len(report.DeletedBlobs))
	return report, nil
}

// SweepAll reconciles every registered content type.
func (r *Reconciler) SweepAll(ctx context.Context, opts SweepOptions) ([]*Report, error) {
	var reports []*Report
	for _, name := range r.registry.Types() {
		report, err := r.Sweep(ctx, name, opts)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// referencedPaths collects the blob paths of every document in a collection,
// soft-deleted included.
func (r *Reconciler) referencedPaths(ctx context.Context, collection string) (map[string]bool, error) {
	paths := map[string]bool{}
	for page := 1; ; page++ {
		result, err := r.docs.Query(ctx, collection, catalog.Query{
			Visibility: catalog.VisibilityAll,
			Sort:       []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortDesc}},
			Page:       page,
			PerPage:    catalog.MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range result.Items {
			paths[doc.BlobPath] = true
		}
		if page >= result.PageCount {
			break
		}
	}
	return paths, nil
}
