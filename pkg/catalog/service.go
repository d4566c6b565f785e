package catalog

import (
	"context"
	"io"
)

// Service is the content manager: the sole public entry point for the
// content lifecycle. Every operation is parameterized by content type and
// dispatched through the registry. Mutating operations perform at most one
// blob write and one metadata write, in a fixed order, and surface the
// first failure without retrying.
type Service interface {
	// ContentTypes returns the registered content type definitions.
	ContentTypes() []TypeDefinition

	// Upload validates, writes the blob, then creates the metadata
	// document. If the metadata write fails after the blob write
	// succeeded, the orphaned blob is deleted best-effort before the
	// error is surfaced.
	Upload(ctx context.Context, req UploadRequest) (*Document, error)

	// UploadURL returns a presigned PUT URL for direct client upload.
	UploadURL(ctx context.Context, req UploadURLRequest) (string, error)

	// Get returns the metadata document. Soft-deleted items remain
	// retrievable by id; unknown and hard-deleted ids fail with
	// ErrNotFound.
	Get(ctx context.Context, contentType, id string) (*Document, error)

	// Download returns the blob bytes along with the metadata document.
	Download(ctx context.Context, contentType, id string) (io.ReadCloser, *Document, error)

	// UpdateMetadata merges the given fields into the document.
	UpdateMetadata(ctx context.Context, contentType, id string, updates map[string]any) (*Document, error)

	// UpdateContent overwrites the blob at its existing path and bumps the
	// document's updated_at and size. Content replacement never moves the
	// file.
	UpdateContent(ctx context.Context, contentType, id string, reader io.Reader) (*Document, error)

	// Delete soft-deletes by default (metadata marked, blob retained).
	// With hard set, the blob is removed first and then the document, so a
	// crash mid-operation leaves at worst a record with no blob.
	Delete(ctx context.Context, contentType, id string, hard bool) error

	// Restore clears a soft delete after verifying the blob still exists.
	Restore(ctx context.Context, contentType, id string) (*Document, error)

	// List and Search pass through to the metadata manager.
	List(ctx context.Context, contentType string, opts ListOptions) (*Page, error)
	Search(ctx context.Context, contentType string, criteria SearchCriteria) (*Page, error)

	// Tags returns the distinct tags in use for a content type.
	Tags(ctx context.Context, contentType string) ([]string, error)

	// UpdateTags sets, adds or removes tags on a document.
	UpdateTags(ctx context.Context, contentType, id string, tags []string, op TagOperation) (*Document, error)

	// Metadata exposes the per-type metadata manager for callers that only
	// need the document-index side.
	Metadata(contentType string) (*MetadataManager, error)
}
