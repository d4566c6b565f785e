package catalog

import (
	"context"
	"io"
	"time"
)

// Access controls per-object visibility, set at write time.
type Access string

const (
	AccessPrivate Access = "private"
	AccessPublic  Access = "public"
)

// UploadParams carries the parameters for one blob write.
type UploadParams struct {
	Key      string
	MimeType string
	Access   Access
	// Overwrite permits replacing an existing object. When false, a write to
	// an occupied key fails with ErrBlobExists; path collisions are an error,
	// never a silent merge.
	Overwrite bool
}

// BlobStore is the object-store contract the content manager depends on.
// Implementations are scoped to a single bucket; the registry maps each
// content type's bucket name to a registered store. Timeouts and retries
// belong to the implementations, not to callers.
type BlobStore interface {
	// Upload writes one object. Fails with ErrBlobExists if the key is
	// occupied and params.Overwrite is false.
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download streams an object's bytes. Fails with ErrBlobNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Fails with ErrBlobNotFound.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is present at the key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under the given prefix. Used by the
	// reconciliation sweep; not on any request path.
	List(ctx context.Context, prefix string) ([]string, error)

	// PresignPut returns a URL a client can PUT the object bytes to
	// directly. Backends without URL support fail with
	// ErrPresignNotSupported.
	PresignPut(ctx context.Context, key, mimeType string, expiry time.Duration) (string, error)
}

// Query is one listing or search request against a collection. Conditions
// are ANDed; Sort is applied in order; pages are 1-based.
type Query struct {
	Conditions []Condition
	Visibility DeletedVisibility
	Sort       []Sort
	Page       int
	PerPage    int
}

// DocumentStore is the document-index contract. One store serves several
// collections (one per content type). Every Query call must be checked
// against Indexes before executing; uncovered shapes fail with
// *UnsupportedQueryError.
type DocumentStore interface {
	// Create writes a new document. Fails if the id is already present.
	Create(ctx context.Context, collection string, doc *Document) error

	// Get returns a document by id, soft-deleted or not. Fails with
	// ErrNotFound for unknown or hard-deleted ids.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Replace overwrites an existing document. Fails with ErrNotFound.
	Replace(ctx context.Context, collection string, doc *Document) error

	// Delete removes a document permanently. Fails with ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// Query runs a filtered, sorted, paginated listing.
	Query(ctx context.Context, collection string, q Query) (*Page, error)

	// Indexes returns the composite-index catalog this store serves.
	Indexes() IndexCatalog
}
