package catalog

import (
	"time"
)

// Well-known document field names. Typed Document fields and free-form
// metadata fields share one namespace for filtering and sorting.
const (
	FieldID        = "id"
	FieldBlobPath  = "blob_path"
	FieldBucket    = "bucket"
	FieldMimeType  = "mime_type"
	FieldSizeBytes = "size_bytes"
	FieldTags      = "tags"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldDeletedAt = "deleted_at"
)

// MaxPageSize is the largest page size List and Search accept.
const MaxPageSize = 100

// DefaultPageSize is used when a request does not specify a page size.
const DefaultPageSize = 20

// Document is the metadata record for one content item. Exactly one blob in
// the object store corresponds to each document; both share the document ID.
// BlobPath and Bucket are derived at creation and immutable afterwards.
type Document struct {
	ID        string         `json:"id"`
	BlobPath  string         `json:"blob_path"`
	Bucket    string         `json:"bucket"`
	MimeType  string         `json:"mime_type"`
	SizeBytes int64          `json:"size_bytes"`
	Tags      []string       `json:"tags,omitempty"`
	Fields    map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// Clone returns a deep copy so stores can hand out documents without
// exposing their internal state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	if d.Fields != nil {
		c.Fields = make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = v
		}
	}
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Field resolves a field by name, covering both the typed document fields and
// the free-form metadata map.
func (d *Document) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldBlobPath:
		return d.BlobPath, true
	case FieldBucket:
		return d.Bucket, true
	case FieldMimeType:
		return d.MimeType, true
	case FieldSizeBytes:
		return d.SizeBytes, true
	case FieldTags:
		return d.Tags, true
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	case FieldDeletedAt:
		if d.DeletedAt == nil {
			return nil, true
		}
		return *d.DeletedAt, true
	}
	v, ok := d.Fields[name]
	return v, ok
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool { return d.DeletedAt != nil }

// Page is one page of a listing or search result.
type Page struct {
	Items     []*Document `json:"items"`
	Total     int         `json:"total"`
	Page      int         `json:"page"`
	PerPage   int         `json:"per_page"`
	PageCount int         `json:"page_count"`
}

// DeletedVisibility selects how soft-deleted documents participate in
// listings and searches.
type DeletedVisibility string

const (
	// VisibilityActive excludes soft-deleted documents. The default.
	VisibilityActive DeletedVisibility = "active"
	// VisibilityAll includes both active and soft-deleted documents.
	VisibilityAll DeletedVisibility = "all"
	// VisibilityDeletedOnly returns only soft-deleted documents.
	VisibilityDeletedOnly DeletedVisibility = "deleted"
)

// SortDirection is an ascending or descending sort order.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort names a field and a direction.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Operator is a search condition operator.
type Operator string

const (
	OpEqual          Operator = "=="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	// OpContains matches documents whose tags (or other array field) contain
	// the condition value. With a []string value it matches any-of.
	OpContains Operator = "array-contains"
)

// Condition is one field/operator/value triple. Conditions in a query are
// ANDed together.
type Condition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// TagOperation selects how UpdateTags combines the supplied tags with the
// document's current tag set.
type TagOperation string

const (
	TagSet    TagOperation = "set"
	TagAdd    TagOperation = "add"
	TagRemove TagOperation = "remove"
)
