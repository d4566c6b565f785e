package catalog

import (
	"io"
	"time"
)

// UploadRequest carries one new content upload.
type UploadRequest struct {
	ContentType string
	Filename    string
	Reader      io.Reader
	// Metadata holds the caller-supplied metadata fields, including "tags".
	// Required fields are enforced against the type definition before any
	// write happens.
	Metadata map[string]any
	// PathDate places the blob under a specific date folder. Defaults to
	// the upload time.
	PathDate *time.Time
	// CreatedAt backdates the document's created_at for backfilled content.
	CreatedAt *time.Time
	// Access sets per-object visibility at write time. Defaults to private.
	Access Access
}

// UploadURLRequest asks for a presigned PUT URL so a client can upload the
// blob bytes directly to the object store.
type UploadURLRequest struct {
	ContentType    string
	Filename       string
	PathDate       *time.Time
	Expiry         time.Duration
	AllowOverwrite bool
}

// ListOptions is the filter surface of List.
type ListOptions struct {
	// Tags filters to documents whose tag set intersects the given tags.
	Tags []string
	// DateField names the timestamp field the From/To range applies to.
	// Defaults to created_at.
	DateField string
	From      *time.Time
	To        *time.Time
	// Visibility defaults to VisibilityActive.
	Visibility DeletedVisibility
	// SortBy defaults to created_at, SortOrder to descending.
	SortBy    string
	SortOrder SortDirection
	Page      int
	PerPage   int
}

func (o ListOptions) query() (Query, error) {
	page, perPage, err := normalizePagination(o.Page, o.PerPage)
	if err != nil {
		return Query{}, err
	}

	q := Query{
		Visibility: o.Visibility,
		Page:       page,
		PerPage:    perPage,
	}
	if q.Visibility == "" {
		q.Visibility = VisibilityActive
	}

	if len(o.Tags) > 0 {
		q.Conditions = append(q.Conditions, Condition{Field: FieldTags, Op: OpContains, Value: o.Tags})
	}

	dateField := o.DateField
	if dateField == "" {
		dateField = FieldCreatedAt
	}
	if o.From != nil {
		q.Conditions = append(q.Conditions, Condition{Field: dateField, Op: OpGreaterOrEqual, Value: o.From.UTC()})
	}
	if o.To != nil {
		q.Conditions = append(q.Conditions, Condition{Field: dateField, Op: OpLessOrEqual, Value: o.To.UTC()})
	}

	sortBy := o.SortBy
	if sortBy == "" {
		sortBy = FieldCreatedAt
	}
	order := o.SortOrder
	if order == "" {
		order = SortDesc
	}
	q.Sort = []Sort{{Field: sortBy, Direction: order}}
	return q, nil
}

// SearchCriteria is the filter surface of Search: arbitrary ANDed
// field/operator/value conditions with multi-field sort.
type SearchCriteria struct {
	Conditions []Condition
	Sort       []Sort
	Visibility DeletedVisibility
	Page       int
	PerPage    int
}

func (c SearchCriteria) query() (Query, error) {
	page, perPage, err := normalizePagination(c.Page, c.PerPage)
	if err != nil {
		return Query{}, err
	}

	q := Query{
		Conditions: c.Conditions,
		Visibility: c.Visibility,
		Sort:       c.Sort,
		Page:       page,
		PerPage:    perPage,
	}
	if q.Visibility == "" {
		q.Visibility = VisibilityActive
	}
	if len(q.Sort) == 0 {
		q.Sort = []Sort{{Field: FieldCreatedAt, Direction: SortDesc}}
	}
	return q, nil
}

func normalizePagination(page, perPage int) (int, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPageSize
	}
	if perPage < 0 {
		return 0, 0, &ValidationError{Field: "per_page", Reason: "must be positive"}
	}
	if perPage > MaxPageSize {
		return 0, 0, &ValidationError{Field: "per_page", Reason: "exceeds the maximum page size"}
	}
	return page, perPage, nil
}
