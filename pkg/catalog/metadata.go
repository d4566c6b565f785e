package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Fields the metadata manager owns. They are derived at creation or
// maintained by the system and cannot be changed through Update.
var protectedFields = map[string]bool{
	FieldID:        true,
	FieldBlobPath:  true,
	FieldBucket:    true,
	FieldMimeType:  true,
	FieldCreatedAt: true,
	FieldUpdatedAt: true,
	FieldDeletedAt: true,
}

// MetadataManager owns the document-index side of one content type: create,
// read, update, soft delete, restore, hard delete, listing and search, with
// automatic timestamping. All operations are scoped to the type's collection.
type MetadataManager struct {
	store DocumentStore
	def   TypeDefinition
	now   func() time.Time
}

// NewMetadataManager returns a manager scoped to the definition's collection.
func NewMetadataManager(store DocumentStore, def TypeDefinition) *MetadataManager {
	return &MetadataManager{store: store, def: def, now: func() time.Time { return time.Now().UTC() }}
}

// Collection returns the collection the manager is scoped to.
func (m *MetadataManager) Collection() string { return m.def.Collection }

// ValidateRequired checks that every required metadata field is present and
// non-empty. The type's touch field is system-maintained and not required
// from callers.
func (m *MetadataManager) ValidateRequired(tags []string, fields map[string]any) error {
	for _, name := range m.def.RequiredMetadata {
		if name == m.def.TouchField {
			continue
		}
		if name == FieldTags {
			if len(tags) == 0 {
				return &ValidationError{Field: FieldTags, Reason: "at least one tag is required"}
			}
			continue
		}
		v, ok := fields[name]
		if !ok || v == nil {
			return &ValidationError{Field: name, Reason: "required metadata field is missing"}
		}
		if s, isString := v.(string); isString && s == "" {
			return &ValidationError{Field: name, Reason: "required metadata field is empty"}
		}
	}
	return nil
}

// Create writes a new document. created_at may be caller-supplied for
// backfilled content and defaults to the current time; updated_at starts
// equal to created_at and deleted_at starts null.
func (m *MetadataManager) Create(ctx context.Context, doc *Document, createdAt *time.Time) (*Document, error) {
	if err := m.ValidateRequired(doc.Tags, doc.Fields); err != nil {
		return nil, err
	}

	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	created := m.now()
	if createdAt != nil {
		created = createdAt.UTC()
	}
	doc.CreatedAt = created
	doc.UpdatedAt = created
	doc.DeletedAt = nil
	if m.def.TouchField != "" {
		if doc.Fields == nil {
			doc.Fields = map[string]any{}
		}
		// Stamped with created, not now, so a backfilled document never
		// starts with a touch field ahead of its updated_at.
		doc.Fields[m.def.TouchField] = created
	}

	if err := m.store.Create(ctx, m.def.Collection, doc); err != nil {
		return nil, m.wrap("create", doc.ID, err)
	}
	return doc, nil
}

// Get returns a document by id. Soft-deleted documents are retrievable by
// id; hard-deleted ids fail with ErrNotFound.
func (m *MetadataManager) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := m.store.Get(ctx, m.def.Collection, id)
	if err != nil {
		return nil, m.wrap("get", id, err)
	}
	return doc, nil
}

// Update merges the given fields into the document. Omitted fields are left
// untouched; updated_at and the type's touch field (when configured) are
// bumped. Protected fields cannot be updated.
func (m *MetadataManager) Update(ctx context.Context, id string, updates map[string]any) (*Document, error) {
	for name := range updates {
		if protectedFields[name] {
			return nil, &ValidationError{Field: name, Reason: "field is protected and cannot be updated"}
		}
	}

	doc, err := m.store.Get(ctx, m.def.Collection, id)
	if err != nil {
		return nil, m.wrap("update", id, err)
	}

	for name, value := range updates {
		switch name {
		case FieldTags:
			tags, err := toStringSlice(value)
			if err != nil {
				return nil, &ValidationError{Field: FieldTags, Reason: err.Error()}
			}
			doc.Tags = tags
		case FieldSizeBytes:
			size, err := toInt64(value)
			if err != nil {
				return nil, &ValidationError{Field: FieldSizeBytes, Reason: err.Error()}
			}
			doc.SizeBytes = size
		default:
			if doc.Fields == nil {
				doc.Fields = map[string]any{}
			}
			doc.Fields[name] = value
		}
	}

	m.touch(doc)
	if err := m.store.Replace(ctx, m.def.Collection, doc); err != nil {
		return nil, m.wrap("update", id, err)
	}
	return doc, nil
}

// SoftDelete marks the document deleted. Idempotent: re-deleting an already
// soft-deleted document refreshes its deleted_at timestamp.
func (m *MetadataManager) SoftDelete(ctx context.Context, id string) (*Document, error) {
	doc, err := m.store.Get(ctx, m.def.Collection, id)
	if err != nil {
		return nil, m.wrap("soft_delete", id, err)
	}

	now := m.now()
	doc.DeletedAt = &now
	doc.UpdatedAt = now
	if err := m.store.Replace(ctx, m.def.Collection, doc); err != nil {
		return nil, m.wrap("soft_delete", id, err)
	}
	return doc, nil
}

// Restore clears the soft-delete mark. Restoring an active document is a
// no-op; unknown and hard-deleted ids fail with ErrNotFound.
func (m *MetadataManager) Restore(ctx context.Context, id string) (*Document, error) {
	doc, err := m.store.Get(ctx, m.def.Collection, id)
	if err != nil {
		return nil, m.wrap("restore", id, err)
	}
	if doc.DeletedAt == nil {
		return doc, nil
	}

	doc.DeletedAt = nil
	doc.UpdatedAt = m.now()
	if err := m.store.Replace(ctx, m.def.Collection, doc); err != nil {
		return nil, m.wrap("restore", id, err)
	}
	return doc, nil
}

// HardDelete removes the document permanently. The caller is responsible
// for removing the blob first; the content manager sequences this.
func (m *MetadataManager) HardDelete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, m.def.Collection, id); err != nil {
		return m.wrap("hard_delete", id, err)
	}
	return nil
}

// List runs a paginated listing with tag, date-range and visibility filters.
func (m *MetadataManager) List(ctx context.Context, opts ListOptions) (*Page, error) {
	q, err := opts.query()
	if err != nil {
		return nil, err
	}
	page, err := m.store.Query(ctx, m.def.Collection, q)
	if err != nil {
		return nil, m.wrapQuery("list", err)
	}
	return page, nil
}

// Search runs a generalized field/operator/value search with multi-field
// sort and the same pagination as List.
func (m *MetadataManager) Search(ctx context.Context, criteria SearchCriteria) (*Page, error) {
	q, err := criteria.query()
	if err != nil {
		return nil, err
	}
	page, err := m.store.Query(ctx, m.def.Collection, q)
	if err != nil {
		return nil, m.wrapQuery("search", err)
	}
	return page, nil
}

// DistinctTags returns the sorted set of tags across documents matching the
// visibility mode.
func (m *MetadataManager) DistinctTags(ctx context.Context, visibility DeletedVisibility) ([]string, error) {
	if visibility == "" {
		visibility = VisibilityActive
	}
	seen := map[string]bool{}
	for page := 1; ; page++ {
		result, err := m.store.Query(ctx, m.def.Collection, Query{
			Visibility: visibility,
			Sort:       []Sort{{Field: FieldCreatedAt, Direction: SortDesc}},
			Page:       page,
			PerPage:    MaxPageSize,
		})
		if err != nil {
			return nil, m.wrapQuery("distinct_tags", err)
		}
		for _, doc := range result.Items {
			for _, tag := range doc.Tags {
				seen[tag] = true
			}
		}
		if page >= result.PageCount {
			break
		}
	}
	return sortedKeys(seen), nil
}

func (m *MetadataManager) touch(doc *Document) {
	now := m.now()
	doc.UpdatedAt = now
	if m.def.TouchField != "" {
		if doc.Fields == nil {
			doc.Fields = map[string]any{}
		}
		doc.Fields[m.def.TouchField] = now
	}
}

func (m *MetadataManager) wrap(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &StorageError{Backend: m.def.Collection, Op: op, Key: id, Err: err}
}

func (m *MetadataManager) wrapQuery(op string, err error) error {
	var uq *UnsupportedQueryError
	if errors.As(err, &uq) {
		return err
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &StorageError{Backend: m.def.Collection, Op: op, Err: err}
}

func toStringSlice(v any) ([]string, error) {
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), vv...), nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch vv := v.(type) {
	case int:
		return int64(vv), nil
	case int64:
		return vv, nil
	case float64:
		return int64(vv), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
