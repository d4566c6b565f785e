// Package memory provides an in-memory DocumentStore for development and
// tests. It enforces the same composite-index coverage rules as the
// production store so uncovered query shapes fail the same way everywhere.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// Store is an in-memory document index. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*catalog.Document
	indexes     catalog.IndexCatalog
}

// New creates a store serving the default index catalog.
func New() *Store {
	return NewWithIndexes(catalog.DefaultIndexes())
}

// NewWithIndexes creates a store serving the given index catalog.
func NewWithIndexes(indexes catalog.IndexCatalog) *Store {
	return &Store{
		collections: make(map[string]map[string]*catalog.Document),
		indexes:     indexes,
	}
}

func (s *Store) Indexes() catalog.IndexCatalog {
	return s.indexes
}

func (s *Store) Create(ctx context.Context, collection string, doc *catalog.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*catalog.Document)
		s.collections[collection] = docs
	}
	if _, exists := docs[doc.ID]; exists {
		return fmt.Errorf("document %q already exists in collection %q", doc.ID, collection)
	}
	docs[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*catalog.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) Replace(ctx context.Context, collection string, doc *catalog.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if _, ok := docs[doc.ID]; !ok {
		return catalog.ErrNotFound
	}
	docs[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if _, ok := docs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(docs, id)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q catalog.Query) (*catalog.Page, error) {
	if !s.indexes.Covers(q) {
		return nil, s.indexes.Unsupported(collection, q)
	}

	s.mu.RLock()
	var matched []*catalog.Document
	for _, doc := range s.collections[collection] {
		if matches(doc, q) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	keys := q.Sort
	if len(keys) == 0 {
		keys = []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortDesc}}
	}
	sortDocuments(matched, keys)

	return paginate(matched, q.Page, q.PerPage), nil
}

func matches(doc *catalog.Document, q catalog.Query) bool {
	switch q.Visibility {
	case catalog.VisibilityAll:
	case catalog.VisibilityDeletedOnly:
		if !doc.Deleted() {
			return false
		}
	default:
		if doc.Deleted() {
			return false
		}
	}

	for _, c := range q.Conditions {
		if !matchCondition(doc, c) {
			return false
		}
	}
	return true
}

func matchCondition(doc *catalog.Document, c catalog.Condition) bool {
	if c.Op == catalog.OpContains {
		return containsAny(doc.Tags, c.Value)
	}

	fv, ok := doc.Field(c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case catalog.OpEqual:
		cmp, comparable := compareValues(fv, c.Value)
		return comparable && cmp == 0
	case catalog.OpGreater:
		cmp, comparable := compareValues(fv, c.Value)
		return comparable && cmp > 0
	case catalog.OpGreaterOrEqual:
		cmp, comparable := compareValues(fv, c.Value)
		return comparable && cmp >= 0
	case catalog.OpLess:
		cmp, comparable := compareValues(fv, c.Value)
		return comparable && cmp < 0
	case catalog.OpLessOrEqual:
		cmp, comparable := compareValues(fv, c.Value)
		return comparable && cmp <= 0
	}
	return false
}

func containsAny(tags []string, value any) bool {
	var wanted []string
	switch v := value.(type) {
	case string:
		wanted = []string{v}
	case []string:
		wanted = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				wanted = append(wanted, s)
			}
		}
	default:
		return false
	}
	for _, w := range wanted {
		for _, t := range tags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// compareValues orders two field values. Nil sorts before everything so
// soft-deleted documents (non-nil deleted_at) order after active ones.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	if at, ok := asTime(a); ok {
		bt, ok := asTime(b)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}

	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortDocuments(docs []*catalog.Document, keys []catalog.Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			av, _ := docs[i].Field(key.Field)
			bv, _ := docs[j].Field(key.Field)
			cmp, ok := compareValues(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if key.Direction == catalog.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		// id tiebreak keeps pagination stable across equal sort keys.
		return docs[i].ID < docs[j].ID
	})
}

func paginate(docs []*catalog.Document, page, perPage int) *catalog.Page {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = catalog.DefaultPageSize
	}

	total := len(docs)
	pageCount := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	items := docs[start:end]
	if items == nil {
		items = []*catalog.Document{}
	}
	return &catalog.Page{
		Items:     items,
		Total:     total,
		Page:      page,
		PerPage:   perPage,
		PageCount: pageCount,
	}
}
