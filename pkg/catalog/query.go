package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Index describes one composite index in the document store's catalog:
// a set of equality-filtered fields, at most one array-contains field, and
// an ordered sort key. A query is served by an index when its equality set
// matches, its contains field matches, and its sort sequence is a prefix of
// the index sort key. A range filter must target the first sort field.
type Index struct {
	Equality []string
	Contains string
	Sort     []Sort
}

// IndexCatalog is the set of composite indexes a document store serves.
type IndexCatalog []Index

// queryShape is the canonical signature of a query, extracted once and
// matched against the catalog.
type queryShape struct {
	equality []string // sorted
	contains string
	rng      string // at most one range-filtered field
	sort     []Sort
	invalid  string // non-empty when the query can never be covered
}

func shapeOf(q Query) queryShape {
	var s queryShape
	eq := map[string]bool{}

	if q.Visibility != VisibilityAll {
		// active-only and deleted-only are both equality filters on the
		// nullness of deleted_at.
		eq[FieldDeletedAt] = true
	}

	for _, c := range q.Conditions {
		switch c.Op {
		case OpEqual:
			eq[c.Field] = true
		case OpContains:
			if s.contains != "" && s.contains != c.Field {
				s.invalid = "multiple array-contains fields"
				return s
			}
			s.contains = c.Field
		case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
			if s.rng != "" && s.rng != c.Field {
				s.invalid = "range filters on multiple fields"
				return s
			}
			s.rng = c.Field
		default:
			s.invalid = fmt.Sprintf("unknown operator %q", c.Op)
			return s
		}
	}

	for f := range eq {
		s.equality = append(s.equality, f)
	}
	sort.Strings(s.equality)

	s.sort = q.Sort
	if len(s.sort) == 0 {
		s.sort = []Sort{{Field: FieldCreatedAt, Direction: SortDesc}}
	}
	if s.rng != "" && s.rng != s.sort[0].Field {
		s.invalid = "range filter field must be the first sort field"
	}
	return s
}

func (s queryShape) String() string {
	var parts []string
	if len(s.equality) > 0 {
		parts = append(parts, "eq("+strings.Join(s.equality, ",")+")")
	}
	if s.contains != "" {
		parts = append(parts, "contains("+s.contains+")")
	}
	if s.rng != "" {
		parts = append(parts, "range("+s.rng+")")
	}
	var keys []string
	for _, o := range s.sort {
		keys = append(keys, o.Field+" "+string(o.Direction))
	}
	parts = append(parts, "sort("+strings.Join(keys, ",")+")")
	return strings.Join(parts, " ")
}

// Covers reports whether any index in the catalog serves the query. Queries
// without equality or contains filters and a single-field sort are always
// covered (single-field indexes are assumed automatic, as document stores
// maintain them per field).
func (c IndexCatalog) Covers(q Query) bool {
	s := shapeOf(q)
	if s.invalid != "" {
		return false
	}

	if len(s.equality) == 0 && s.contains == "" && len(s.sort) == 1 {
		return true
	}

	for _, idx := range c {
		if idx.covers(s) {
			return true
		}
	}
	return false
}

// Unsupported builds the typed error for a query the catalog does not cover.
func (c IndexCatalog) Unsupported(collection string, q Query) *UnsupportedQueryError {
	return &UnsupportedQueryError{Collection: collection, Shape: shapeOf(q).String()}
}

func (idx Index) covers(s queryShape) bool {
	if s.contains != idx.Contains {
		return false
	}
	if !equalStringSets(s.equality, idx.Equality) {
		return false
	}
	if len(s.sort) > len(idx.Sort) {
		return false
	}
	for i, o := range s.sort {
		if idx.Sort[i] != o {
			return false
		}
	}
	return true
}

func equalStringSets(sorted, unsorted []string) bool {
	if len(sorted) != len(unsorted) {
		return false
	}
	b := append([]string(nil), unsorted...)
	sort.Strings(b)
	for i := range sorted {
		if sorted[i] != b[i] {
			return false
		}
	}
	return true
}

// DefaultIndexes returns the composite-index catalog every collection is
// provisioned with: deleted_at-scoped sorts on created_at and updated_at
// (with id tiebreaks), tag containment, and title/taken_at orderings, in
// both directions.
func DefaultIndexes() IndexCatalog {
	deleted := []string{FieldDeletedAt}
	dirs := []SortDirection{SortAsc, SortDesc}

	var cat IndexCatalog
	for _, d := range dirs {
		cat = append(cat,
			Index{Equality: deleted, Sort: []Sort{{FieldCreatedAt, d}}},
			Index{Equality: deleted, Contains: FieldTags, Sort: []Sort{{FieldCreatedAt, d}}},
		)
		for _, tie := range dirs {
			cat = append(cat,
				Index{Equality: deleted, Sort: []Sort{{FieldUpdatedAt, d}, {FieldID, tie}}},
				Index{Equality: deleted, Sort: []Sort{{"title", d}, {FieldCreatedAt, tie}}},
				Index{Equality: deleted, Sort: []Sort{{"taken_at", d}, {FieldCreatedAt, tie}}},
			)
		}
	}
	return cat
}
