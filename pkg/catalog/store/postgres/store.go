// Package postgres implements the DocumentStore on PostgreSQL using pgx.
// All collections share one documents table keyed by (collection, id);
// free-form metadata lives in a JSONB column and tags in a text array.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is a PostgreSQL-backed document index.
type Store struct {
	db      DBTX
	indexes catalog.IndexCatalog
}

// New creates a store on the given connection or transaction.
func New(db DBTX) *Store {
	return &Store{db: db, indexes: catalog.DefaultIndexes()}
}

// NewWithPool creates a store on a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return New(pool)
}

func (s *Store) Indexes() catalog.IndexCatalog {
	return s.indexes
}

// typed columns; everything else is resolved through the JSONB fields column.
var columns = map[string]string{
	catalog.FieldID:        "id",
	catalog.FieldBlobPath:  "blob_path",
	catalog.FieldBucket:    "bucket",
	catalog.FieldMimeType:  "mime_type",
	catalog.FieldSizeBytes: "size_bytes",
	catalog.FieldCreatedAt: "created_at",
	catalog.FieldUpdatedAt: "updated_at",
	catalog.FieldDeletedAt: "deleted_at",
}

func (s *Store) Create(ctx context.Context, collection string, doc *catalog.Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode metadata fields: %w", err)
	}

	query := `
		INSERT INTO documents (
			collection, id, blob_path, bucket, mime_type, size_bytes,
			tags, fields, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.Exec(ctx, query,
		collection, doc.ID, doc.BlobPath, doc.Bucket, doc.MimeType, doc.SizeBytes,
		doc.Tags, fields, doc.CreatedAt, doc.UpdatedAt, doc.DeletedAt)
	if err != nil {
		return s.handleError("create", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*catalog.Document, error) {
	query := `
		SELECT id, blob_path, bucket, mime_type, size_bytes,
		       tags, fields, created_at, updated_at, deleted_at
		FROM documents WHERE collection = $1 AND id = $2`

	doc, err := scanDocument(s.db.QueryRow(ctx, query, collection, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, s.handleError("get", err)
	}
	return doc, nil
}

func (s *Store) Replace(ctx context.Context, collection string, doc *catalog.Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode metadata fields: %w", err)
	}

	query := `
		UPDATE documents SET
			blob_path = $3, bucket = $4, mime_type = $5, size_bytes = $6,
			tags = $7, fields = $8, created_at = $9, updated_at = $10, deleted_at = $11
		WHERE collection = $1 AND id = $2`

	tag, err := s.db.Exec(ctx, query,
		collection, doc.ID, doc.BlobPath, doc.Bucket, doc.MimeType, doc.SizeBytes,
		doc.Tags, fields, doc.CreatedAt, doc.UpdatedAt, doc.DeletedAt)
	if err != nil {
		return s.handleError("replace", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return s.handleError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q catalog.Query) (*catalog.Page, error) {
	if !s.indexes.Covers(q) {
		return nil, s.indexes.Unsupported(collection, q)
	}

	where := []string{"collection = $1"}
	args := []interface{}{collection}

	switch q.Visibility {
	case catalog.VisibilityAll:
	case catalog.VisibilityDeletedOnly:
		where = append(where, "deleted_at IS NOT NULL")
	default:
		where = append(where, "deleted_at IS NULL")
	}

	for _, c := range q.Conditions {
		clause, arg, err := conditionClause(c, len(args)+1)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, arg)
	}

	orderBy, err := orderClause(q.Sort)
	if err != nil {
		return nil, err
	}

	page := q.Page
	if page <= 0 {
		page = 1
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = catalog.DefaultPageSize
	}

	query := fmt.Sprintf(`
		SELECT id, blob_path, bucket, mime_type, size_bytes,
		       tags, fields, created_at, updated_at, deleted_at,
		       count(*) OVER () AS total
		FROM documents
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), orderBy, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.handleError("query", err)
	}
	defer rows.Close()

	items := []*catalog.Document{}
	total := 0
	for rows.Next() {
		doc, n, err := scanDocumentWithTotal(rows)
		if err != nil {
			return nil, s.handleError("query", err)
		}
		items = append(items, doc)
		total = n
	}
	if err := rows.Err(); err != nil {
		return nil, s.handleError("query", err)
	}

	// A page past the end returns no rows, so the window total is lost;
	// recount so the page math stays right.
	if len(items) == 0 {
		countQuery := fmt.Sprintf(`SELECT count(*) FROM documents WHERE %s`, strings.Join(where, " AND "))
		if err := s.db.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, s.handleError("query", err)
		}
	}

	return &catalog.Page{
		Items:     items,
		Total:     total,
		Page:      page,
		PerPage:   perPage,
		PageCount: (total + perPage - 1) / perPage,
	}, nil
}

func conditionClause(c catalog.Condition, arg int) (string, interface{}, error) {
	if c.Op == catalog.OpContains {
		tags, err := toTextArray(c.Value)
		if err != nil {
			return "", nil, &catalog.ValidationError{Field: c.Field, Reason: err.Error()}
		}
		return fmt.Sprintf("tags && $%d", arg), tags, nil
	}

	var op string
	switch c.Op {
	case catalog.OpEqual:
		op = "="
	case catalog.OpGreater:
		op = ">"
	case catalog.OpGreaterOrEqual:
		op = ">="
	case catalog.OpLess:
		op = "<"
	case catalog.OpLessOrEqual:
		op = "<="
	default:
		return "", nil, &catalog.ValidationError{Field: c.Field, Reason: fmt.Sprintf("unknown operator %q", c.Op)}
	}

	if col, ok := columns[c.Field]; ok {
		return fmt.Sprintf("%s %s $%d", col, op, arg), c.Value, nil
	}
	return jsonFieldClause(c.Field, op, arg, c.Value)
}

// jsonFieldClause compares a free-form metadata field. The JSONB text is cast
// for timestamp and numeric values so they compare by value; comparing the
// raw text would put "2024-01-05 ..." layouts and unpadded numbers in the
// wrong order.
func jsonFieldClause(field, op string, arg int, value interface{}) (string, interface{}, error) {
	accessor := "fields->>" + quoteLiteral(field)
	switch v := value.(type) {
	case time.Time:
		return fmt.Sprintf("(%s)::timestamptz %s $%d", accessor, op, arg), v, nil
	case *time.Time:
		if v == nil {
			return "", nil, &catalog.ValidationError{Field: field, Reason: "timestamp value is nil"}
		}
		return fmt.Sprintf("(%s)::timestamptz %s $%d", accessor, op, arg), *v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("(%s)::numeric %s $%d", accessor, op, arg), v, nil
	default:
		return fmt.Sprintf("%s %s $%d", accessor, op, arg), fmt.Sprint(value), nil
	}
}

func orderClause(keys []catalog.Sort) (string, error) {
	if len(keys) == 0 {
		keys = []catalog.Sort{{Field: catalog.FieldCreatedAt, Direction: catalog.SortDesc}}
	}
	var parts []string
	for _, key := range keys {
		dir := "ASC"
		if key.Direction == catalog.SortDesc {
			dir = "DESC"
		}
		if col, ok := columns[key.Field]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", col, dir))
		} else {
			parts = append(parts, fmt.Sprintf("fields->>%s %s", quoteLiteral(key.Field), dir))
		}
	}
	// id tiebreak keeps pagination stable across equal sort keys.
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), nil
}

func toTextArray(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", value)
	}
}

// quoteLiteral quotes a JSONB key for interpolation into the field accessor.
// Keys come from the query surface, not user content, but quoting keeps the
// statement well-formed for any key.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func scanDocument(row pgx.Row) (*catalog.Document, error) {
	var doc catalog.Document
	var fields []byte
	err := row.Scan(
		&doc.ID, &doc.BlobPath, &doc.Bucket, &doc.MimeType, &doc.SizeBytes,
		&doc.Tags, &fields, &doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return nil, fmt.Errorf("decode metadata fields: %w", err)
		}
	}
	return &doc, nil
}

func scanDocumentWithTotal(rows pgx.Rows) (*catalog.Document, int, error) {
	var doc catalog.Document
	var fields []byte
	var total int
	err := rows.Scan(
		&doc.ID, &doc.BlobPath, &doc.Bucket, &doc.MimeType, &doc.SizeBytes,
		&doc.Tags, &fields, &doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt, &total)
	if err != nil {
		return nil, 0, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return nil, 0, fmt.Errorf("decode metadata fields: %w", err)
		}
	}
	return &doc, total, nil
}

func (s *Store) handleError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("document already exists")
		case "42P01": // undefined_table
			return fmt.Errorf("documents table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
