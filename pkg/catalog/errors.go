package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound indicates an unknown id, or an id whose document has been
	// hard-deleted.
	ErrNotFound = errors.New("content not found")

	// ErrBlobExists indicates a blob write would overwrite an existing object.
	ErrBlobExists = errors.New("blob already exists")

	// ErrBlobNotFound indicates no object exists at the requested path.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrPresignNotSupported indicates the blob store cannot issue presigned
	// URLs (memory and fs backends).
	ErrPresignNotSupported = errors.New("presigned URLs not supported by backend")
)

// ValidationError indicates rejected input: a missing or empty required
// metadata field, a disallowed file extension, a bad filename, or an attempt
// to update a protected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Reason)
}

// ConfigurationError indicates an unknown content type or otherwise invalid
// registry configuration.
type ConfigurationError struct {
	ContentType string
	Reason      string
}

func (e *ConfigurationError) Error() string {
	if e.ContentType == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error for content type %q: %s", e.ContentType, e.Reason)
}

// UnsupportedQueryError indicates a filter/sort combination not covered by
// the document store's composite-index catalog. Such queries fail fast
// instead of falling back to an unindexed scan.
type UnsupportedQueryError struct {
	Collection string
	Shape      string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("query shape %s not covered by index catalog for collection %q", e.Shape, e.Collection)
}

// StorageError wraps a failed object-store or document-store call.
type StorageError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
