// Package storagepath derives deterministic object-store keys for content
// blobs. Keys follow a date-based layout:
//
//	{YYYY}/{MM}/{DD}/{content_type}/{filename}
//
// The date defaults to the upload time but may be caller-supplied so
// backfilled content lands under its historical date folder. Building a path
// has no side effects; collision handling (overwrite-is-an-error) belongs to
// the object-store layer.
package storagepath

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyFilename is returned for an empty or blank filename.
	ErrEmptyFilename = errors.New("filename must not be empty")
	// ErrInvalidFilename is returned when the filename contains a path
	// separator and would escape its date folder.
	ErrInvalidFilename = errors.New("filename must not contain path separators")
)

// Build returns the blob key for a content file. The key is unique per
// (date, content type, filename); uploading the same filename for the same
// type and date targets the same key.
func Build(contentType, filename string, at time.Time) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", ErrEmptyFilename
	}
	if strings.ContainsAny(filename, `/\`) {
		return "", ErrInvalidFilename
	}
	at = at.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s/%s", at.Year(), int(at.Month()), at.Day(), contentType, filename), nil
}

// ContentTypeOf extracts the content-type segment from a blob key built by
// Build. The second return is false for keys that do not follow the layout.
func ContentTypeOf(key string) (string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return "", false
	}
	return parts[3], true
}

// DateOf extracts the date folder from a blob key built by Build.
func DateOf(key string) (time.Time, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return time.Time{}, fmt.Errorf("key %q does not follow the date layout", key)
	}
	t, err := time.Parse("2006/01/02", strings.Join(parts[:3], "/"))
	if err != nil {
		return time.Time{}, fmt.Errorf("key %q does not follow the date layout: %w", key, err)
	}
	return t, nil
}
