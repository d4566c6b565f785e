// Package fs provides a filesystem BlobStore, mainly for local development.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// Config options for the filesystem backend.
type Config struct {
	BaseDir string // Base directory for storing files
}

// Backend stores blobs as files under a base directory, mirroring the
// date-based key layout as a directory tree.
type Backend struct {
	baseDir string
}

// New creates a filesystem storage backend, creating the base directory if
// needed.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(key))
}

func (b *Backend) Upload(ctx context.Context, reader io.Reader, params catalog.UploadParams) error {
	filePath := b.path(params.Key)

	if !params.Overwrite {
		if _, err := os.Stat(filePath); err == nil {
			return catalog.ErrBlobExists
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(b.path(key))
	if os.IsNotExist(err) {
		return nil, catalog.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath := b.path(key)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return catalog.ErrBlobNotFound
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) PresignPut(ctx context.Context, key, mimeType string, expiry time.Duration) (string, error) {
	return "", catalog.ErrPresignNotSupported
}

// cleanupEmptyDirectories removes empty date folders left behind by deletes,
// up to but not including the base directory.
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
