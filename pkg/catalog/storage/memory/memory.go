// Package memory provides an in-memory BlobStore for development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

type object struct {
	data     []byte
	mimeType string
	access   catalog.Access
}

// Backend stores blobs in process memory. Safe for concurrent use.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates an empty in-memory blob store.
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

func (b *Backend) Upload(ctx context.Context, reader io.Reader, params catalog.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[params.Key]; exists && !params.Overwrite {
		return catalog.ErrBlobExists
	}
	b.objects[params.Key] = object{data: data, mimeType: params.MimeType, access: params.Access}
	return nil
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, catalog.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[key]; !ok {
		return catalog.ErrBlobNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[key]
	return ok, nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) PresignPut(ctx context.Context, key, mimeType string, expiry time.Duration) (string, error) {
	return "", catalog.ErrPresignNotSupported
}
