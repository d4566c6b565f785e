package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/platformkit/content-catalog/pkg/catalog/storagepath"
)

// service implements the Service interface.
type service struct {
	registry *Registry
	docs     DocumentStore
	stores   map[string]BlobStore // keyed by bucket name
	managers map[string]*MetadataManager
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithRegistry sets the content type registry. Defaults to DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(s *service) { s.registry = r }
}

// WithDocumentStore sets the document store. Required.
func WithDocumentStore(store DocumentStore) Option {
	return func(s *service) { s.docs = store }
}

// WithBlobStore registers a blob store for a bucket name. Every bucket the
// registry references must have a store.
func WithBlobStore(bucket string, store BlobStore) Option {
	return func(s *service) {
		if s.stores == nil {
			s.stores = make(map[string]BlobStore)
		}
		s.stores[bucket] = store
	}
}

// WithLogger sets the logger used for secondary errors (compensation
// failures). Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// New creates a content manager from the given options.
func New(options ...Option) (Service, error) {
	s := &service{
		stores: make(map[string]BlobStore),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}

	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.managers = make(map[string]*MetadataManager)
	for _, def := range s.registry.Definitions() {
		if _, ok := s.stores[def.Bucket]; !ok {
			return nil, &ConfigurationError{ContentType: def.Name, Reason: fmt.Sprintf("no blob store registered for bucket %q", def.Bucket)}
		}
		mgr := NewMetadataManager(s.docs, def)
		mgr.now = s.now
		s.managers[def.Name] = mgr
	}
	return s, nil
}

func (s *service) ContentTypes() []TypeDefinition {
	return s.registry.Definitions()
}

func (s *service) Metadata(contentType string) (*MetadataManager, error) {
	mgr, ok := s.managers[contentType]
	if !ok {
		return nil, &ConfigurationError{ContentType: contentType, Reason: "undefined content type"}
	}
	return mgr, nil
}

func (s *service) resolve(contentType string) (TypeDefinition, *MetadataManager, BlobStore, error) {
	def, err := s.registry.Definition(contentType)
	if err != nil {
		return TypeDefinition{}, nil, nil, err
	}
	return def, s.managers[contentType], s.stores[def.Bucket], nil
}

func (s *service) Upload(ctx context.Context, req UploadRequest) (*Document, error) {
	def, mgr, store, err := s.resolve(req.ContentType)
	if err != nil {
		return nil, err
	}

	if !def.AllowsExtension(req.Filename) {
		return nil, &ValidationError{Field: "filename", Reason: fmt.Sprintf("extension not allowed for content type %q (allowed: %v)", def.Name, def.ValidExtensions)}
	}

	tags, fields, err := splitMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}
	// Validation failure must prevent both writes.
	if err := mgr.ValidateRequired(tags, fields); err != nil {
		return nil, err
	}

	pathDate := s.now()
	if req.PathDate != nil {
		pathDate = *req.PathDate
	}
	key, err := storagepath.Build(def.Name, req.Filename, pathDate)
	if err != nil {
		return nil, &ValidationError{Field: "filename", Reason: err.Error()}
	}

	mimeType := def.MimeTypeFor(req.Filename)
	counted := &countingReader{r: req.Reader}
	if err := store.Upload(ctx, counted, UploadParams{
		Key:      key,
		MimeType: mimeType,
		Access:   req.Access,
	}); err != nil {
		return nil, &StorageError{Backend: def.Bucket, Op: "upload", Key: key, Err: err}
	}

	doc := &Document{
		ID:        uuid.New().String(),
		BlobPath:  key,
		Bucket:    def.Bucket,
		MimeType:  mimeType,
		SizeBytes: counted.n,
		Tags:      tags,
		Fields:    fields,
	}

	created, err := mgr.Create(ctx, doc, req.CreatedAt)
	if err != nil {
		// Best-effort compensation: the blob write succeeded but the
		// metadata write did not. Remove the orphaned blob; a failure here
		// is logged as a secondary error and never masks the primary one.
		if derr := store.Delete(ctx, key); derr != nil {
			s.logger.Error("orphaned blob left behind after failed metadata write",
				"bucket", def.Bucket, "key", key, "error", derr)
		}
		return nil, err
	}
	return created, nil
}

func (s *service) UploadURL(ctx context.Context, req UploadURLRequest) (string, error) {
	def, _, store, err := s.resolve(req.ContentType)
	if err != nil {
		return "", err
	}
	if !def.AllowsExtension(req.Filename) {
		return "", &ValidationError{Field: "filename", Reason: fmt.Sprintf("extension not allowed for content type %q", def.Name)}
	}

	pathDate := s.now()
	if req.PathDate != nil {
		pathDate = *req.PathDate
	}
	key, err := storagepath.Build(def.Name, req.Filename, pathDate)
	if err != nil {
		return "", &ValidationError{Field: "filename", Reason: err.Error()}
	}

	if !req.AllowOverwrite {
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return "", &StorageError{Backend: def.Bucket, Op: "presign", Key: key, Err: err}
		}
		if exists {
			return "", &StorageError{Backend: def.Bucket, Op: "presign", Key: key, Err: ErrBlobExists}
		}
	}

	expiry := req.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	url, err := store.PresignPut(ctx, key, def.MimeTypeFor(req.Filename), expiry)
	if err != nil {
		return "", &StorageError{Backend: def.Bucket, Op: "presign", Key: key, Err: err}
	}
	return url, nil
}

func (s *service) Get(ctx context.Context, contentType, id string) (*Document, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	return mgr.Get(ctx, id)
}

func (s *service) Download(ctx context.Context, contentType, id string) (io.ReadCloser, *Document, error) {
	def, mgr, store, err := s.resolve(contentType)
	if err != nil {
		return nil, nil, err
	}
	doc, err := mgr.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := store.Download(ctx, doc.BlobPath)
	if err != nil {
		return nil, nil, &StorageError{Backend: def.Bucket, Op: "download", Key: doc.BlobPath, Err: err}
	}
	return rc, doc, nil
}

func (s *service) UpdateMetadata(ctx context.Context, contentType, id string, updates map[string]any) (*Document, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, &ValidationError{Reason: "no update fields provided"}
	}
	return mgr.Update(ctx, id, updates)
}

func (s *service) UpdateContent(ctx context.Context, contentType, id string, reader io.Reader) (*Document, error) {
	def, mgr, store, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	doc, err := mgr.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Same id, same path: content replacement overwrites in place.
	counted := &countingReader{r: reader}
	if err := store.Upload(ctx, counted, UploadParams{
		Key:       doc.BlobPath,
		MimeType:  doc.MimeType,
		Overwrite: true,
	}); err != nil {
		return nil, &StorageError{Backend: def.Bucket, Op: "upload", Key: doc.BlobPath, Err: err}
	}

	return mgr.Update(ctx, id, map[string]any{FieldSizeBytes: counted.n})
}

func (s *service) Delete(ctx context.Context, contentType, id string, hard bool) error {
	def, mgr, store, err := s.resolve(contentType)
	if err != nil {
		return err
	}

	if !hard {
		_, err := mgr.SoftDelete(ctx, id)
		return err
	}

	doc, err := mgr.Get(ctx, id)
	if err != nil {
		return err
	}
	// Blob first, then metadata: a crash in between leaves a record with no
	// blob, which is detectable and re-deletable. The reverse would leave
	// an unreferenced blob.
	if err := store.Delete(ctx, doc.BlobPath); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return &StorageError{Backend: def.Bucket, Op: "delete", Key: doc.BlobPath, Err: err}
	}
	return mgr.HardDelete(ctx, id)
}

func (s *service) Restore(ctx context.Context, contentType, id string) (*Document, error) {
	def, mgr, store, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	doc, err := mgr.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cross-check the blob before clearing deleted_at: restoring a record
	// whose blob is gone would resurrect a dangling document.
	exists, err := store.Exists(ctx, doc.BlobPath)
	if err != nil {
		return nil, &StorageError{Backend: def.Bucket, Op: "exists", Key: doc.BlobPath, Err: err}
	}
	if !exists {
		return nil, &StorageError{Backend: def.Bucket, Op: "restore", Key: doc.BlobPath, Err: ErrBlobNotFound}
	}
	return mgr.Restore(ctx, id)
}

func (s *service) List(ctx context.Context, contentType string, opts ListOptions) (*Page, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	return mgr.List(ctx, opts)
}

func (s *service) Search(ctx context.Context, contentType string, criteria SearchCriteria) (*Page, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	return mgr.Search(ctx, criteria)
}

func (s *service) Tags(ctx context.Context, contentType string) ([]string, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	return mgr.DistinctTags(ctx, VisibilityActive)
}

func (s *service) UpdateTags(ctx context.Context, contentType, id string, tags []string, op TagOperation) (*Document, error) {
	_, mgr, _, err := s.resolve(contentType)
	if err != nil {
		return nil, err
	}
	doc, err := mgr.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	current := map[string]bool{}
	for _, t := range doc.Tags {
		current[t] = true
	}
	switch op {
	case TagSet:
		current = map[string]bool{}
		for _, t := range tags {
			current[t] = true
		}
	case TagAdd:
		for _, t := range tags {
			current[t] = true
		}
	case TagRemove:
		for _, t := range tags {
			delete(current, t)
		}
	default:
		return nil, &ValidationError{Field: "operation", Reason: fmt.Sprintf("unknown tag operation %q", op)}
	}

	next := make([]string, 0, len(current))
	for t := range current {
		next = append(next, t)
	}
	sort.Strings(next)
	return mgr.Update(ctx, id, map[string]any{FieldTags: next})
}

// splitMetadata separates the tags entry from the remaining metadata fields.
func splitMetadata(metadata map[string]any) ([]string, map[string]any, error) {
	fields := make(map[string]any, len(metadata))
	var tags []string
	for k, v := range metadata {
		if k == FieldTags {
			var err error
			tags, err = toStringSlice(v)
			if err != nil {
				return nil, nil, &ValidationError{Field: FieldTags, Reason: err.Error()}
			}
			continue
		}
		fields[k] = v
	}
	return tags, fields, nil
}

// countingReader counts the bytes the blob store consumed so the document
// can record the blob size without buffering the content.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
