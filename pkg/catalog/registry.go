package catalog

import (
	"path/filepath"
	"sort"
	"strings"
)

// Default bucket and collection names. Overridable per deployment through
// the config package.
const (
	DefaultBucket = "platform-public-content"

	collectionDocuments = "platform-documents"
	collectionImages    = "platform-images"
	collectionBlog      = "platform-blog"
)

// TypeDefinition is the static configuration for one content type. Resolved
// once at startup and read-only afterwards.
type TypeDefinition struct {
	Name             string            `json:"name" yaml:"name"`
	ValidExtensions  []string          `json:"valid_extensions" yaml:"extensions"`
	RequiredMetadata []string          `json:"required_metadata" yaml:"required"`
	OptionalMetadata []string          `json:"optional_metadata" yaml:"optional"`
	DefaultMimeType  string            `json:"-" yaml:"default_mime_type"`
	MimeTypes        map[string]string `json:"-" yaml:"mime_types"`
	Bucket           string            `json:"-" yaml:"bucket"`
	Collection       string            `json:"-" yaml:"collection"`
	// TouchField, when set, names a metadata field bumped to the current
	// time on every metadata or content mutation.
	TouchField string `json:"-" yaml:"touch_field"`
}

// AllowsExtension reports whether the filename's extension is permitted.
func (d TypeDefinition) AllowsExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range d.ValidExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// MimeTypeFor resolves the MIME type for a filename from the per-extension
// map, falling back to the type default, then to octet-stream.
func (d TypeDefinition) MimeTypeFor(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if mt, ok := d.MimeTypes[ext]; ok {
		return mt
	}
	if d.DefaultMimeType != "" {
		return d.DefaultMimeType
	}
	return "application/octet-stream"
}

// Registry resolves content types to their definitions. Read-only at
// runtime and safe for concurrent use.
type Registry struct {
	defs  map[string]TypeDefinition
	order []string
}

// NewRegistry builds a registry from the given definitions. Definitions
// without a bucket inherit DefaultBucket; a definition without a collection
// is a configuration error.
func NewRegistry(defs ...TypeDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]TypeDefinition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, &ConfigurationError{Reason: "content type definition without a name"}
		}
		if def.Collection == "" {
			return nil, &ConfigurationError{ContentType: def.Name, Reason: "collection name is required"}
		}
		if len(def.ValidExtensions) == 0 {
			return nil, &ConfigurationError{ContentType: def.Name, Reason: "at least one valid extension is required"}
		}
		if def.Bucket == "" {
			def.Bucket = DefaultBucket
		}
		if _, dup := r.defs[def.Name]; dup {
			return nil, &ConfigurationError{ContentType: def.Name, Reason: "duplicate content type"}
		}
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	sort.Strings(r.order)
	return r, nil
}

// DefaultRegistry returns the built-in content types.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDefinitions()...)
	if err != nil {
		// The built-in definitions are statically valid.
		panic(err)
	}
	return r
}

// DefaultDefinitions returns the built-in content type definitions:
// PDF documents, common web image formats, and markdown blog posts.
func DefaultDefinitions() []TypeDefinition {
	return []TypeDefinition{
		{
			Name:             "documents",
			ValidExtensions:  []string{".pdf"},
			RequiredMetadata: []string{"title", "description", "tags"},
			OptionalMetadata: []string{"author", "page_count", "created_date"},
			DefaultMimeType:  "application/pdf",
			Collection:       collectionDocuments,
		},
		{
			Name:             "images",
			ValidExtensions:  []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
			RequiredMetadata: []string{"tags"},
			OptionalMetadata: []string{"description", "taken_at", "created_date"},
			MimeTypes: map[string]string{
				"jpg":  "image/jpeg",
				"jpeg": "image/jpeg",
				"png":  "image/png",
				"gif":  "image/gif",
				"webp": "image/webp",
			},
			Collection: collectionImages,
		},
		{
			Name:             "blog",
			ValidExtensions:  []string{".md", ".markdown"},
			RequiredMetadata: []string{"title", "description", "tags"},
			OptionalMetadata: []string{"author", "created_date"},
			DefaultMimeType:  "text/markdown",
			Collection:       collectionBlog,
			TouchField:       "last_modified",
		},
	}
}

// Definition resolves a content type. Unknown types fail with
// *ConfigurationError.
func (r *Registry) Definition(contentType string) (TypeDefinition, error) {
	def, ok := r.defs[contentType]
	if !ok {
		return TypeDefinition{}, &ConfigurationError{ContentType: contentType, Reason: "undefined content type"}
	}
	return def, nil
}

// Types returns the registered content type names in sorted order.
func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns all registered definitions in sorted name order.
func (r *Registry) Definitions() []TypeDefinition {
	defs := make([]TypeDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Buckets returns the distinct bucket names the registry references.
func (r *Registry) Buckets() []string {
	seen := map[string]bool{}
	var buckets []string
	for _, name := range r.order {
		b := r.defs[name].Bucket
		if !seen[b] {
			seen[b] = true
			buckets = append(buckets, b)
		}
	}
	sort.Strings(buckets)
	return buckets
}
