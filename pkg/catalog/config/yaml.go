package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// typesFile is the YAML shape for content type definitions:
//
//	default_bucket: platform-public-content
//	types:
//	  - name: documents
//	    extensions: [".pdf"]
//	    required: [title, description, tags]
//	    optional: [author]
//	    default_mime_type: application/pdf
//	    collection: platform-documents
//	  - name: blog
//	    extensions: [".md", ".markdown"]
//	    required: [title, description, tags]
//	    collection: platform-blog
//	    touch_field: last_modified
type typesFile struct {
	DefaultBucket string                   `yaml:"default_bucket"`
	Types         []catalog.TypeDefinition `yaml:"types"`
}

// WithYAMLFile loads content type definitions from a YAML file, replacing
// the built-in definitions.
func WithYAMLFile(path string) Option {
	return func(c *ServerConfig) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read types file: %w", err)
		}
		return WithYAML(data)(c)
	}
}

// WithYAML loads content type definitions from YAML bytes.
func WithYAML(data []byte) Option {
	return func(c *ServerConfig) error {
		var file typesFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse types file: %w", err)
		}
		if len(file.Types) == 0 {
			return fmt.Errorf("types file defines no content types")
		}

		defs := file.Types
		if file.DefaultBucket != "" {
			for i := range defs {
				if defs[i].Bucket == "" {
					defs[i].Bucket = file.DefaultBucket
				}
			}
		}

		// Validate now so a bad file fails at load, not at BuildService.
		if _, err := catalog.NewRegistry(defs...); err != nil {
			return err
		}
		c.ContentTypes = defs
		return nil
	}
}
