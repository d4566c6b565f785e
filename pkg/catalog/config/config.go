// Package config assembles a catalog.Service from declarative configuration:
// library defaults, environment variables, and an optional YAML file of
// content type definitions.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platformkit/content-catalog/pkg/catalog"
	"github.com/platformkit/content-catalog/pkg/catalog/admin"
	storememory "github.com/platformkit/content-catalog/pkg/catalog/store/memory"
	storepg "github.com/platformkit/content-catalog/pkg/catalog/store/postgres"
	fsstorage "github.com/platformkit/content-catalog/pkg/catalog/storage/fs"
	memorystorage "github.com/platformkit/content-catalog/pkg/catalog/storage/memory"
	miniostorage "github.com/platformkit/content-catalog/pkg/catalog/storage/minio"
	s3storage "github.com/platformkit/content-catalog/pkg/catalog/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		StorageType:  "memory",
		FSBaseDir:    "./data/storage",
	}
}

// ServerConfig represents server configuration for the content catalog
// service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseType string // "memory", "postgres"
	DatabaseURL  string

	// Storage configuration. One backend type serves all registry buckets;
	// s3 and minio get a client per bucket.
	StorageType string // "memory", "fs", "s3", "minio"
	FSBaseDir   string
	S3          S3Config
	Minio       MinioConfig

	// ContentTypes overrides the built-in content type definitions.
	ContentTypes []catalog.TypeDefinition
}

// S3Config holds the shared S3 connection settings.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBuckets   bool
}

// MinioConfig holds the shared MinIO connection settings.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	CreateBuckets   bool
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs base directory is required when using fs storage")
		}
	case "s3":
	case "minio":
		if c.Minio.Endpoint == "" {
			return errors.New("minio endpoint is required when using minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
	return nil
}

// Registry builds the content type registry from the configuration.
func (c *ServerConfig) Registry() (*catalog.Registry, error) {
	if len(c.ContentTypes) == 0 {
		return catalog.DefaultRegistry(), nil
	}
	return catalog.NewRegistry(c.ContentTypes...)
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService() (catalog.Service, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}

	options := []catalog.Option{catalog.WithRegistry(registry)}

	docs, err := c.buildDocumentStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build document store: %w", err)
	}
	options = append(options, catalog.WithDocumentStore(docs))

	for _, bucket := range registry.Buckets() {
		store, err := c.buildBlobStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage for bucket %s: %w", bucket, err)
		}
		options = append(options, catalog.WithBlobStore(bucket, store))
	}

	return catalog.New(options...)
}

func (c *ServerConfig) buildDocumentStore() (catalog.DocumentStore, error) {
	switch c.DatabaseType {
	case "memory":
		return storememory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return storepg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildBlobStore(bucket string) (catalog.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: fmt.Sprintf("%s/%s", c.FSBaseDir, bucket),
		})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBuckets,
		})
	case "minio":
		return miniostorage.New(miniostorage.Config{
			Endpoint:               c.Minio.Endpoint,
			Bucket:                 bucket,
			AccessKeyID:            c.Minio.AccessKeyID,
			SecretAccessKey:        c.Minio.SecretAccessKey,
			UseSSL:                 c.Minio.UseSSL,
			CreateBucketIfNotExist: c.Minio.CreateBuckets,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// BuildReconciler wires an admin.Reconciler over the same stores BuildService
// would use, without the request-path service around them.
func (c *ServerConfig) BuildReconciler(logger *slog.Logger) (*admin.Reconciler, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}

	docs, err := c.buildDocumentStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build document store: %w", err)
	}

	stores := make(map[string]catalog.BlobStore)
	for _, bucket := range registry.Buckets() {
		store, err := c.buildBlobStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage for bucket %s: %w", bucket, err)
		}
		stores[bucket] = store
	}

	return admin.New(registry, stores, docs, logger), nil
}

// PingPostgres verifies connectivity to Postgres before the server starts
// serving. Fails fast on a bad DATABASE_URL.
func PingPostgres(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
