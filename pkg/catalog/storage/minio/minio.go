// Package minio provides a BlobStore on MinIO through its native client.
// For S3-proper deployments use the s3 package; this backend is the usual
// choice for self-hosted object storage.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/platformkit/content-catalog/pkg/catalog"
)

// Config options for the MinIO backend.
type Config struct {
	Endpoint        string // host:port, no scheme
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	// CreateBucketIfNotExist creates the bucket at startup.
	CreateBucketIfNotExist bool
}

// Backend is a MinIO implementation of the BlobStore contract.
type Backend struct {
	client *minio.Client
	bucket string
}

// New creates a MinIO storage backend.
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	backend := &Backend{client: client, bucket: config.Bucket}

	if config.CreateBucketIfNotExist {
		ctx := context.Background()
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	}
	return backend, nil
}

func (b *Backend) Upload(ctx context.Context, reader io.Reader, params catalog.UploadParams) error {
	if !params.Overwrite {
		exists, err := b.Exists(ctx, params.Key)
		if err != nil {
			return err
		}
		if exists {
			return catalog.ErrBlobExists
		}
	}

	opts := putOptions(params)
	// Size -1 streams with multipart; the blob size is recorded by the caller.
	if _, err := b.client.PutObject(ctx, b.bucket, params.Key, reader, -1, opts); err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}
	return nil
}

// putOptions translates upload params into client options. The canned ACL
// rides in user metadata; the client forwards x-amz-acl as a request header.
func putOptions(params catalog.UploadParams) minio.PutObjectOptions {
	opts := minio.PutObjectOptions{ContentType: params.MimeType}
	if params.Access == catalog.AccessPublic {
		opts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	return opts
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from minio: %w", err)
	}
	// GetObject is lazy; stat to surface missing keys now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, catalog.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to stat minio object: %w", err)
	}
	return obj, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return catalog.ErrBlobNotFound
	}

	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from minio: %w", err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat minio object: %w", err)
	}
	return true, nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list minio objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (b *Backend) PresignPut(ctx context.Context, key, mimeType string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedPutObject(ctx, b.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	return u.String(), nil
}
