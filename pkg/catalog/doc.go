// Package catalog implements a content catalog that stores binary blobs in an
// object store while keeping queryable metadata documents in a separate
// document index.
//
// The package is organized around four pieces:
//
//   - Registry: static per-content-type configuration (extensions, required
//     metadata, bucket and collection names).
//   - storagepath: deterministic date-based blob keys.
//   - MetadataManager: the document-index side (create, update, soft delete,
//     restore, list, search).
//   - Service: the content manager orchestrating blob and document writes.
//
// Storage backends (memory, fs, s3, minio) and document stores (memory,
// postgres) plug in behind the BlobStore and DocumentStore interfaces.
package catalog
