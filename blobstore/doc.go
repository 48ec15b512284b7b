// Package blobstore provides the storage abstraction shards are read from.
//
// BlobStore is the interface for reading and writing immutable blobs (shards,
// list files, manifests). Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, reads through read-only mmap
//   - MemoryStore: in-process map, for tests
//   - CachingStore: block cache in front of any other store
//   - minio.Store: MinIO and S3-compatible object stores
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Shard sources only ever call Blob.ReadRange(ctx, 0, Size()), so a remote
// backend needs one streaming GET per shard per epoch.
package blobstore
