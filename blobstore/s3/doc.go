// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
//	store, err := s3.New(ctx, "my-bucket", "datasets/imagenet/", "")
//	if err != nil { ... }
//	it := imbin.New(cfg, imbin.WithStore(store))
//
// Shards are read with ranged GETs, written through the multipart uploader
// of feature/s3/manager and listed with automatic pagination. Wrap the store
// in blobstore.CachingStore to avoid downloading every shard again each epoch.
package s3
