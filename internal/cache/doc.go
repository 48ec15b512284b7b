// Package cache provides block caches for remote shard reads.
//
// Training reads every shard once per epoch. With an object store behind the
// shard list that means downloading the whole dataset again each epoch; a
// BlockCache in front of the store (see blobstore.CachingStore) turns epochs
// after the first into local reads.
//
//   - LRUBlockCache keeps blocks in RAM and charges them to a
//     resource.Controller memory budget.
//   - DiskBlockCache keeps blocks as files under a directory, writes them in
//     the background and rebuilds its index from disk on startup.
package cache
