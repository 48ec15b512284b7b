// Package hash provides the CRC32-Castagnoli checksum recorded in shard
// manifests.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//
// Streaming, as the shard writer does while the encoder flushes:
//
//	h := hash.NewCRC32C()
//	io.Copy(h, r)
//	sum := h.Sum32()
package hash
