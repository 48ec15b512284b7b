// Package mmap provides read-only memory-mapped files for shard reads.
//
//	m, err := mmap.Open("train-000.bin")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// On Unix the file is mapped with mmap(2) and access hints go through
// madvise(2). Other platforms read the file into memory and ignore hints.
//
// A Mapping is safe for concurrent reads. Close is idempotent; callers must
// not touch slices returned by Bytes after Close returns.
package mmap
