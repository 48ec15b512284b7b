package blobstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/hupe1980/imbin/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBlob struct {
	data      []byte
	reads     int
	readBytes int
}

func (m *mockBlob) Close() error { return nil }
func (m *mockBlob) Size() int64  { return int64(len(m.data)) }
func (m *mockBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.reads++
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	m.readBytes += n
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
func (m *mockBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data[off : off+length])), nil
}

type mockStore struct {
	blobs map[string]*mockBlob
}

func (m *mockStore) Open(_ context.Context, name string) (Blob, error) {
	if b, ok := m.blobs[name]; ok {
		return b, nil
	}
	return nil, ErrNotFound
}
func (m *mockStore) Create(context.Context, string) (WritableBlob, error) { return nil, nil }
func (m *mockStore) Delete(context.Context, string) error                 { return nil }
func (m *mockStore) List(context.Context, string) ([]string, error)       { return nil, nil }

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := t.Context()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 255)
	}
	inner := &mockStore{blobs: map[string]*mockBlob{"test": {data: data}}}
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), 256)

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)

	mBlob := inner.blobs["test"]
	assert.Equal(t, 1, mBlob.reads)
	assert.Equal(t, 256, mBlob.readBytes)

	// Same range again is a cache hit.
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, mBlob.reads)

	// Spanning blocks 0 and 1: only block 1 is fetched.
	n, err = blob.ReadAt(ctx, buf, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[200:300], buf)
	assert.Equal(t, 2, mBlob.reads)
	assert.Equal(t, 512, mBlob.readBytes)
}

func TestCachingStore_SmallFile(t *testing.T) {
	ctx := t.Context()
	data := []byte("hello")
	inner := &mockStore{blobs: map[string]*mockBlob{"small": {data: data}}}
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 256)

	blob, err := store.Open(ctx, "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data, buf[:n])
}

func TestCachingStore_ReadRangeSecondPassFromCache(t *testing.T) {
	ctx := t.Context()
	data := bytes.Repeat([]byte("0123456789"), 100)
	inner := &mockStore{blobs: map[string]*mockBlob{"shard": {data: data}}}
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), 64)
	defer store.Close()

	readAll := func() []byte {
		blob, err := store.Open(ctx, "shard")
		require.NoError(t, err)
		defer blob.Close()
		r, err := blob.ReadRange(ctx, 0, blob.Size())
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, data, readAll())
	reads := inner.blobs["shard"].reads
	assert.Equal(t, data, readAll())
	assert.Equal(t, reads, inner.blobs["shard"].reads, "second epoch must not touch the inner store")
}
