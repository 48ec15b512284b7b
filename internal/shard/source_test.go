package shard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = page.MinSize

// object returns a 30-byte payload, so every page holds exactly one object.
func object(shard string, i int) []byte {
	s := fmt.Sprintf("%s/%d", shard, i)
	return []byte(s + strings.Repeat(".", 30-len(s)))
}

func writeShard(t *testing.T, store blobstore.BlobStore, name string, objects int) {
	t.Helper()
	w, err := NewWriter(t.Context(), store, name, testPageSize)
	require.NoError(t, err)
	for i := range objects {
		require.NoError(t, w.Add(object(name, i)))
	}
	m, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, int64(objects), m.Pages)
}

// pass reads pages until Next reports false and returns the first-object
// prefix of every page.
func pass(t *testing.T, src *Source) []string {
	t.Helper()
	p, err := src.Create()
	require.NoError(t, err)

	var got []string
	for range 1000 {
		ok, err := src.Next(t.Context(), p)
		require.NoError(t, err)
		if !ok {
			return got
		}
		require.Equal(t, 1, p.Len())
		got = append(got, strings.TrimRight(string(p.At(0)), "."))
	}
	t.Fatal("pass did not terminate")
	return nil
}

func TestSource_ExhaustionCardinality(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		for _, pages := range []int{0, 1, 3} {
			t.Run(fmt.Sprintf("K=%d/P=%d", k, pages), func(t *testing.T) {
				store := blobstore.NewMemoryStore()
				var names []string
				for i := range k {
					name := fmt.Sprintf("s%d.bin", i)
					writeShard(t, store, name, pages)
					names = append(names, name)
				}

				src, err := New(store, names, Options{PageSize: testPageSize})
				require.NoError(t, err)
				defer src.Close()
				require.NoError(t, src.Ready(t.Context()))

				for epoch := range 3 {
					got := pass(t, src)
					assert.Len(t, got, k*pages, "epoch %d", epoch)
					require.NoError(t, src.BeforeFirst(t.Context()))
				}
			})
		}
	}
}

func TestSource_OrderAcrossShards(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeShard(t, store, "a.bin", 2)
	writeShard(t, store, "b.bin", 1)

	src, err := New(store, []string{"a.bin", "b.bin"}, Options{PageSize: testPageSize})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))

	assert.Equal(t, []string{"a.bin/0", "a.bin/1", "b.bin/0"}, pass(t, src))
	assert.Equal(t, 0, src.Cursor())
}

func TestSource_SkipsEmptyShards(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeShard(t, store, "e0.bin", 0)
	writeShard(t, store, "a.bin", 2)
	writeShard(t, store, "e1.bin", 0)
	writeShard(t, store, "b.bin", 1)
	store.Put("e2.bin", nil)

	src, err := New(store, []string{"e0.bin", "a.bin", "e1.bin", "b.bin", "e2.bin"}, Options{PageSize: testPageSize})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))

	want := []string{"a.bin/0", "a.bin/1", "b.bin/0"}
	assert.Equal(t, want, pass(t, src))
	require.NoError(t, src.BeforeFirst(t.Context()))
	assert.Equal(t, want, pass(t, src))
}

func TestSource_RewindPolicies(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeShard(t, store, "a.bin", 1)
	writeShard(t, store, "b.bin", 1)
	writeShard(t, store, "c.bin", 1)
	names := []string{"a.bin", "b.bin", "c.bin"}

	t.Run("full", func(t *testing.T) {
		src, err := New(store, names, Options{PageSize: testPageSize, Rewind: RewindFull})
		require.NoError(t, err)
		defer src.Close()
		require.NoError(t, src.Ready(t.Context()))

		first := pass(t, src)
		require.NoError(t, src.BeforeFirst(t.Context()))
		assert.Equal(t, first, pass(t, src))
	})

	t.Run("current", func(t *testing.T) {
		src, err := New(store, names, Options{PageSize: testPageSize, Rewind: RewindCurrent})
		require.NoError(t, err)
		defer src.Close()
		require.NoError(t, src.Ready(t.Context()))

		assert.Equal(t, []string{"a.bin/0", "b.bin/0", "c.bin/0"}, pass(t, src))
		require.NoError(t, src.BeforeFirst(t.Context()))
		// The last shard stays open across the wrap, so it is read again
		// and the first shard is skipped.
		assert.Equal(t, []string{"c.bin/0", "b.bin/0", "c.bin/0"}, pass(t, src))
	})

	t.Run("current pinned", func(t *testing.T) {
		src, err := New(store, names, Options{PageSize: testPageSize, Rewind: RewindCurrent})
		require.NoError(t, err)
		defer src.Close()
		require.NoError(t, src.Ready(t.Context()))

		p, err := src.Create()
		require.NoError(t, err)
		for range 3 {
			ok, err := src.Next(t.Context(), p)
			require.NoError(t, err)
			require.True(t, ok)
		}
		require.Equal(t, 2, src.Cursor())

		// The reader is still on shard 0 while the source reached shard 2.
		require.NoError(t, src.RewindTo(0, 0))
		require.NoError(t, src.BeforeFirst(t.Context()))
		assert.Equal(t, []string{"a.bin/0", "b.bin/0", "c.bin/0"}, pass(t, src))

		// The pin is used once.
		require.NoError(t, src.BeforeFirst(t.Context()))
		assert.Equal(t, []string{"c.bin/0", "b.bin/0", "c.bin/0"}, pass(t, src))

		assert.Error(t, src.RewindTo(3, 0))
		assert.Error(t, src.RewindTo(0, -1))
	})

	t.Run("full ignores pin", func(t *testing.T) {
		src, err := New(store, names, Options{PageSize: testPageSize, Rewind: RewindFull})
		require.NoError(t, err)
		defer src.Close()
		require.NoError(t, src.Ready(t.Context()))

		require.NoError(t, src.RewindTo(2, 2))
		require.NoError(t, src.BeforeFirst(t.Context()))
		assert.Equal(t, []string{"a.bin/0", "b.bin/0", "c.bin/0"}, pass(t, src))
	})

	t.Run("current single shard", func(t *testing.T) {
		src, err := New(store, names[:1], Options{PageSize: testPageSize, Rewind: RewindCurrent})
		require.NoError(t, err)
		defer src.Close()
		require.NoError(t, src.Ready(t.Context()))

		assert.Equal(t, []string{"a.bin/0"}, pass(t, src))
		require.NoError(t, src.BeforeFirst(t.Context()))
		assert.Equal(t, []string{"a.bin/0"}, pass(t, src))
	})
}

func TestSource_Compressed(t *testing.T) {
	store := blobstore.NewMemoryStore()
	names := []string{"raw.bin", "z.bin.zst", "l.bin.lz4"}
	for _, n := range names {
		writeShard(t, store, n, 2)
	}

	src, err := New(store, names, Options{PageSize: testPageSize})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))

	assert.Equal(t, []string{
		"raw.bin/0", "raw.bin/1",
		"z.bin.zst/0", "z.bin.zst/1",
		"l.bin.lz4/0", "l.bin.lz4/1",
	}, pass(t, src))
}

func TestSource_Throttled(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeShard(t, store, "a.bin", 3)

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	src, err := New(store, []string{"a.bin"}, Options{PageSize: testPageSize, Resource: rc})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))
	assert.Len(t, pass(t, src), 3)
}

func TestSource_Truncated(t *testing.T) {
	store := blobstore.NewMemoryStore()
	store.Put("bad.bin", make([]byte, testPageSize+10))

	src, err := New(store, []string{"bad.bin"}, Options{PageSize: testPageSize})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))

	p, _ := src.Create()
	ok, err := src.Next(t.Context(), p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, p.Len())

	_, err = src.Next(t.Context(), p)
	assert.ErrorIs(t, err, page.ErrTruncated)
	assert.Contains(t, err.Error(), "bad.bin")
}

func TestSource_OpenErrors(t *testing.T) {
	store := blobstore.NewMemoryStore()

	_, err := New(store, nil, Options{})
	assert.ErrorIs(t, err, ErrNoShards)

	_, err = New(store, []string{"x"}, Options{PageSize: 8})
	assert.ErrorIs(t, err, page.ErrInvalidSize)

	src, err := New(store, []string{"missing.bin"}, Options{PageSize: testPageSize})
	require.NoError(t, err)
	assert.ErrorIs(t, src.Ready(t.Context()), blobstore.ErrNotFound)
	require.NoError(t, src.Close())
}

func TestSource_OnOpen(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeShard(t, store, "a.bin", 1)
	writeShard(t, store, "b.bin", 1)

	var opened []string
	src, err := New(store, []string{"a.bin", "b.bin"}, Options{
		PageSize: testPageSize,
		OnOpen:   func(_ int, name string, _ int64) { opened = append(opened, name) },
	})
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Ready(t.Context()))
	pass(t, src)
	assert.Equal(t, []string{"a.bin", "b.bin"}, opened)
}

func TestSource_LocalStore(t *testing.T) {
	store := blobstore.NewLocalStore(t.TempDir())
	writeShard(t, store, "train/a.bin.zst", 2)

	src, err := New(store, []string{"train/a.bin.zst"}, Options{PageSize: testPageSize})
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Ready(t.Context()))
	assert.Equal(t, []string{"train/a.bin.zst/0", "train/a.bin.zst/1"}, pass(t, src))
}
