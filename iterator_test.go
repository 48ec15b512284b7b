package imbin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newIterator(t *testing.T, cfg Config, store blobstore.BlobStore, opts ...Option) *Iterator {
	t.Helper()
	it := New(cfg, append([]Option{WithStore(store), WithLogger(NoopLogger())}, opts...)...)
	require.NoError(t, it.Init(t.Context()))
	t.Cleanup(func() { _ = it.Close() })
	return it
}

func TestIteratorOrder(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
	}{
		{"single", []int{9}},
		{"multi", []int{5, 7, 3}},
		{"empty pair", []int{4, 0, 6}},
		{"large", []int{40, 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			cfg, want := buildDataset(t, store, tt.counts, "")
			it := newIterator(t, cfg, store)

			got := pass(t, it)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Index, got[i].Index)
				assert.InDelta(t, want[i].Label, got[i].Label, 1e-6)
			}
		})
	}
}

func TestIteratorEndOfEpochIsSticky(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{3, 2}, "")
	it := newIterator(t, cfg, store)

	require.Len(t, pass(t, it), len(want))
	for range 3 {
		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, it.Epoch())
}

func TestIteratorEpochRestart(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{30}, "")
	it := newIterator(t, cfg, store)

	first := pass(t, it)
	require.Equal(t, indexesOf(want), indexesOf(first))

	require.NoError(t, it.BeforeFirst(t.Context()))
	assert.Equal(t, first, pass(t, it))

	// Partial traversal, then restart.
	require.NoError(t, it.BeforeFirst(t.Context()))
	for range 11 {
		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, it.BeforeFirst(t.Context()))
	require.NoError(t, it.BeforeFirst(t.Context()))
	assert.Equal(t, first, pass(t, it))
}

func TestIteratorRewindPolicies(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{2, 3, 4}, "")
	a, b, c := indexesOf(want[:2]), indexesOf(want[2:5]), indexesOf(want[5:])

	t.Run("full", func(t *testing.T) {
		it := newIterator(t, cfg, store)
		first := indexesOf(pass(t, it))
		require.NoError(t, it.BeforeFirst(t.Context()))
		assert.Equal(t, first, indexesOf(pass(t, it)))
	})

	t.Run("current", func(t *testing.T) {
		cur := cfg
		cur.Rewind = shard.RewindCurrent.String()
		it := newIterator(t, cur, store)

		assert.Equal(t, concat(a, b, c), indexesOf(pass(t, it)))

		// The open pair restarts, then the cursor continues from pair 1.
		require.NoError(t, it.BeforeFirst(t.Context()))
		assert.Equal(t, concat(c, b, c), indexesOf(pass(t, it)))
	})

	t.Run("current mid pass", func(t *testing.T) {
		cur := cfg
		cur.Rewind = shard.RewindCurrent.String()
		cur.BufferSize = 4
		it := newIterator(t, cur, store)

		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)

		// Let the producer read every remaining shard while the consumer is
		// still on the first list.
		require.Eventually(t, func() bool {
			return it.Stats().Filled == 2
		}, 5*time.Second, time.Millisecond)

		// pass checks every tensor against its index, so a list paired with
		// the wrong shard fails here.
		require.NoError(t, it.BeforeFirst(t.Context()))
		assert.Equal(t, concat(a, b, c), indexesOf(pass(t, it)))

		// After a full epoch the pass runs c, b, c. Stop on the first record
		// of b while the producer already holds the last c page.
		require.NoError(t, it.BeforeFirst(t.Context()))
		for range len(c) + 1 {
			ok, err := it.Next(t.Context())
			require.NoError(t, err)
			require.True(t, ok)
		}
		require.Equal(t, b[0], it.Value().Index)
		require.Eventually(t, func() bool {
			return it.Stats().Filled == 1
		}, 5*time.Second, time.Millisecond)

		require.NoError(t, it.BeforeFirst(t.Context()))
		assert.Equal(t, concat(b, c), indexesOf(pass(t, it)))
	})
}

func concat(parts ...[]uint32) []uint32 {
	var out []uint32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestIteratorMismatchedPairCount(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2, 2}, "")
	cfg.ImageBin = cfg.ImageBin[:1]

	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	err := it.Init(t.Context())

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "image_bin", ce.Field)

	_, err = it.Next(t.Context())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestIteratorVerifyCounts(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2, 3}, "")
	require.NoError(t, blobstore.WriteAll(t.Context(), store, cfg.ImageList[1], []byte("1 0\n2 0\n")))
	cfg.VerifyCounts = true

	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	err := it.Init(t.Context())

	var cm *CountMismatchError
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, cfg.ImageList[1], cm.List)
	assert.Equal(t, int64(2), cm.Records)
	assert.Equal(t, int64(3), cm.Objects)
}

func TestIteratorShardExhausted(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")
	require.NoError(t, blobstore.WriteAll(t.Context(), store, cfg.ImageList[0], []byte("1 0\n4 0\n7 0\n")))
	it := newIterator(t, cfg, store)

	for range 2 {
		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, err := it.Next(t.Context())
	require.ErrorIs(t, err, ErrShardExhausted)

	_, err = it.Next(t.Context())
	require.ErrorIs(t, err, ErrShardExhausted)
	require.ErrorIs(t, it.BeforeFirst(t.Context()), ErrShardExhausted)
}

func TestIteratorDecodeFailure(t *testing.T) {
	store := blobstore.NewMemoryStore()
	w, err := shard.NewWriter(t.Context(), store, "bad.bin", testPageSize)
	require.NoError(t, err)
	require.NoError(t, w.Add(encodePNG(t, 1, 1, 1, 2, 3)))
	require.NoError(t, w.Add([]byte("not an image")))
	_, err = w.Close()
	require.NoError(t, err)
	require.NoError(t, blobstore.WriteAll(t.Context(), store, "bad.lst", []byte("10 1\n11 1\n")))

	cfg := DefaultConfig()
	cfg.ImageList = []string{"bad.lst"}
	cfg.ImageBin = []string{"bad.bin"}
	cfg.PageSize = testPageSize
	cfg.Silent = true

	metrics := &BasicMetricsCollector{}
	it := newIterator(t, cfg, store, WithMetricsCollector(metrics))

	ok, err := it.Next(t.Context())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = it.Next(t.Context())
	require.ErrorIs(t, err, ErrDecode)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint32(11), de.Index)
	assert.Equal(t, len("not an image"), de.Size)

	_, err = it.Next(t.Context())
	require.ErrorIs(t, err, ErrDecode)

	st := metrics.GetStats()
	assert.Equal(t, int64(2), st.SampleCount)
	assert.Equal(t, int64(1), st.SampleErrors)
}

func TestIteratorMalformedList(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")
	require.NoError(t, blobstore.WriteAll(t.Context(), store, cfg.ImageList[0], []byte("1 0\n\nbogus line\n")))
	it := newIterator(t, cfg, store)

	ok, err := it.Next(t.Context())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = it.Next(t.Context())
	var le *ListError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Line)
}

type mockDecoder struct {
	mock.Mock
}

func (m *mockDecoder) Decode(data, dst []byte) (Pixels, error) {
	args := m.Called(data, dst)
	return args.Get(0).(Pixels), args.Error(1)
}

func TestIteratorChannelReorder(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{1}, "")

	t.Run("native order reversed", func(t *testing.T) {
		dec := &mockDecoder{}
		dec.On("Decode", mock.Anything, mock.Anything).
			Return(Pixels{Width: 1, Height: 1, Pix: []byte{1, 2, 3}}, nil).Once()

		it := newIterator(t, cfg, store, WithDecoder(dec))
		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)

		s := it.Value()
		assert.Equal(t, Tensor{C: 3, H: 1, W: 1, Data: []float32{3, 2, 1}}, s.Data)
		dec.AssertExpectations(t)
	})

	t.Run("image decoder yields rgb", func(t *testing.T) {
		require.NoError(t, blobstore.WriteAll(t.Context(), store, "px.lst", []byte("0 0\n")))
		w, err := shard.NewWriter(t.Context(), store, "px.bin", testPageSize)
		require.NoError(t, err)
		require.NoError(t, w.Add(encodePNG(t, 1, 1, 10, 20, 30)))
		_, err = w.Close()
		require.NoError(t, err)

		px := cfg
		px.ImageList = []string{"px.lst"}
		px.ImageBin = []string{"px.bin"}
		it := newIterator(t, px, store)

		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []float32{10, 20, 30}, it.Value().Data.Data)
	})
}

func TestIteratorSamples(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{4, 4}, "")
	it := newIterator(t, cfg, store)

	var got []uint32
	for s, err := range it.Samples(t.Context()) {
		require.NoError(t, err)
		got = append(got, s.Index)
	}
	assert.Equal(t, indexesOf(want), got)

	require.NoError(t, it.BeforeFirst(t.Context()))
	n := 0
	for range it.Samples(t.Context()) {
		n++
		if n == 3 {
			break
		}
	}
	ok, err := it.Next(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want[3].Index, it.Value().Index)
}

func TestIteratorLifecycle(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")

	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	_, err := it.Next(t.Context())
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, it.BeforeFirst(t.Context()), ErrNotInitialized)

	require.NoError(t, it.Init(t.Context()))
	require.ErrorIs(t, it.Init(t.Context()), ErrAlreadyInitialized)
	assert.Equal(t, cfg.BufferSize, it.Stats().Allocated)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	_, err = it.Next(t.Context())
	require.ErrorIs(t, err, ErrClosed)
}

func TestIteratorBoundedLookahead(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{200}, "")

	for _, b := range []int{1, 2, 4} {
		bc := cfg
		bc.BufferSize = b
		it := newIterator(t, bc, store)

		for {
			ok, err := it.Next(t.Context())
			require.NoError(t, err)
			if !ok {
				break
			}
			st := it.Stats()
			require.Equal(t, b, st.Allocated)
			require.LessOrEqual(t, st.Filled+st.Held, b)
		}
		assert.LessOrEqual(t, it.Stats().HighWater, b)
	}
}

func TestIteratorMemoryLimit(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")
	cfg.BufferSize = 4
	cfg.MemoryLimitBytes = 3 * testPageSize

	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	require.ErrorIs(t, it.Init(t.Context()), resource.ErrMemoryLimitExceeded)
	require.NoError(t, it.Close())
}

func TestIteratorMissingShard(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")
	cfg.ImageBin = []string{"missing.bin"}

	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	require.ErrorIs(t, it.Init(t.Context()), blobstore.ErrNotFound)
}

func TestIteratorLocalCompressedWithCache(t *testing.T) {
	for _, ext := range []string{".zst", ".lz4"} {
		t.Run(ext, func(t *testing.T) {
			store := blobstore.NewLocalStore(t.TempDir())
			cfg, want := buildDataset(t, store, []int{12, 9}, ext)
			cfg.CacheDir = t.TempDir()
			cfg.CacheBytes = 1 << 20
			cfg.IOLimitBytesPerSec = 1 << 20

			metrics := &BasicMetricsCollector{}
			it := newIterator(t, cfg, store, WithMetricsCollector(metrics))
			for range 2 {
				assert.Equal(t, indexesOf(want), indexesOf(pass(t, it)))
				require.NoError(t, it.BeforeFirst(t.Context()))
			}

			st := metrics.GetStats()
			assert.Equal(t, int64(2*len(want)), st.SampleCount)
			assert.Equal(t, int64(2), st.EpochCount)
			assert.Positive(t, st.ShardOpens)
		})
	}
}

func TestIteratorMemoryCache(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{10}, ".zst")
	cfg.CacheBytes = 1 << 20
	it := newIterator(t, cfg, store)

	assert.Equal(t, indexesOf(want), indexesOf(pass(t, it)))
}

func TestIteratorInitOutlivesContext(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{20}, "")

	ctx, cancel := context.WithCancel(t.Context())
	it := New(cfg, WithStore(store), WithLogger(NoopLogger()))
	require.NoError(t, it.Init(ctx))
	defer it.Close()
	cancel()

	got := pass(t, it)
	assert.Equal(t, indexesOf(want), indexesOf(got))
	assert.False(t, errors.Is(it.err, context.Canceled))
}
