package imbin

import (
	"testing"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyDataset(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, want := buildDataset(t, store, []int{5, 0, 8}, "")
	cfg.VerifyWorkers = 2

	report, err := VerifyDataset(t.Context(), cfg, WithStore(store), WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, int64(len(want)), report.Records)
	assert.Equal(t, uint64(len(want)), report.Distinct)
	assert.Zero(t, report.DuplicateCount)
	assert.Empty(t, report.Mismatches())

	require.Len(t, report.Pairs, 3)
	for i, n := range []int64{5, 0, 8} {
		p := report.Pairs[i]
		assert.Equal(t, cfg.ImageList[i], p.List)
		assert.Equal(t, cfg.ImageBin[i], p.Shard)
		assert.Equal(t, n, p.Records)
		assert.Equal(t, n, p.Objects)
		assert.True(t, p.FromManifest)
	}
}

func TestVerifyDatasetScansWithoutManifest(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{6}, ".lz4")
	require.NoError(t, store.Delete(t.Context(), shard.ManifestName(cfg.ImageBin[0])))

	report, err := VerifyDataset(t.Context(), cfg, WithStore(store), WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.False(t, report.Pairs[0].FromManifest)
	assert.Equal(t, int64(6), report.Pairs[0].Objects)
	assert.Positive(t, report.Pairs[0].Pages)
}

func TestVerifyDatasetMismatch(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{3, 3}, "")
	store.Put(cfg.ImageList[1], []byte("100 0\n101 0\n"))

	report, err := VerifyDataset(t.Context(), cfg, WithStore(store), WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.False(t, report.OK())

	mm := report.Mismatches()
	require.Len(t, mm, 1)
	assert.Equal(t, cfg.ImageList[1], mm[0].List)
	assert.Equal(t, int64(2), mm[0].Records)
	assert.Equal(t, int64(3), mm[0].Objects)
}

func TestVerifyDatasetDuplicates(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{3, 3}, "")
	store.Put(cfg.ImageList[0], []byte("1 0\n1 0\n2 0\n"))
	store.Put(cfg.ImageList[1], []byte("2 0\n3 0\n4 0\n"))

	report, err := VerifyDataset(t.Context(), cfg, WithStore(store), WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, uint64(4), report.Distinct)
	assert.Equal(t, uint64(2), report.DuplicateCount)
	assert.Equal(t, []uint32{1, 2}, report.Duplicates)
}

func TestVerifyDatasetErrors(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cfg, _ := buildDataset(t, store, []int{2}, "")

	bad := cfg
	bad.ImageBin = nil
	_, err := VerifyDataset(t.Context(), bad, WithStore(store))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)

	missing := cfg
	missing.ImageBin = []string{"missing.bin"}
	_, err = VerifyDataset(t.Context(), missing, WithStore(store), WithLogger(NoopLogger()))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
