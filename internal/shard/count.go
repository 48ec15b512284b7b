package shard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/hash"
	"github.com/hupe1980/imbin/page"
)

// Stats holds the page and object counts of one shard.
type Stats struct {
	Pages   int64
	Objects int64
	// FromManifest reports whether the counts came from the sidecar.
	FromManifest bool
}

// Scan reads a shard front to back and counts its pages and objects.
func Scan(ctx context.Context, store blobstore.BlobStore, name string, opts Options) (Stats, error) {
	src, err := New(store, []string{name}, opts)
	if err != nil {
		return Stats{}, err
	}
	defer src.Close()

	if err := src.Ready(ctx); err != nil {
		return Stats{}, err
	}

	p, _ := src.Create()
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ok, err := src.Next(ctx, p)
		if err != nil {
			return st, err
		}
		if !ok {
			return st, nil
		}
		st.Pages++
		st.Objects += int64(p.Len())
	}
}

// Count returns the counts of a shard, from its manifest when one exists and
// matches the page size, otherwise by scanning.
func Count(ctx context.Context, store blobstore.BlobStore, name string, opts Options) (Stats, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = page.DefaultSize
	}

	m, err := ReadManifest(ctx, store, name)
	switch {
	case err == nil && m.PageSize == pageSize:
		return Stats{Pages: m.Pages, Objects: m.Objects, FromManifest: true}, nil
	case err == nil:
		return Stats{}, fmt.Errorf("shard: %s was written with page size %d, reader uses %d", name, m.PageSize, pageSize)
	case !errors.Is(err, blobstore.ErrNotFound):
		return Stats{}, err
	}
	return Scan(ctx, store, name, opts)
}

// Checksum returns the CRC32C of the stored bytes of a shard.
func Checksum(ctx context.Context, store blobstore.BlobStore, name string) (uint32, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	h := hash.NewCRC32C()
	if _, err := io.Copy(h, rc); err != nil {
		return 0, fmt.Errorf("shard: checksum %s: %w", name, err)
	}
	return h.Sum32(), nil
}
