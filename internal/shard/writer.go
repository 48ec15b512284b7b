package shard

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/compress"
	ihash "github.com/hupe1980/imbin/internal/hash"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/page"
)

// Writer packs objects into a new shard. The stream codec is chosen from the
// shard name suffix, the same way Source picks the decoder.
type Writer struct {
	ctx   context.Context
	store blobstore.BlobStore
	name  string
	kind  compress.Kind

	blob  blobstore.WritableBlob
	sum   hash.Hash32
	enc   io.WriteCloser
	pages *page.Writer

	closed bool
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	rc *resource.Controller
}

// WithWriteLimit throttles the stored bytes through the IO limit of rc.
func WithWriteLimit(rc *resource.Controller) WriterOption {
	return func(o *writerOptions) { o.rc = rc }
}

// NewWriter creates the shard blob name in store.
func NewWriter(ctx context.Context, store blobstore.BlobStore, name string, pageSize int, opts ...WriterOption) (*Writer, error) {
	var wo writerOptions
	for _, fn := range opts {
		fn(&wo)
	}
	if pageSize == 0 {
		pageSize = page.DefaultSize
	}
	if err := page.Validate(pageSize); err != nil {
		return nil, err
	}

	blob, err := store.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("shard: create %s: %w", name, err)
	}
	kind := compress.ForName(name)
	sum := ihash.NewCRC32C()
	dst := resource.NewRateLimitedWriter(ctx, io.MultiWriter(blob, sum), wo.rc)
	enc, err := compress.NewWriter(kind, dst)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	pw, err := page.NewWriter(enc, pageSize)
	if err != nil {
		_ = enc.Close()
		_ = blob.Close()
		return nil, err
	}

	return &Writer{
		ctx:   ctx,
		store: store,
		name:  name,
		kind:  kind,
		blob:  blob,
		sum:   sum,
		enc:   enc,
		pages: pw,
	}, nil
}

// Add appends one object.
func (w *Writer) Add(obj []byte) error {
	return w.pages.Add(obj)
}

// Objects returns the number of objects added so far.
func (w *Writer) Objects() int { return w.pages.Objects() }

// Close flushes the last page, commits the shard and writes its manifest.
func (w *Writer) Close() (*Manifest, error) {
	if w.closed {
		return nil, errors.New("shard: writer already closed")
	}
	w.closed = true

	if err := w.pages.Close(); err != nil {
		_ = w.enc.Close()
		_ = w.blob.Close()
		return nil, err
	}
	if err := w.enc.Close(); err != nil {
		_ = w.blob.Close()
		return nil, fmt.Errorf("shard: flush %s: %w", w.name, err)
	}
	if err := w.blob.Sync(); err != nil {
		_ = w.blob.Close()
		return nil, err
	}
	if err := w.blob.Close(); err != nil {
		return nil, fmt.Errorf("shard: commit %s: %w", w.name, err)
	}

	m := &Manifest{
		Version:     ManifestVersion,
		Shard:       w.name,
		PageSize:    w.pages.Size(),
		Pages:       int64(w.pages.Pages()),
		Objects:     int64(w.pages.Objects()),
		Compression: w.kind.String(),
		Checksum:    w.sum.Sum32(),
		Created:     time.Now().UTC(),
	}
	if err := WriteManifest(w.ctx, w.store, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Abort discards the shard. It is a no-op after Close.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.enc.Close()
	_ = w.blob.Close()
	return w.store.Delete(w.ctx, w.name)
}
