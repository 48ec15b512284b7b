package imbin

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/cache"
	"github.com/hupe1980/imbin/internal/prefetch"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/hupe1980/imbin/page"
)

// Iterator yields labeled samples from (list, shard) pairs.
//
// An Iterator is driven by a single goroutine. Shard pages are read ahead by
// a background producer; list parsing and decoding happen on the caller's
// goroutine.
type Iterator struct {
	cfg  Config
	opts options

	store  blobstore.BlobStore
	cached *blobstore.CachingStore
	rc     *resource.Controller
	rewind shard.Rewind
	src    *shard.Source
	buf    *prefetch.Buffer[*page.Page]

	list     *ListReader
	listIdx  int // list the cursor points at
	openList int // list backing list

	cur  *page.Page
	ptop int

	scratch []byte
	pix     []byte
	sample  Sample

	initialized bool
	closed      bool
	ended       bool
	err         error

	epoch        int
	epochSamples int64
	epochStart   time.Time
}

// New creates an Iterator. Nothing is opened until Init.
func New(cfg Config, optFns ...Option) *Iterator {
	return &Iterator{
		cfg:      cfg.clone(),
		opts:     applyOptions(optFns),
		openList: -1,
	}
}

// Config returns the iterator configuration.
func (it *Iterator) Config() Config { return it.cfg.clone() }

// Init validates the configuration, opens the first list, starts the page
// producer and positions before the first record.
func (it *Iterator) Init(ctx context.Context) (err error) {
	switch {
	case it.closed:
		return ErrClosed
	case it.initialized:
		return ErrAlreadyInitialized
	}
	if err := it.cfg.Validate(); err != nil {
		return err
	}
	it.rewind, _ = it.cfg.rewind()

	it.rc = resource.NewController(resource.Config{
		MemoryLimitBytes:     it.cfg.MemoryLimitBytes,
		IOLimitBytesPerSec:   it.cfg.IOLimitBytesPerSec,
		MaxBackgroundWorkers: int64(it.cfg.VerifyWorkers),
	})

	defer func() {
		if err != nil {
			it.teardown()
		}
	}()

	it.store, err = it.openStore()
	if err != nil {
		return err
	}

	if it.cfg.VerifyCounts {
		if err := it.verifyCounts(ctx); err != nil {
			return err
		}
	}

	if err := it.openListAt(ctx, 0); err != nil {
		return err
	}

	log := it.opts.logger
	mc := it.opts.metricsCollector
	src, err := shard.New(it.store, it.cfg.ImageBin, shard.Options{
		PageSize: it.cfg.PageSize,
		Rewind:   it.rewind,
		Resource: it.rc,
		Logger:   log.Logger,
		OnOpen: func(index int, name string, size int64) {
			log.LogShardOpen(ctx, index, name, size)
			mc.RecordShardOpen(size)
		},
	})
	if err != nil {
		return &ConfigError{Field: "image_bin", Reason: "invalid shard list", cause: err}
	}
	if err := src.Ready(ctx); err != nil {
		_ = src.Close()
		return err
	}

	it.buf = prefetch.New[*page.Page](src, prefetch.Options{
		Size:      it.cfg.BufferSize,
		SlotBytes: int64(it.cfg.PageSize),
		Resource:  it.rc,
		Logger:    log.Logger,
		OnProduce: mc.RecordPageProduced,
		OnWait:    mc.RecordPrefetchWait,
	})
	if err := it.buf.Init(ctx); err != nil {
		_ = src.Close()
		it.buf = nil
		return err
	}
	it.src = src

	if !it.cfg.Silent {
		log.LogInit(ctx, it.cfg.ImageList, it.cfg.ImageBin, it.cfg.BufferSize, it.cfg.PageSize)
	}

	// The list and the producer were both just opened at the first pair.
	it.initialized = true
	it.resetEpoch()
	return nil
}

func (it *Iterator) openStore() (blobstore.BlobStore, error) {
	var c cache.BlockCache
	switch {
	case it.cfg.CacheDir != "":
		dc, err := cache.NewDiskBlockCache(cache.DiskCacheConfig{
			RootDir:      it.cfg.CacheDir,
			MaxSizeBytes: it.cfg.CacheBytes,
		})
		if err != nil {
			return nil, &ConfigError{Field: "cache_dir", Reason: it.cfg.CacheDir, cause: err}
		}
		c = dc
	case it.cfg.CacheBytes > 0:
		c = cache.NewLRUBlockCache(it.cfg.CacheBytes, it.rc)
	default:
		return it.opts.store, nil
	}
	it.cached = blobstore.NewCachingStore(it.opts.store, c, 0)
	return it.cached, nil
}

func (it *Iterator) verifyCounts(ctx context.Context) error {
	pairs, err := countPairs(ctx, it.store, &it.cfg, it.rc)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if p.Records != p.Objects {
			return &CountMismatchError{List: p.List, Shard: p.Shard, Records: p.Records, Objects: p.Objects}
		}
	}
	return nil
}

func (it *Iterator) openListAt(ctx context.Context, idx int) error {
	if it.list != nil {
		_ = it.list.Close()
		it.list = nil
		it.openList = -1
	}
	l, err := OpenList(ctx, it.store, it.cfg.ImageList[idx])
	if err != nil {
		return err
	}
	it.list, it.openList = l, idx
	return nil
}

// BeforeFirst rewinds to the start of an epoch. With rewind "full" iteration
// restarts at the first pair; with "current" it restarts the pair whose list
// is open, however far the page producer has read ahead, and then continues
// from the list cursor.
func (it *Iterator) BeforeFirst(ctx context.Context) error {
	if err := it.usable(); err != nil {
		return err
	}

	idx := it.openList
	if it.rewind != shard.RewindCurrent || idx < 0 {
		idx, it.listIdx = 0, 0
	}
	if err := it.openListAt(ctx, idx); err != nil {
		return it.fail(err)
	}
	if it.rewind == shard.RewindCurrent {
		if err := it.src.RewindTo(idx, it.listIdx); err != nil {
			return it.fail(err)
		}
	}
	if err := it.buf.BeforeFirst(ctx); err != nil {
		return it.fail(err)
	}

	it.resetEpoch()
	return nil
}

func (it *Iterator) resetEpoch() {
	it.cur, it.ptop = nil, 0
	it.ended = false
	it.epochSamples = 0
	it.epochStart = time.Now()
}

// Next advances to the next sample. It returns false at the end of an epoch
// and keeps returning false until BeforeFirst. Errors are fatal: once Next
// failed, every later call returns the same error.
func (it *Iterator) Next(ctx context.Context) (bool, error) {
	if err := it.usable(); err != nil {
		return false, err
	}
	if it.ended {
		return false, nil
	}

	for {
		rec, ok, err := it.list.Next()
		if err != nil {
			return false, it.fail(err)
		}
		if ok {
			if err := it.load(ctx, rec); err != nil {
				return false, it.fail(err)
			}
			it.epochSamples++
			return true, nil
		}

		it.listIdx = (it.listIdx + 1) % len(it.cfg.ImageList)
		if it.listIdx == 0 || len(it.cfg.ImageList) == 1 {
			it.endEpoch(ctx)
			return false, nil
		}
		if err := it.openListAt(ctx, it.listIdx); err != nil {
			return false, it.fail(err)
		}
	}
}

func (it *Iterator) load(ctx context.Context, rec Record) error {
	obj, err := it.nextObject()
	if err != nil {
		return err
	}
	it.scratch = append(it.scratch[:0], obj...)

	start := time.Now()
	px, err := it.opts.decoder.Decode(it.scratch, it.pix)
	if err == nil && len(px.Pix) < px.Width*px.Height*Channels {
		err = fmt.Errorf("decoder returned %d bytes for %dx%d", len(px.Pix), px.Width, px.Height)
	}
	it.opts.metricsCollector.RecordSample(len(it.scratch), time.Since(start), err)
	if err != nil {
		it.opts.logger.LogDecodeFailure(ctx, it.list.Path(), rec.Index, len(it.scratch), err)
		return &DecodeError{List: it.list.Path(), Index: rec.Index, Size: len(it.scratch), cause: err}
	}
	it.pix = px.Pix

	it.sample.Index = rec.Index
	it.sample.Label = rec.Label
	it.sample.Data.fill(px)
	return nil
}

func (it *Iterator) nextObject() ([]byte, error) {
	for it.cur == nil || it.ptop >= it.cur.Len() {
		p, ok, err := it.buf.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: list %s", ErrShardExhausted, it.list.Path())
		}
		it.cur, it.ptop = p, 0
	}
	obj := it.cur.At(it.ptop)
	it.ptop++
	return obj, nil
}

func (it *Iterator) endEpoch(ctx context.Context) {
	it.ended = true
	it.epoch++
	elapsed := time.Since(it.epochStart)
	it.opts.metricsCollector.RecordEpoch(it.epochSamples, elapsed)
	if !it.cfg.Silent {
		it.opts.logger.LogEpoch(ctx, it.epoch, it.epochSamples, elapsed)
	}
}

// Value returns the current sample. It is overwritten by the next call to
// Next.
func (it *Iterator) Value() *Sample {
	return &it.sample
}

// Epoch returns the number of completed epochs.
func (it *Iterator) Epoch() int { return it.epoch }

// Stats returns the prefetch ring usage.
func (it *Iterator) Stats() prefetch.Stats {
	if it.buf == nil {
		return prefetch.Stats{}
	}
	return it.buf.Stats()
}

// Samples iterates the rest of the current epoch. Iteration stops at the end
// of the epoch or after yielding an error.
func (it *Iterator) Samples(ctx context.Context) iter.Seq2[*Sample, error] {
	return func(yield func(*Sample, error) bool) {
		for {
			ok, err := it.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(&it.sample, nil) {
				return
			}
		}
	}
}

// Close stops the producer and releases every shard, list and cache.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.teardown()
}

func (it *Iterator) teardown() error {
	var errs []error
	if it.buf != nil {
		errs = append(errs, it.buf.Close())
		it.buf, it.src = nil, nil
	}
	if it.list != nil {
		errs = append(errs, it.list.Close())
		it.list = nil
	}
	if it.cached != nil {
		errs = append(errs, it.cached.Close())
		it.cached = nil
	}
	it.cur = nil
	return errors.Join(errs...)
}

func (it *Iterator) usable() error {
	switch {
	case it.closed:
		return ErrClosed
	case !it.initialized:
		return ErrNotInitialized
	}
	return it.err
}

func (it *Iterator) fail(err error) error {
	it.err = err
	return err
}
