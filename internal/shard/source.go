package shard

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/compress"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/page"
)

// ErrNoShards is returned by New for an empty shard list.
var ErrNoShards = errors.New("shard: empty shard list")

const readBufferSize = 1 << 20

// Options configures a Source.
type Options struct {
	// PageSize is the page granularity of every shard. Default: page.DefaultSize.
	PageSize int
	// Rewind selects the BeforeFirst behaviour. Default: RewindFull.
	Rewind Rewind
	// Resource throttles shard reads when it carries an IO limit.
	Resource *resource.Controller
	// Logger receives debug events. Default: discard.
	Logger *slog.Logger
	// OnOpen is called after a shard was opened.
	OnOpen func(index int, name string, size int64)
}

// Source streams pages from an ordered list of shards.
//
// A Source is not safe for concurrent use; the prefetch producer is its only
// caller while iteration runs.
type Source struct {
	store blobstore.BlobStore
	names []string
	opts  Options

	cursor  int // shard the cursor points at
	openIdx int // shard backing r, -1 if none

	// pin, when set, replaces openIdx and cursor at the next
	// RewindCurrent BeforeFirst.
	pin *rewindPin

	blob blobstore.Blob
	body io.ReadCloser
	dec  io.ReadCloser
	r    *bufio.Reader
}

// New creates a Source over names. No shard is opened until Ready.
func New(store blobstore.BlobStore, names []string, opts Options) (*Source, error) {
	if len(names) == 0 {
		return nil, ErrNoShards
	}
	if opts.PageSize == 0 {
		opts.PageSize = page.DefaultSize
	}
	if err := page.Validate(opts.PageSize); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		store:   store,
		names:   append([]string(nil), names...),
		opts:    opts,
		openIdx: -1,
	}, nil
}

// PageSize returns the page granularity.
func (s *Source) PageSize() int { return s.opts.PageSize }

// Len returns the number of shards.
func (s *Source) Len() int { return len(s.names) }

// Cursor returns the index of the shard the cursor points at.
func (s *Source) Cursor() int { return s.cursor }

// Ready opens the first shard.
func (s *Source) Ready(ctx context.Context) error {
	s.cursor = 0
	return s.open(ctx, 0)
}

// Create allocates one page for a prefetch slot.
func (s *Source) Create() (*page.Page, error) {
	return page.New(s.opts.PageSize), nil
}

// Free releases a page created by Create. Pages are plain heap memory.
func (s *Source) Free(*page.Page) {}

// Next loads the next page into p.
//
// When the open shard is exhausted the cursor advances and the next shard is
// opened, skipping empty shards. It returns false when the cursor wraps back
// to the first shard; the exhausted last shard stays open until BeforeFirst.
func (s *Source) Next(ctx context.Context, p *page.Page) (bool, error) {
	if s.openIdx < 0 {
		if err := s.open(ctx, s.cursor); err != nil {
			return false, err
		}
	}
	for {
		ok, err := p.Load(s.r)
		if err != nil {
			return false, fmt.Errorf("shard %s: %w", s.names[s.openIdx], err)
		}
		if ok {
			return true, nil
		}

		s.cursor = (s.cursor + 1) % len(s.names)
		if s.cursor == 0 {
			return false, nil
		}
		if err := s.open(ctx, s.cursor); err != nil {
			return false, err
		}
	}
}

type rewindPin struct {
	open, cursor int
}

// RewindTo sets the shard the next RewindCurrent BeforeFirst reopens and the
// cursor it continues from. A reader that consumes pages behind a prefetch
// producer uses it to rewind the shard it is actually reading rather than
// the one the producer reached. It has no effect under RewindFull.
//
// RewindTo must not race with BeforeFirst; it may run while Next does.
func (s *Source) RewindTo(open, cursor int) error {
	n := len(s.names)
	if open < 0 || open >= n || cursor < 0 || cursor >= n {
		return fmt.Errorf("shard: rewind target %d/%d out of range [0, %d)", open, cursor, n)
	}
	s.pin = &rewindPin{open: open, cursor: cursor}
	return nil
}

// BeforeFirst rewinds according to the configured Rewind policy.
func (s *Source) BeforeFirst(ctx context.Context) error {
	pin := s.pin
	s.pin = nil
	switch {
	case s.opts.Rewind == RewindCurrent && pin != nil:
		s.cursor = pin.cursor
		return s.open(ctx, pin.open)
	case s.opts.Rewind == RewindCurrent && s.openIdx >= 0:
		return s.open(ctx, s.openIdx)
	default:
		s.cursor = 0
		return s.open(ctx, 0)
	}
}

// Close closes the open shard.
func (s *Source) Close() error {
	return s.closeCurrent()
}

func (s *Source) open(ctx context.Context, idx int) error {
	if err := s.closeCurrent(); err != nil {
		return err
	}
	name := s.names[idx]

	// The stream is read by later Next calls; only Close ends it.
	ctx = context.WithoutCancel(ctx)

	blob, err := s.store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("shard: open %s: %w", name, err)
	}
	size := blob.Size()

	var body io.ReadCloser
	var dec io.ReadCloser
	if size == 0 {
		body = io.NopCloser(bytes.NewReader(nil))
		dec = body
	} else {
		body, err = blob.ReadRange(ctx, 0, size)
		if err != nil {
			_ = blob.Close()
			return fmt.Errorf("shard: read %s: %w", name, err)
		}
		throttled := resource.NewRateLimitedReader(ctx, body, s.opts.Resource)
		dec, err = compress.NewReader(compress.ForName(name), throttled)
		if err != nil {
			_ = body.Close()
			_ = blob.Close()
			return fmt.Errorf("shard: decompress %s: %w", name, err)
		}
	}

	if s.r == nil {
		s.r = bufio.NewReaderSize(dec, readBufferSize)
	} else {
		s.r.Reset(dec)
	}
	s.blob, s.body, s.dec = blob, body, dec
	s.openIdx = idx

	s.opts.Logger.Debug("shard opened", "index", idx, "name", name, "size", size)
	if s.opts.OnOpen != nil {
		s.opts.OnOpen(idx, name, size)
	}
	return nil
}

func (s *Source) closeCurrent() error {
	if s.blob == nil {
		return nil
	}
	var errs []error
	if s.dec != nil && s.dec != s.body {
		errs = append(errs, s.dec.Close())
	}
	if s.body != nil {
		errs = append(errs, s.body.Close())
	}
	errs = append(errs, s.blob.Close())

	s.blob, s.body, s.dec = nil, nil, nil
	s.openIdx = -1
	s.r.Reset(eofReader{})
	return errors.Join(errs...)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
