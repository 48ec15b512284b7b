// Package prefetch runs a producer goroutine ahead of a single consumer over
// a fixed ring of reusable slots.
//
// The buffer allocates exactly Size slots once, in Init. The producer fills
// free slots from a Source, the consumer takes filled slots in production
// order, and the slot handed out by Next is recycled on the following Next.
// At most Size items exist at any time, so lookahead is bounded by
// construction rather than by a queue limit.
//
//	Idle ──Init──▶ Running ──source ends──▶ Drained
//	                  ▲                        │
//	                  └──────BeforeFirst───────┘
//	any ──Close──▶ Stopped
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/imbin/internal/resource"
)

// DefaultSize is the default number of slots.
const DefaultSize = 4

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("prefetch: buffer closed")
	// ErrNotInitialized is returned when Next or BeforeFirst run before Init.
	ErrNotInitialized = errors.New("prefetch: buffer not initialized")
)

// Source produces items into caller-owned slots.
type Source[T any] interface {
	// Create allocates one slot. Called Size times by Init.
	Create() (T, error)
	// Next fills item with the next element. It returns false at the end
	// of a pass.
	Next(ctx context.Context, item T) (bool, error)
	// BeforeFirst rewinds to the start of a pass. It is never called
	// concurrently with Next.
	BeforeFirst(ctx context.Context) error
	// Free releases a slot created by Create.
	Free(item T)
	// Close releases the source.
	Close() error
}

// Options configures a Buffer.
type Options struct {
	// Size is the number of slots. Default: DefaultSize.
	Size int
	// SlotBytes is the memory charged per slot against Resource.
	SlotBytes int64
	// Resource accounts slot memory. Init fails with
	// resource.ErrMemoryLimitExceeded when the ring does not fit.
	Resource *resource.Controller
	// Logger receives lifecycle events. Default: discard.
	Logger *slog.Logger
	// OnProduce is called after the producer filled a slot.
	OnProduce func(d time.Duration)
	// OnWait is called when Next had to block for the producer.
	OnWait func(d time.Duration)
}

// Stats is a snapshot of slot usage.
type Stats struct {
	Allocated int
	Free      int
	Filled    int
	Held      int
	// HighWater is the largest number of filled slots seen at once.
	HighWater int
}

// Buffer is an asynchronous prefetch buffer over a Source.
//
// Next, BeforeFirst and Close must be called from a single consumer
// goroutine. Stats may be called from anywhere.
type Buffer[T any] struct {
	src  Source[T]
	opts Options

	mu     sync.Mutex
	cond   *sync.Cond
	slots  []T
	free   []T
	filled []T
	held   T
	isHeld bool

	started   bool
	paused    bool
	producing bool
	ended     bool
	stopped   bool
	err       error
	highWater int
	reserved  int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a buffer over src. Nothing is allocated until Init.
func New[T any](src Source[T], opts Options) *Buffer[T] {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	b := &Buffer[T]{src: src, opts: opts}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Size returns the number of slots.
func (b *Buffer[T]) Size() int { return b.opts.Size }

// Init reserves slot memory, allocates the slots and starts the producer.
// The producer outlives ctx; it stops only at Close.
func (b *Buffer[T]) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.stopped:
		return ErrClosed
	case b.started:
		return nil
	}

	need := int64(b.opts.Size) * b.opts.SlotBytes
	if err := b.opts.Resource.AcquireMemory(need); err != nil {
		return fmt.Errorf("prefetch: reserve %d slots of %d bytes: %w", b.opts.Size, b.opts.SlotBytes, err)
	}
	b.reserved = need

	b.slots = make([]T, 0, b.opts.Size)
	for range b.opts.Size {
		item, err := b.src.Create()
		if err != nil {
			for _, s := range b.slots {
				b.src.Free(s)
			}
			b.slots = nil
			b.opts.Resource.ReleaseMemory(b.reserved)
			b.reserved = 0
			return fmt.Errorf("prefetch: create slot: %w", err)
		}
		b.slots = append(b.slots, item)
	}
	b.free = append(make([]T, 0, b.opts.Size), b.slots...)
	b.filled = make([]T, 0, b.opts.Size)

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.started = true
	b.wg.Add(1)
	go b.produce(pctx)

	b.opts.Logger.Debug("prefetch started", "slots", b.opts.Size, "slot_bytes", b.opts.SlotBytes)
	return nil
}

func (b *Buffer[T]) produce(ctx context.Context) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		for !b.stopped && (b.paused || b.ended || b.err != nil || len(b.free) == 0) {
			b.cond.Wait()
		}
		if b.stopped {
			b.mu.Unlock()
			return
		}
		slot := b.free[0]
		b.free = b.free[1:]
		b.producing = true
		b.mu.Unlock()

		start := time.Now()
		ok, err := b.src.Next(ctx, slot)
		elapsed := time.Since(start)

		b.mu.Lock()
		b.producing = false
		switch {
		case err != nil:
			b.err = err
			b.free = append(b.free, slot)
			if !b.stopped {
				b.opts.Logger.Error("prefetch producer failed", "error", err)
			}
		case !ok:
			b.ended = true
			b.free = append(b.free, slot)
		default:
			b.filled = append(b.filled, slot)
			b.highWater = max(b.highWater, len(b.filled))
		}
		b.cond.Broadcast()
		b.mu.Unlock()

		if err == nil && ok && b.opts.OnProduce != nil {
			b.opts.OnProduce(elapsed)
		}
	}
}

// Next returns the next filled slot, blocking until one is ready or the pass
// ended. The slot stays valid until the following call to Next or
// BeforeFirst. After the end of a pass Next keeps returning false until
// BeforeFirst; a producer error is returned once all slots filled before it
// were delivered, and then on every call.
func (b *Buffer[T]) Next() (T, bool, error) {
	var zero T

	b.mu.Lock()
	if !b.started && !b.stopped {
		b.mu.Unlock()
		return zero, false, ErrNotInitialized
	}
	b.releaseHeld()

	var waited time.Duration
	if len(b.filled) == 0 && !b.ended && b.err == nil && !b.stopped {
		start := time.Now()
		for len(b.filled) == 0 && !b.ended && b.err == nil && !b.stopped {
			b.cond.Wait()
		}
		waited = time.Since(start)
	}

	var (
		item T
		ok   bool
		err  error
	)
	switch {
	case b.stopped:
		err = ErrClosed
	case len(b.filled) > 0:
		item, ok = b.filled[0], true
		b.filled = b.filled[1:]
		b.held, b.isHeld = item, true
	case b.err != nil:
		err = b.err
	}
	b.mu.Unlock()

	if waited > 0 && b.opts.OnWait != nil {
		b.opts.OnWait(waited)
	}
	return item, ok, err
}

// releaseHeld returns the consumer's slot to the free list. Callers hold b.mu.
func (b *Buffer[T]) releaseHeld() {
	if !b.isHeld {
		return
	}
	var zero T
	b.free = append(b.free, b.held)
	b.held, b.isHeld = zero, false
	b.cond.Broadcast()
}

// BeforeFirst discards prefetched items and rewinds the source.
func (b *Buffer[T]) BeforeFirst(ctx context.Context) error {
	b.mu.Lock()
	switch {
	case b.stopped:
		b.mu.Unlock()
		return ErrClosed
	case !b.started:
		b.mu.Unlock()
		return ErrNotInitialized
	case b.err != nil:
		err := b.err
		b.mu.Unlock()
		return err
	}

	b.paused = true
	for b.producing {
		b.cond.Wait()
	}
	b.releaseHeld()
	b.free = append(b.free, b.filled...)
	b.filled = b.filled[:0]
	b.ended = false
	b.mu.Unlock()

	err := b.src.BeforeFirst(ctx)

	b.mu.Lock()
	if err != nil {
		b.err = err
	}
	b.paused = false
	b.cond.Broadcast()
	b.mu.Unlock()
	return err
}

// Stats returns a snapshot of slot usage.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	held := 0
	if b.isHeld {
		held = 1
	}
	return Stats{
		Allocated: len(b.slots),
		Free:      len(b.free),
		Filled:    len(b.filled),
		Held:      held,
		HighWater: b.highWater,
	}
}

// Close stops the producer, frees every slot and closes the source.
// It is idempotent.
func (b *Buffer[T]) Close() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	started := b.started
	b.cond.Broadcast()
	b.mu.Unlock()

	if started {
		b.cancel()
		b.wg.Wait()
	}

	b.mu.Lock()
	slots := b.slots
	b.slots, b.free, b.filled = nil, nil, nil
	var zero T
	b.held, b.isHeld = zero, false
	reserved := b.reserved
	b.reserved = 0
	b.mu.Unlock()

	for _, s := range slots {
		b.src.Free(s)
	}
	b.opts.Resource.ReleaseMemory(reserved)
	b.opts.Logger.Debug("prefetch stopped", "slots", len(slots))
	return b.src.Close()
}
