package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrObjectTooLarge is returned when an object cannot fit into an empty page.
var ErrObjectTooLarge = errors.New("page: object too large for page")

// Writer packs objects into fixed-size pages and writes them sequentially.
type Writer struct {
	w     io.Writer
	frame []byte
	blob  []byte
	lens  []uint32

	pages   int
	objects int
	closed  bool
}

// NewWriter creates a writer emitting pages of the given size to w.
func NewWriter(w io.Writer, size int) (*Writer, error) {
	if err := Validate(size); err != nil {
		return nil, err
	}
	return &Writer{
		w:     w,
		frame: make([]byte, size),
		blob:  make([]byte, 0, size),
	}, nil
}

// MaxObjectSize returns the largest object a page of the given size can hold.
func MaxObjectSize(size int) int {
	return size - overhead(1)
}

// Add appends one object. The current page is flushed first when the object
// does not fit into the remaining space.
func (w *Writer) Add(obj []byte) error {
	if w.closed {
		return errors.New("page: writer closed")
	}
	size := len(w.frame)
	if len(obj) > MaxObjectSize(size) {
		return fmt.Errorf("%w: %d bytes, page size %d", ErrObjectTooLarge, len(obj), size)
	}
	if overhead(len(w.lens)+1)+len(w.blob)+len(obj) > size {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.lens = append(w.lens, uint32(len(obj)))
	w.blob = append(w.blob, obj...)
	w.objects++
	return nil
}

// Flush writes the pending page, if any.
func (w *Writer) Flush() error {
	if len(w.lens) == 0 {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	binary.LittleEndian.PutUint32(w.frame[0:countSize], uint32(len(w.lens)))
	pos := countSize
	for _, l := range w.lens {
		binary.LittleEndian.PutUint32(w.frame[pos:pos+lengthSize], l)
		pos += lengthSize
	}
	pos += copy(w.frame[pos:], w.blob)
	clear(w.frame[pos:])

	if _, err := w.w.Write(w.frame); err != nil {
		return fmt.Errorf("write page %d: %w", w.pages, err)
	}
	w.pages++
	w.lens = w.lens[:0]
	w.blob = w.blob[:0]
	return nil
}

// Close flushes the final partial page. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush()
}

// Pages returns the number of pages written so far.
func (w *Writer) Pages() int { return w.pages }

// Objects returns the number of objects added so far.
func (w *Writer) Objects() int { return w.objects }

// Size returns the page size.
func (w *Writer) Size() int { return len(w.frame) }
