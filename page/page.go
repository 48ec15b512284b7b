package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultSize is the default page granularity (64 MiB).
	DefaultSize = 64 << 20

	// MinSize is the smallest page that can hold a header and one object.
	MinSize = 64

	countSize  = 4
	lengthSize = 4
)

var (
	// ErrTruncated is returned when a stream ends in the middle of a page.
	ErrTruncated = errors.New("page: truncated page")

	// ErrCorrupt is returned when a page header does not describe a valid layout.
	ErrCorrupt = errors.New("page: corrupt page header")

	// ErrInvalidSize is returned for page sizes below MinSize.
	ErrInvalidSize = errors.New("page: invalid page size")
)

// Page is one fixed-size frame of binary objects.
//
// The frame buffer is allocated once by New and overwritten in place by every
// Load, so steady-state iteration does not allocate.
type Page struct {
	data []byte
	offs []int // offs[i]..offs[i+1] bounds object i
}

// New allocates a page with the given frame size.
// It panics if size is below MinSize; use Validate to check untrusted input.
func New(size int) *Page {
	if err := Validate(size); err != nil {
		panic(err)
	}
	return &Page{
		data: make([]byte, size),
		offs: make([]int, 0, 64),
	}
}

// Validate reports whether size is a usable page size.
func Validate(size int) error {
	if size < MinSize {
		return fmt.Errorf("%w: %d (min %d)", ErrInvalidSize, size, MinSize)
	}
	return nil
}

// Size returns the frame size in bytes.
func (p *Page) Size() int { return len(p.data) }

// Len returns the number of objects in the loaded page.
func (p *Page) Len() int {
	if len(p.offs) == 0 {
		return 0
	}
	return len(p.offs) - 1
}

// At returns a view of object i. The view aliases the page buffer and is
// only valid until the next Load.
func (p *Page) At(i int) []byte {
	return p.data[p.offs[i]:p.offs[i+1]:p.offs[i+1]]
}

// Reset forgets the loaded objects without touching the frame buffer.
func (p *Page) Reset() { p.offs = p.offs[:0] }

// Load reads the next page from r into the existing frame.
//
// It returns false with a nil error when r is exhausted exactly at a page
// boundary. On failure the previous contents are discarded.
func (p *Page) Load(r io.Reader) (bool, error) {
	p.Reset()

	n, err := io.ReadFull(r, p.data)
	switch {
	case errors.Is(err, io.EOF):
		return false, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return false, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, len(p.data))
	case err != nil:
		return false, err
	}

	if err := p.parse(); err != nil {
		p.Reset()
		return false, err
	}
	return true, nil
}

func (p *Page) parse() error {
	size := len(p.data)
	count := int(binary.LittleEndian.Uint32(p.data[0:countSize]))

	// Header must fit in the frame before any length is read.
	if count > (size-countSize)/lengthSize {
		return fmt.Errorf("%w: object count %d exceeds page size %d", ErrCorrupt, count, size)
	}

	off := countSize + count*lengthSize
	p.offs = append(p.offs, off)
	for i := 0; i < count; i++ {
		pos := countSize + i*lengthSize
		l := int(binary.LittleEndian.Uint32(p.data[pos : pos+lengthSize]))
		if l > size-off {
			return fmt.Errorf("%w: object %d (len %d) overruns page", ErrCorrupt, i, l)
		}
		off += l
		p.offs = append(p.offs, off)
	}
	return nil
}

// overhead returns the header bytes needed for count objects.
func overhead(count int) int {
	return countSize + count*lengthSize
}
