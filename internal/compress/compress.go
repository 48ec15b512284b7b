// Package compress provides whole-stream shard compression.
//
// The codec of a shard is selected from its blob name suffix, so readers
// need no side channel: "train-000.bin.zst" is zstd, "train-000.bin.lz4"
// is LZ4 frame format, anything else is stored raw.
package compress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies a stream codec.
type Kind uint8

const (
	// None stores pages uncompressed.
	None Kind = iota
	// Zstd compresses the stream with zstd (better ratio).
	Zstd
	// LZ4 compresses the stream with LZ4 frames (faster decode).
	LZ4
)

// String returns the codec name used in flags and manifests.
func (k Kind) String() string {
	switch k {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Ext returns the blob name suffix for the codec.
func (k Kind) Ext() string {
	switch k {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// Parse converts a codec name into a Kind.
func Parse(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "zstd", "zst":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("compress: unknown codec %q", s)
	}
}

// ForName picks the codec from a blob name suffix.
func ForName(name string) Kind {
	switch {
	case strings.HasSuffix(name, Zstd.Ext()):
		return Zstd
	case strings.HasSuffix(name, LZ4.Ext()):
		return LZ4
	default:
		return None
	}
}

var (
	zstdDecoderPool sync.Pool
	zstdEncoderPool sync.Pool
	lz4ReaderPool   sync.Pool
)

func getZstdDecoder(r io.Reader) (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		dec := v.(*zstd.Decoder)
		if err := dec.Reset(r); err != nil {
			return nil, err
		}
		return dec, nil
	}
	// One goroutine per stream: the prefetch producer already overlaps IO.
	return zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
}

func getZstdEncoder(w io.Writer) (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		enc := v.(*zstd.Encoder)
		enc.Reset(w)
		return enc, nil
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

// NewReader wraps r with the decompressor for k.
// Closing the returned reader does not close r.
func NewReader(k Kind, r io.Reader) (io.ReadCloser, error) {
	switch k {
	case None:
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := getZstdDecoder(r)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd reader: %w", err)
		}
		return &zstdReader{dec: dec}, nil
	case LZ4:
		var zr *lz4.Reader
		if v := lz4ReaderPool.Get(); v != nil {
			zr = v.(*lz4.Reader)
			zr.Reset(r)
		} else {
			zr = lz4.NewReader(r)
		}
		return &lz4Reader{zr: zr}, nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", k)
	}
}

// NewWriter wraps w with the compressor for k.
// Close flushes the stream but does not close w.
func NewWriter(k Kind, w io.Writer) (io.WriteCloser, error) {
	switch k {
	case None:
		return nopWriteCloser{w}, nil
	case Zstd:
		enc, err := getZstdEncoder(w)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd writer: %w", err)
		}
		return &zstdWriter{enc: enc}, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", k)
	}
}

type zstdReader struct {
	dec *zstd.Decoder
}

func (z *zstdReader) Read(p []byte) (int, error) {
	if z.dec == nil {
		return 0, io.ErrClosedPipe
	}
	return z.dec.Read(p)
}

func (z *zstdReader) Close() error {
	if z.dec == nil {
		return nil
	}
	// Reset(nil) drops the reference to the source before pooling.
	_ = z.dec.Reset(nil)
	zstdDecoderPool.Put(z.dec)
	z.dec = nil
	return nil
}

type zstdWriter struct {
	enc *zstd.Encoder
}

func (z *zstdWriter) Write(p []byte) (int, error) {
	if z.enc == nil {
		return 0, io.ErrClosedPipe
	}
	return z.enc.Write(p)
}

func (z *zstdWriter) Close() error {
	if z.enc == nil {
		return nil
	}
	err := z.enc.Close()
	z.enc.Reset(nil)
	zstdEncoderPool.Put(z.enc)
	z.enc = nil
	return err
}

type lz4Reader struct {
	zr *lz4.Reader
}

func (l *lz4Reader) Read(p []byte) (int, error) {
	if l.zr == nil {
		return 0, io.ErrClosedPipe
	}
	return l.zr.Read(p)
}

func (l *lz4Reader) Close() error {
	if l.zr == nil {
		return nil
	}
	l.zr.Reset(nil)
	lz4ReaderPool.Put(l.zr)
	l.zr = nil
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
