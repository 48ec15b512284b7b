package imbin

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/stretchr/testify/require"
)

const testPageSize = 512

func colorOf(idx uint32) (r, g, b uint8) {
	return uint8(idx % 251), uint8(idx * 7 % 253), uint8(idx * 13 % 255)
}

func encodePNG(t *testing.T, w, h int, r, g, b uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildDataset writes one (list, shard) pair per entry of counts. Sample
// indices are globally increasing and every image is a 1x1 pixel of
// colorOf(index).
func buildDataset(t *testing.T, store blobstore.BlobStore, counts []int, ext string) (Config, []Record) {
	t.Helper()
	ctx := t.Context()

	cfg := DefaultConfig()
	cfg.PageSize = testPageSize
	cfg.BufferSize = 2
	cfg.Silent = true

	var all []Record
	next := uint32(1)
	for i, n := range counts {
		list := fmt.Sprintf("set%d.lst", i)
		bin := fmt.Sprintf("set%d.bin%s", i, ext)

		w, err := shard.NewWriter(ctx, store, bin, testPageSize)
		require.NoError(t, err)

		var sb strings.Builder
		for range n {
			rec := Record{Index: next, Label: float32(next%10) / 2, Rest: fmt.Sprintf("img/%d.png", next)}
			fmt.Fprintf(&sb, "%d\t%g\t%s\n", rec.Index, rec.Label, rec.Rest)
			r, g, b := colorOf(rec.Index)
			require.NoError(t, w.Add(encodePNG(t, 1, 1, r, g, b)))
			all = append(all, rec)
			next += 3
		}
		_, err = w.Close()
		require.NoError(t, err)
		require.NoError(t, blobstore.WriteAll(ctx, store, list, []byte(sb.String())))

		cfg.ImageList = append(cfg.ImageList, list)
		cfg.ImageBin = append(cfg.ImageBin, bin)
	}
	return cfg, all
}

// pass drains one epoch and checks every tensor against its index.
func pass(t *testing.T, it *Iterator) []Record {
	t.Helper()
	var got []Record
	for {
		ok, err := it.Next(t.Context())
		require.NoError(t, err)
		if !ok {
			return got
		}
		s := it.Value()
		r, g, b := colorOf(s.Index)
		require.Equal(t, []float32{float32(r), float32(g), float32(b)}, s.Data.Data, "sample %d", s.Index)
		got = append(got, Record{Index: s.Index, Label: s.Label})
	}
}

func indexesOf(recs []Record) []uint32 {
	out := make([]uint32, len(recs))
	for i, r := range recs {
		out[i] = r.Index
	}
	return out
}
