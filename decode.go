package imbin

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	// Registered image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decoder turns an encoded object into interleaved 3-channel pixels.
//
// dst is a scratch buffer owned by the caller; implementations should reuse
// it when it is large enough. The returned Pixels are valid until the next
// call.
type Decoder interface {
	Decode(data, dst []byte) (Pixels, error)
}

// ImageDecoder decodes every format registered with package image (gif,
// jpeg, png, bmp, tiff, webp) into BGR pixels. Alpha is dropped.
type ImageDecoder struct{}

// Decode implements Decoder.
func (ImageDecoder) Decode(data, dst []byte) (Pixels, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Pixels{}, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Pixels{}, fmt.Errorf("empty image %dx%d", w, h)
	}

	n := w * h * Channels
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	switch m := img.(type) {
	case *image.YCbCr:
		for y := range h {
			for x := range w {
				yi := m.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := m.COffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				putBGR(dst, (y*w+x)*Channels, r, g, bl)
			}
		}
	case *image.NRGBA:
		for y := range h {
			row := m.Pix[y*m.Stride:]
			for x := range w {
				p := row[x*4:]
				putBGR(dst, (y*w+x)*Channels, p[0], p[1], p[2])
			}
		}
	case *image.RGBA:
		for y := range h {
			row := m.Pix[y*m.Stride:]
			for x := range w {
				p := row[x*4:]
				putBGR(dst, (y*w+x)*Channels, p[0], p[1], p[2])
			}
		}
	case *image.Gray:
		for y := range h {
			row := m.Pix[y*m.Stride:]
			for x := range w {
				v := row[x]
				putBGR(dst, (y*w+x)*Channels, v, v, v)
			}
		}
	default:
		for y := range h {
			for x := range w {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				putBGR(dst, (y*w+x)*Channels, c.R, c.G, c.B)
			}
		}
	}

	return Pixels{Width: w, Height: h, Pix: dst}, nil
}

func putBGR(dst []byte, o int, r, g, b uint8) {
	dst[o] = b
	dst[o+1] = g
	dst[o+2] = r
}
