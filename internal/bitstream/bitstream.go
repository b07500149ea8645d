// Package bitstream decodes the LZW pixel block of a single GIF frame into
// an RGBA patch. Decoding is stateless; the patch covers the frame's
// rectangle clamped to the canvas, ready to be blitted by the compositor.
package bitstream

import (
	"compress/lzw"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/internal/container"
	"github.com/deepteams/gifseek/internal/pool"
)

var (
	// ErrShortData is returned when the LZW stream ends before every pixel
	// of the frame rectangle was produced.
	ErrShortData = errors.New("bitstream: not enough pixel data")
	// ErrCorrupt is returned for an undecodable LZW stream.
	ErrCorrupt = errors.New("bitstream: corrupt pixel data")
	// ErrColorIndex is returned for a pixel that references a palette entry
	// that does not exist.
	ErrColorIndex = errors.New("bitstream: color index out of range")
)

// Interlaced row order: start row and step for each of the four passes.
var passes = [4][2]int{{0, 8}, {4, 8}, {2, 4}, {1, 2}}

// Decode decodes frame d. The returned patch's bounds equal d.Rect. Pixels
// using the transparent index have alpha 0. Rows and columns of the declared
// rectangle that fall outside the canvas are decoded and discarded.
func Decode(d *frametable.Descriptor) (*image.NRGBA, error) {
	patch := image.NewNRGBA(d.Rect)
	w, h := d.Bounds.Dx(), d.Bounds.Dy()
	if w == 0 || h == 0 {
		return patch, nil
	}

	lut, valid := buildLUT(d)

	lr := lzw.NewReader(container.NewSubBlockReader(d.Data), lzw.LSB, d.LitWidth)
	defer lr.Close()

	row := pool.Get(w)
	defer pool.Put(row)

	// Column span of the frame that lands on the canvas.
	x0 := d.Rect.Min.X - d.Bounds.Min.X
	x1 := d.Rect.Max.X - d.Bounds.Min.X
	if d.Rect.Empty() {
		x0, x1 = 0, 0
	}

	decodeRow := func(y int) error {
		if _, err := io.ReadFull(lr, row); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: frame %d row %d", ErrShortData, d.Index, y)
			}
			return fmt.Errorf("%w: frame %d: %w", ErrCorrupt, d.Index, err)
		}
		for _, idx := range row {
			if !valid[idx] {
				return fmt.Errorf("%w: frame %d index %d (palette has %d)", ErrColorIndex, d.Index, idx, len(d.Palette))
			}
		}
		py := d.Bounds.Min.Y + y
		if py < d.Rect.Min.Y || py >= d.Rect.Max.Y {
			return nil
		}
		off := patch.PixOffset(d.Rect.Min.X, py)
		dst := patch.Pix[off : off+4*(x1-x0)]
		for i, idx := range row[x0:x1] {
			copy(dst[4*i:4*i+4], lut[idx][:])
		}
		return nil
	}

	if !d.Interlaced {
		for y := 0; y < h; y++ {
			if err := decodeRow(y); err != nil {
				return nil, err
			}
		}
		return patch, nil
	}
	for _, p := range passes {
		for y := p[0]; y < h; y += p[1] {
			if err := decodeRow(y); err != nil {
				return nil, err
			}
		}
	}
	return patch, nil
}

// buildLUT maps every palette index to its NRGBA bytes. The transparent
// index maps to zero and is valid even past the end of the palette.
func buildLUT(d *frametable.Descriptor) (lut [256][4]byte, valid [256]bool) {
	for i, c := range d.Palette {
		if i >= len(lut) {
			break
		}
		r, g, b, _ := c.RGBA()
		lut[i] = [4]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), 0xFF}
		valid[i] = true
	}
	if t := d.Transparent; t >= 0 && t < len(lut) {
		lut[t] = [4]byte{}
		valid[t] = true
	}
	return lut, valid
}
