// Package giftest builds GIF byte streams for tests. It writes every block
// by hand so tests can produce inputs the standard encoder refuses, such as
// frames that overhang the logical screen or reserved disposal values.
package giftest

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"image"
	"image/color"
	"math/bits"
)

// Palette indices of Colors.
const (
	Clear = iota
	Red
	Blue
	Green
	White
	Black
	Yellow
	Magenta
)

// Colors is the default global palette.
var Colors = color.Palette{
	color.RGBA{0, 0, 0, 0xFF},
	color.RGBA{0xFF, 0, 0, 0xFF},
	color.RGBA{0, 0, 0xFF, 0xFF},
	color.RGBA{0, 0xFF, 0, 0xFF},
	color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
	color.RGBA{0, 0, 0, 0xFF},
	color.RGBA{0xFF, 0xFF, 0, 0xFF},
	color.RGBA{0xFF, 0, 0xFF, 0xFF},
}

// Frame describes one image block and its graphic control extension.
type Frame struct {
	Rect image.Rectangle

	// Pix holds palette indices in row order, Rect.Dx()*Rect.Dy() long.
	// When nil every pixel is Fill.
	Pix  []byte
	Fill byte

	Delay          int  // hundredths of a second
	Disposal       byte // raw GIF value
	HasTransparent bool
	TransparentIdx byte

	Palette    color.Palette // local color table; nil uses the global one
	Interlaced bool
	NoControl  bool // omit the graphic control extension
}

// GIF describes a whole file.
type GIF struct {
	Width, Height   int
	Palette         color.Palette // nil selects Colors; empty slice omits the table
	BackgroundIndex byte
	LoopCount       int // -1 omits the NETSCAPE2.0 extension
	Comments        [][]byte
	Frames          []Frame
	OmitTrailer     bool
}

// New returns a w×h GIF using Colors that loops forever.
func New(w, h int, frames ...Frame) *GIF {
	return &GIF{Width: w, Height: h, LoopCount: 0, Frames: frames}
}

// Solid returns a frame filling r with palette index idx.
func Solid(r image.Rectangle, idx byte) Frame {
	return Frame{Rect: r, Fill: idx}
}

// Bytes encodes g.
func (g *GIF) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("GIF89a")

	pal := g.Palette
	if pal == nil {
		pal = Colors
	}
	var sd [7]byte
	binary.LittleEndian.PutUint16(sd[0:2], uint16(g.Width))
	binary.LittleEndian.PutUint16(sd[2:4], uint16(g.Height))
	if len(pal) > 0 {
		sd[4] = 0x80 | tableBits(len(pal))
	}
	sd[5] = g.BackgroundIndex
	buf.Write(sd[:])
	if len(pal) > 0 {
		writeTable(&buf, pal)
	}

	if g.LoopCount >= 0 {
		buf.Write([]byte{0x21, 0xFF, 0x0B})
		buf.WriteString("NETSCAPE2.0")
		buf.Write([]byte{3, 1, byte(g.LoopCount), byte(g.LoopCount >> 8), 0})
	}
	for _, c := range g.Comments {
		buf.Write([]byte{0x21, 0xFE})
		writeSubBlocks(&buf, c)
	}

	for _, f := range g.Frames {
		framePal := pal
		if f.Palette != nil {
			framePal = f.Palette
		}
		if !f.NoControl {
			packed := (f.Disposal & 0x07) << 2
			if f.HasTransparent {
				packed |= 0x01
			}
			buf.Write([]byte{0x21, 0xF9, 4, packed, byte(f.Delay), byte(f.Delay >> 8), f.TransparentIdx, 0})
		}

		var id [10]byte
		id[0] = 0x2C
		binary.LittleEndian.PutUint16(id[1:3], uint16(f.Rect.Min.X))
		binary.LittleEndian.PutUint16(id[3:5], uint16(f.Rect.Min.Y))
		binary.LittleEndian.PutUint16(id[5:7], uint16(f.Rect.Dx()))
		binary.LittleEndian.PutUint16(id[7:9], uint16(f.Rect.Dy()))
		if f.Palette != nil {
			id[9] |= 0x80 | tableBits(len(f.Palette))
		}
		if f.Interlaced {
			id[9] |= 0x40
		}
		buf.Write(id[:])
		if f.Palette != nil {
			writeTable(&buf, f.Palette)
		}

		litWidth := litWidthFor(len(framePal))
		buf.WriteByte(byte(litWidth))
		writeSubBlocks(&buf, compress(f.indices(), litWidth))
	}

	if !g.OmitTrailer {
		buf.WriteByte(0x3B)
	}
	return buf.Bytes()
}

// indices returns the pixel indices in stream order.
func (f Frame) indices() []byte {
	w, h := f.Rect.Dx(), f.Rect.Dy()
	pix := f.Pix
	if pix == nil {
		pix = bytes.Repeat([]byte{f.Fill}, w*h)
	}
	if !f.Interlaced || h == 0 {
		return pix
	}
	out := make([]byte, 0, len(pix))
	for _, pass := range [4][2]int{{0, 8}, {4, 8}, {2, 4}, {1, 2}} {
		for y := pass[0]; y < h; y += pass[1] {
			out = append(out, pix[y*w:(y+1)*w]...)
		}
	}
	return out
}

func compress(pix []byte, litWidth int) []byte {
	var out bytes.Buffer
	w := lzw.NewWriter(&out, lzw.LSB, litWidth)
	w.Write(pix)
	w.Close()
	return out.Bytes()
}

func writeSubBlocks(buf *bytes.Buffer, data []byte) {
	for len(data) > 0 {
		n := len(data)
		if n > 255 {
			n = 255
		}
		buf.WriteByte(byte(n))
		buf.Write(data[:n])
		data = data[n:]
	}
	buf.WriteByte(0)
}

func writeTable(buf *bytes.Buffer, pal color.Palette) {
	n := 1 << (1 + tableBits(len(pal)))
	for i := 0; i < n; i++ {
		if i >= len(pal) {
			buf.Write([]byte{0, 0, 0})
			continue
		}
		r, g, b, _ := pal[i].RGBA()
		buf.Write([]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8)})
	}
}

// tableBits returns the 3-bit size field for a table of n entries.
func tableBits(n int) byte {
	if n <= 2 {
		return 0
	}
	return byte(bits.Len(uint(n-1)) - 1)
}

func litWidthFor(n int) int {
	lw := int(tableBits(n)) + 1
	if lw < 2 {
		lw = 2
	}
	return lw
}
