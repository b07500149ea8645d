// Package frametable builds the read-only per-frame index of an animated GIF.
//
// A Table is built once per source and maps each frame index to its placement
// rectangle, delay, disposal method and palette. Pixel data is not decoded;
// each Descriptor keeps a reference to its LZW sub-blocks inside the source
// buffer.
package frametable

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/deepteams/gifseek/internal/container"
)

// Disposal controls how a frame's region is treated before the next frame
// is rendered.
type Disposal int

const (
	// DisposalNone is the unspecified disposal (GIF value 0). The frame is
	// left in place.
	DisposalNone Disposal = 0
	// DisposalDoNotDispose leaves the frame in place (GIF value 1).
	DisposalDoNotDispose Disposal = 1
	// DisposalBackground clears the frame's rectangle to transparent
	// (GIF value 2).
	DisposalBackground Disposal = 2
	// DisposalPrevious restores the canvas to its state before the frame
	// was drawn (GIF value 3).
	DisposalPrevious Disposal = 3
)

func (d Disposal) String() string {
	switch d {
	case DisposalNone:
		return "none"
	case DisposalDoNotDispose:
		return "keep"
	case DisposalBackground:
		return "background"
	case DisposalPrevious:
		return "previous"
	default:
		return fmt.Sprintf("Disposal(%d)", int(d))
	}
}

// disposalFromGIF maps the 3-bit GIF field. Reserved values 4-7 behave as
// DisposalNone.
func disposalFromGIF(v byte) Disposal {
	if v > byte(DisposalPrevious) {
		return DisposalNone
	}
	return Disposal(v)
}

// DefaultMaxPixels bounds the canvas area when Options.MaxPixels is 0. The
// canvas is allocated from the declared screen size, which a few bytes of
// input can set to 65535x65535.
const DefaultMaxPixels = 64 << 20

// DefaultZeroDelay replaces a zero frame delay. Sources that encode "as fast
// as possible" as zero would otherwise spin playback.
const DefaultZeroDelay = 100 * time.Millisecond

var (
	// ErrMalformed is returned for any structural failure of the source.
	ErrMalformed = errors.New("frametable: malformed source")
	// ErrTooLarge is returned when the canvas exceeds Options.MaxPixels.
	ErrTooLarge = errors.New("frametable: canvas too large")
	// ErrFrameOutOfRange is returned by Table.Frame for a bad index.
	ErrFrameOutOfRange = errors.New("frametable: frame index out of range")
)

// Options configures Build. The zero value is usable.
type Options struct {
	// ZeroDelay replaces zero delays. Defaults to DefaultZeroDelay.
	ZeroDelay time.Duration
	// MaxFrames bounds the frame count; 0 selects the container default.
	MaxFrames int
	// MaxPixels bounds canvas width*height. 0 selects DefaultMaxPixels;
	// a negative value disables the check.
	MaxPixels int
}

// Descriptor describes one frame.
type Descriptor struct {
	Index int

	// Bounds is the rectangle declared by the image descriptor.
	Bounds image.Rectangle
	// Rect is Bounds clamped to the canvas. It may be empty.
	Rect image.Rectangle

	Delay    time.Duration // normalised, always > 0
	RawDelay int           // as stored, hundredths of a second
	Disposal Disposal

	// Palette is the local color table, or the global one if absent.
	Palette color.Palette
	// Transparent is the transparent palette index, or -1.
	Transparent int
	Interlaced  bool

	// LitWidth and Data locate the LZW stream inside the source buffer.
	LitWidth int
	Data     []byte
}

// Table is the ordered frame index of one source.
type Table struct {
	Width  int
	Height int

	Frames []Descriptor

	// LoopCount is the NETSCAPE2.0 loop count: 0 loops forever, -1 means
	// the extension is absent.
	LoopCount       int
	BackgroundIndex int
	Comments        []string
}

// Build scans data and returns its frame table.
func Build(data []byte, opts *Options) (*Table, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.ZeroDelay <= 0 {
		o.ZeroDelay = DefaultZeroDelay
	}
	if o.MaxPixels == 0 {
		o.MaxPixels = DefaultMaxPixels
	}

	p, err := container.NewParser(data, o.MaxFrames)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	scr := p.Screen()
	imgs := p.Images()
	t := &Table{
		Width:           scr.Width,
		Height:          scr.Height,
		LoopCount:       p.LoopCount(),
		BackgroundIndex: int(scr.BackgroundIndex),
		Frames:          make([]Descriptor, len(imgs)),
	}

	// A zero logical screen takes the first frame's extent.
	if t.Width == 0 || t.Height == 0 {
		b := imgs[0].Bounds
		t.Width, t.Height = b.Max.X, b.Max.Y
	}
	if t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("%w: empty canvas", ErrMalformed)
	}
	if o.MaxPixels > 0 && t.Width*t.Height > o.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, t.Width, t.Height, o.MaxPixels)
	}

	canvas := image.Rect(0, 0, t.Width, t.Height)
	for i, img := range imgs {
		pal := img.LocalPalette
		if pal == nil {
			pal = scr.GlobalPalette
		}
		if pal == nil {
			return nil, fmt.Errorf("%w: frame %d has no color table", ErrMalformed, i)
		}
		d := Descriptor{
			Index:       i,
			Bounds:      img.Bounds,
			Rect:        img.Bounds.Intersect(canvas),
			RawDelay:    img.DelayTime,
			Delay:       time.Duration(img.DelayTime) * 10 * time.Millisecond,
			Disposal:    disposalFromGIF(img.DisposalMethod),
			Palette:     pal,
			Transparent: -1,
			Interlaced:  img.Interlaced,
			LitWidth:    img.LitWidth,
			Data:        img.Data,
		}
		if d.Delay <= 0 {
			d.Delay = o.ZeroDelay
		}
		if img.HasTransparent {
			d.Transparent = int(img.TransparentIdx)
		}
		t.Frames[i] = d
	}

	// Comments are nominally 7-bit ASCII but Latin-1 is common in the wild.
	dec := charmap.ISO8859_1.NewDecoder()
	for _, c := range p.Comments() {
		s, err := dec.Bytes(c)
		if err != nil {
			continue
		}
		t.Comments = append(t.Comments, string(s))
	}

	return t, nil
}

// NumFrames returns the number of frames.
func (t *Table) NumFrames() int { return len(t.Frames) }

// Frame returns the descriptor at index.
func (t *Table) Frame(index int) (*Descriptor, error) {
	if index < 0 || index >= len(t.Frames) {
		return nil, ErrFrameOutOfRange
	}
	return &t.Frames[index], nil
}

// Canvas returns the canvas rectangle.
func (t *Table) Canvas() image.Rectangle {
	return image.Rect(0, 0, t.Width, t.Height)
}

// TotalDuration returns the sum of all frame delays.
func (t *Table) TotalDuration() time.Duration {
	var total time.Duration
	for i := range t.Frames {
		total += t.Frames[i].Delay
	}
	return total
}
