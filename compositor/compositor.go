// Package compositor owns the persistent canvas of an animation and renders
// frames onto it.
//
// Rendering a frame is split in two halves: drawing its patch, and applying
// its disposal method. DecodeFrame(i, false) draws frame i and leaves it
// pending so that it stays visible; a later DecodeFrame(i, true) or the
// drawing of any other frame retires it. Keyframe snapshots always hold the
// canvas after frame i's disposal, which is the canvas frame i+1 is drawn
// onto.
package compositor

import (
	"errors"
	"fmt"
	"image"

	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/keyframe"
)

// ErrDecode wraps a failure to decode a frame's pixels.
var ErrDecode = errors.New("compositor: frame decode failed")

// Source supplies the frame table and per-frame pixel patches.
type Source interface {
	Table() *frametable.Table
	// Decode returns frame i's patch. Its bounds must lie inside the canvas.
	Decode(i int) (*image.NRGBA, error)
}

// Compositor renders frames of one source onto a canvas. It is not safe for
// concurrent use.
type Compositor struct {
	src   Source
	table *frametable.Table
	cache *keyframe.Cache

	canvas *image.NRGBA
	prev   *image.NRGBA // Previous-buffer snapshot, lazily allocated
	prevOK bool
	spare  *image.NRGBA // scratch for disposed keyframe copies

	pending int // frame drawn but not yet disposed, or -1
}

// New returns a compositor with an all-transparent canvas. cache may be nil
// to disable keyframe capture.
func New(src Source, cache *keyframe.Cache) *Compositor {
	t := src.Table()
	return &Compositor{
		src:     src,
		table:   t,
		cache:   cache,
		canvas:  image.NewNRGBA(t.Canvas()),
		pending: -1,
	}
}

// DecodeFrame renders frame i. With applyDisposal false the frame is left
// visible and pending; with applyDisposal true its disposal runs immediately.
// When i is already pending, DecodeFrame(i, true) only retires it and
// DecodeFrame(i, false) does nothing.
func (c *Compositor) DecodeFrame(i int, applyDisposal bool) error {
	d, err := c.table.Frame(i)
	if err != nil {
		return err
	}

	if i == c.pending {
		if applyDisposal {
			c.retire()
		}
		return nil
	}
	c.retire()

	patch, err := c.src.Decode(i)
	if err != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrDecode, i, err)
	}
	if d.Disposal == frametable.DisposalPrevious {
		c.capturePrevious()
	}
	blit(c.canvas, patch)

	if applyDisposal {
		c.dispose(d, c.canvas)
	} else {
		c.pending = i
	}

	if c.cache == nil || !c.cache.IsKeyframe(i) {
		return nil
	}
	if applyDisposal {
		return c.cache.Put(i, c.canvas)
	}
	if c.spare == nil {
		c.spare = image.NewNRGBA(c.canvas.Rect)
	}
	copy(c.spare.Pix, c.canvas.Pix)
	c.dispose(d, c.spare)
	return c.cache.Put(i, c.spare)
}

// Pending returns the frame that is drawn but not yet disposed, or -1.
func (c *Compositor) Pending() int { return c.pending }

// retire applies the disposal of the pending frame, if any.
func (c *Compositor) retire() {
	if c.pending < 0 {
		return
	}
	d := &c.table.Frames[c.pending]
	c.pending = -1
	c.dispose(d, c.canvas)
}

func (c *Compositor) capturePrevious() {
	if c.prev == nil {
		c.prev = image.NewNRGBA(c.canvas.Rect)
	}
	copy(c.prev.Pix, c.canvas.Pix)
	c.prevOK = true
}

// dispose applies d's disposal method to dst.
func (c *Compositor) dispose(d *frametable.Descriptor, dst *image.NRGBA) {
	switch d.Disposal {
	case frametable.DisposalBackground:
		clearAlpha(dst, d.Rect)
	case frametable.DisposalPrevious:
		if c.prevOK {
			copy(dst.Pix, c.prev.Pix)
		}
	}
}

// ResetOrigin clears the canvas to fully transparent and drops the pending
// frame and the previous-buffer snapshot.
func (c *Compositor) ResetOrigin() {
	clear(c.canvas.Pix)
	c.pending = -1
	c.ClearPrevious()
}

// RestoreKeyframe loads keyframe k into the canvas.
func (c *Compositor) RestoreKeyframe(k int) error {
	if c.cache == nil {
		return fmt.Errorf("%w: %d", keyframe.ErrMissing, k)
	}
	if err := c.cache.Restore(k, c.canvas); err != nil {
		return err
	}
	c.pending = -1
	c.ClearPrevious()
	return nil
}

// ClearPrevious invalidates the previous-buffer snapshot.
func (c *Compositor) ClearPrevious() { c.prevOK = false }

// Canvas returns the live canvas. Callers must not retain or modify it.
func (c *Compositor) Canvas() *image.NRGBA { return c.canvas }

// Snapshot returns a copy of the canvas.
func (c *Compositor) Snapshot() *image.NRGBA {
	out := image.NewNRGBA(c.canvas.Rect)
	copy(out.Pix, c.canvas.Pix)
	return out
}

// Cache returns the keyframe cache, which may be nil.
func (c *Compositor) Cache() *keyframe.Cache { return c.cache }

// Release drops the canvas and snapshot buffers. The compositor must not be
// used afterwards.
func (c *Compositor) Release() {
	c.canvas, c.prev, c.spare = nil, nil, nil
	c.prevOK = false
	c.pending = -1
}

// blit copies every non-transparent pixel of patch onto dst.
func blit(dst, patch *image.NRGBA) {
	r := patch.Rect.Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	w := 4 * r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		s := patch.Pix[patch.PixOffset(r.Min.X, y):][:w]
		d := dst.Pix[dst.PixOffset(r.Min.X, y):][:w]
		for i := 0; i < w; i += 4 {
			if s[i+3] == 0 {
				continue
			}
			copy(d[i:i+4], s[i:i+4])
		}
	}
}

// clearAlpha makes every pixel of dst inside r fully transparent.
func clearAlpha(dst *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(dst.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(r.Min.X, y):][:4*r.Dx()]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0
		}
	}
}
