// Package keyframe implements the sparse snapshot cache used for seeking.
//
// A Cache maps frame indices that are multiples of a fixed stride to full
// copies of the composited canvas. Entries are copied on insert and never
// mutated afterwards. Snapshots may be stored raw or zstd-compressed; both
// restore bit-identically.
//
// A Cache is not safe for concurrent use.
package keyframe

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/deepteams/gifseek/internal/pool"
)

// DefaultStride is the keyframe interval used when none is configured.
const DefaultStride = 10

var (
	ErrStride      = errors.New("keyframe: stride must be positive")
	ErrNotKeyframe = errors.New("keyframe: index is not a multiple of the stride")
	ErrMissing     = errors.New("keyframe: no entry")
	ErrSize        = errors.New("keyframe: snapshot size mismatch")
	ErrCompression = errors.New("keyframe: unknown compression")
)

// Compression selects how snapshots are stored.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression parses "none" or "zstd". The empty string is "none".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrCompression, s)
}

type entry struct {
	rect image.Rectangle
	data []byte // raw NRGBA pixels or a zstd frame
}

// Cache is a stride-aligned keyframe store.
type Cache struct {
	stride  int
	comp    Compression
	entries map[int]entry
	stored  int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New returns an empty cache.
func New(stride int, comp Compression) (*Cache, error) {
	if stride <= 0 {
		return nil, ErrStride
	}
	c := &Cache{stride: stride, comp: comp, entries: make(map[int]entry)}
	switch comp {
	case CompressionNone:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("keyframe: zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("keyframe: zstd decoder: %w", err)
		}
		c.enc, c.dec = enc, dec
	default:
		return nil, fmt.Errorf("%w: %d", ErrCompression, int(comp))
	}
	return c, nil
}

// Stride returns the keyframe interval.
func (c *Cache) Stride() int { return c.stride }

// Compression returns the storage mode.
func (c *Cache) Compression() Compression { return c.comp }

// IsKeyframe reports whether frame index i is stride-aligned.
func (c *Cache) IsKeyframe(i int) bool { return i >= 0 && i%c.stride == 0 }

// Put stores a copy of img at index i, replacing any existing entry.
func (c *Cache) Put(i int, img *image.NRGBA) error {
	if !c.IsKeyframe(i) {
		return fmt.Errorf("%w: %d", ErrNotKeyframe, i)
	}
	src := pixels(img)
	var data []byte
	if c.enc != nil {
		scratch := pool.Get(len(src))
		out := c.enc.EncodeAll(src, scratch[:0])
		data = append([]byte(nil), out...)
		pool.Put(scratch)
	} else {
		data = append([]byte(nil), src...)
	}
	if old, ok := c.entries[i]; ok {
		c.stored -= len(old.data)
	}
	c.entries[i] = entry{rect: img.Rect, data: data}
	c.stored += len(data)
	return nil
}

// Nearest returns the largest cached index strictly below target.
func (c *Cache) Nearest(target int) (int, bool) {
	if target <= 0 {
		return 0, false
	}
	for k := (target - 1) / c.stride * c.stride; k >= 0; k -= c.stride {
		if _, ok := c.entries[k]; ok {
			return k, true
		}
	}
	return 0, false
}

// Has reports whether index i is cached.
func (c *Cache) Has(i int) bool {
	_, ok := c.entries[i]
	return ok
}

// Restore copies entry i into dst, which must have the same bounds as the
// image that was stored.
func (c *Cache) Restore(i int, dst *image.NRGBA) error {
	e, ok := c.entries[i]
	if !ok {
		return fmt.Errorf("%w: %d", ErrMissing, i)
	}
	if dst.Rect != e.rect || len(dst.Pix) != 4*e.rect.Dx()*e.rect.Dy() {
		return fmt.Errorf("%w: have %v, want %v", ErrSize, dst.Rect, e.rect)
	}
	if c.dec == nil {
		copy(dst.Pix, e.data)
		return nil
	}
	out, err := c.dec.DecodeAll(e.data, dst.Pix[:0])
	if err != nil {
		return fmt.Errorf("keyframe: restore %d: %w", i, err)
	}
	if len(out) != len(dst.Pix) {
		return fmt.Errorf("%w: entry %d decoded to %d bytes", ErrSize, i, len(out))
	}
	copy(dst.Pix, out)
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Bytes returns the memory held by stored snapshots.
func (c *Cache) Bytes() int { return c.stored }

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.entries)
	c.stored = 0
}

// Close releases the zstd coder state. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.Clear()
	if c.enc != nil {
		c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}

// pixels returns img's pixels as one contiguous slice, compacting rows when
// the stride is wider than the image.
func pixels(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w {
		return img.Pix[:4*w*h]
	}
	out := make([]byte, 0, 4*w*h)
	for y := 0; y < h; y++ {
		off := y * img.Stride
		out = append(out, img.Pix[off:off+4*w]...)
	}
	return out
}
