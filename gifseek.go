package gifseek

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/internal/bitstream"
	"github.com/deepteams/gifseek/keyframe"
	"github.com/deepteams/gifseek/playback"
)

// Errors returned by the engine.
var (
	ErrMalformedSource = errors.New("gifseek: malformed source")
	ErrTooLarge        = errors.New("gifseek: source exceeds limits")
	ErrNoSource        = errors.New("gifseek: no source loaded")
	ErrSuperseded      = errors.New("gifseek: load superseded by a newer load")
	ErrClosed          = errors.New("gifseek: session closed")

	// ErrFrameOutOfRange is returned for a frame index outside [0, FrameCount).
	ErrFrameOutOfRange = playback.ErrFrameOutOfRange
)

// Sink receives the rendered canvas with the current and total frame counts.
type Sink = playback.Sink

// SinkFunc adapts a function to Sink.
type SinkFunc = playback.SinkFunc

// Options configures sources and sessions. The zero value is usable.
type Options struct {
	// KeyframeStride is the keyframe interval. 0 selects 10.
	KeyframeStride int
	// KeyframeCompression selects how keyframe snapshots are stored.
	KeyframeCompression keyframe.Compression

	// ZeroDelay replaces zero frame delays. 0 selects 100ms.
	ZeroDelay time.Duration

	// MaxBytes bounds the encoded size. 0 disables the check.
	MaxBytes int64
	// MaxPixels bounds the canvas area. 0 selects 64M pixels; a negative
	// value disables the check.
	MaxPixels int
	// MaxFrames bounds the frame count. 0 selects 10000.
	MaxFrames int

	// Autoplay starts playback after every successful Session.Load.
	Autoplay bool
	// Sink receives every rendered frame.
	Sink Sink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) orDefault() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.KeyframeStride <= 0 {
		out.KeyframeStride = keyframe.DefaultStride
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Source is an opened animation bound to an immutable byte buffer.
type Source struct {
	data  []byte
	table *frametable.Table
}

// Open parses data and verifies that every frame decodes. Any failure is
// reported as ErrMalformedSource, or ErrTooLarge when a limit is exceeded.
func Open(data []byte, opts *Options) (*Source, error) {
	return open(context.Background(), data, opts)
}

// ReadSource reads r to the end and opens the result.
func ReadSource(r io.Reader, opts *Options) (*Source, error) {
	var limit int64
	if opts != nil {
		limit = opts.MaxBytes
	}
	data, err := readAll(r, limit)
	if err != nil {
		return nil, err
	}
	return Open(data, opts)
}

// readAll reads all data from r. If r implements Len() int (e.g.
// *bytes.Reader), a single exact-sized allocation is used instead of
// the repeated doublings that io.ReadAll performs. A positive limit bounds
// the number of bytes accepted.
func readAll(r io.Reader, limit int64) ([]byte, error) {
	if lr, ok := r.(interface{ Len() int }); ok {
		n := lr.Len()
		if limit > 0 && int64(n) > limit {
			return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, n, limit)
		}
		if n > 0 {
			data := make([]byte, n)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("gifseek: reading data: %w", err)
			}
			return data, nil
		}
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gifseek: reading data: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

func open(ctx context.Context, data []byte, opts *Options) (*Source, error) {
	o := opts.orDefault()
	if o.MaxBytes > 0 && int64(len(data)) > o.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), o.MaxBytes)
	}
	t, err := frametable.Build(data, &frametable.Options{
		ZeroDelay: o.ZeroDelay,
		MaxFrames: o.MaxFrames,
		MaxPixels: o.MaxPixels,
	})
	if err != nil {
		if errors.Is(err, frametable.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}

	s := &Source{data: data, table: t}
	for i := range t.Frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := s.Decode(i); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
		}
	}
	return s, nil
}

// FrameCount returns the number of frames.
func (s *Source) FrameCount() int { return s.table.NumFrames() }

// CanvasSize returns the canvas width and height.
func (s *Source) CanvasSize() (width, height int) { return s.table.Width, s.table.Height }

// Table returns the frame table. It must not be modified.
func (s *Source) Table() *frametable.Table { return s.table }

// Size returns the encoded size in bytes.
func (s *Source) Size() int { return len(s.data) }

// Decode returns frame i's pixel patch, positioned at its clamped rectangle.
func (s *Source) Decode(i int) (*image.NRGBA, error) {
	d, err := s.table.Frame(i)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrFrameOutOfRange, i)
	}
	return bitstream.Decode(d)
}
