package gifseek

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/deepteams/gifseek/playback"
)

// Session owns at most one loaded source and its playback state. Loading a
// new source tears down everything derived from the previous one.
//
// The configured Sink is called with playback state locked and must not call
// back into the Session.
type Session struct {
	id   string
	opts Options
	log  *slog.Logger

	gen atomic.Uint64 // load generation

	mu     sync.RWMutex
	src    *Source
	ctl    *playback.Controller
	closed bool
}

// NewSession returns an empty session.
func NewSession(opts *Options) *Session {
	o := opts.orDefault()
	id := uuid.NewString()
	return &Session{
		id:   id,
		opts: o,
		log:  o.Logger.With("session", id),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Load discards the current source and opens data. If another Load starts
// before this one finishes, the result is discarded and ErrSuperseded is
// returned. With Options.Autoplay the new source starts playing.
func (s *Session) Load(ctx context.Context, data []byte) error {
	gen := s.gen.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.detachLocked()
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	src, err := open(ctx, data, &s.opts)
	if err != nil {
		return s.loadFailed(gen, err)
	}
	ctl, err := playback.New(src, &playback.Options{
		KeyframeStride: s.opts.KeyframeStride,
		Compression:    s.opts.KeyframeCompression,
		Sink:           s.opts.Sink,
		Logger:         s.log,
	})
	if err != nil {
		return s.loadFailed(gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		ctl.Close()
		return ErrClosed
	case s.gen.Load() != gen:
		ctl.Close()
		s.log.Debug("gifseek: load superseded", "generation", gen)
		return ErrSuperseded
	case ctx.Err() != nil:
		ctl.Close()
		return ctx.Err()
	}
	s.src, s.ctl = src, ctl

	w, h := src.CanvasSize()
	s.log.Info("gifseek: source loaded",
		"frames", src.FrameCount(),
		"width", w,
		"height", h,
		"duration", src.Table().TotalDuration(),
		"generation", gen)

	if s.opts.Autoplay {
		return ctl.Play()
	}
	return nil
}

// loadFailed reports err for load generation gen, or ErrSuperseded when a
// newer load has started since.
func (s *Session) loadFailed(gen uint64, err error) error {
	if s.gen.Load() != gen {
		s.log.Debug("gifseek: load superseded", "generation", gen, "error", err)
		return ErrSuperseded
	}
	s.log.Warn("gifseek: load failed", "generation", gen, "error", err)
	return err
}

// LoadReader reads r under Options.MaxBytes and loads the result.
func (s *Session) LoadReader(ctx context.Context, r io.Reader) error {
	data, err := readAll(r, s.opts.MaxBytes)
	if err != nil {
		return err
	}
	return s.Load(ctx, data)
}

// Unload discards the current source, if any.
func (s *Session) Unload() {
	s.gen.Add(1)
	s.mu.Lock()
	old := s.detachLocked()
	s.mu.Unlock()
	if old != nil {
		old.Close()
		s.log.Debug("gifseek: source unloaded")
	}
}

// Close unloads the source and rejects further use. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.gen.Add(1)
	s.mu.Lock()
	s.closed = true
	old := s.detachLocked()
	s.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (s *Session) detachLocked() *playback.Controller {
	ctl := s.ctl
	s.src, s.ctl = nil, nil
	return ctl
}

// with runs fn against the current controller while holding the session's
// read lock, so the controller cannot be torn down underneath it.
func (s *Session) with(fn func(*playback.Controller) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if s.ctl == nil {
		return ErrNoSource
	}
	return fn(s.ctl)
}

// Source returns the loaded source, or nil.
func (s *Session) Source() *Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// SeekTo renders frame i.
func (s *Session) SeekTo(i int) error {
	return s.with(func(c *playback.Controller) error { return c.SeekTo(i) })
}

// AdvanceOneStep moves to the next frame, wrapping after the last.
func (s *Session) AdvanceOneStep() error {
	return s.with((*playback.Controller).AdvanceOneStep)
}

// Play starts timed playback.
func (s *Session) Play() error {
	return s.with((*playback.Controller).Play)
}

// Pause stops timed playback.
func (s *Session) Pause() error {
	return s.with((*playback.Controller).Pause)
}

// StepForward pauses and moves to the next frame, wrapping after the last.
func (s *Session) StepForward() error {
	return s.with((*playback.Controller).StepForward)
}

// StepBackward pauses and moves to the previous frame, wrapping before the
// first.
func (s *Session) StepBackward() error {
	return s.with((*playback.Controller).StepBackward)
}

// Snapshot returns a copy of the composited canvas.
func (s *Session) Snapshot() (*image.NRGBA, error) {
	_, img, err := s.Frame()
	return img, err
}

// Frame returns the current frame index and a copy of the canvas.
func (s *Session) Frame() (int, *image.NRGBA, error) {
	var (
		cur int
		img *image.NRGBA
	)
	err := s.with(func(c *playback.Controller) error {
		var err error
		cur, img, err = c.Frame()
		return err
	})
	return cur, img, err
}

// Current returns the current frame index.
func (s *Session) Current() (int, error) {
	var cur int
	err := s.with(func(c *playback.Controller) error {
		cur = c.Current()
		return nil
	})
	return cur, err
}

// Playing reports whether timed playback is active.
func (s *Session) Playing() bool {
	var p bool
	_ = s.with(func(c *playback.Controller) error {
		p = c.Playing()
		return nil
	})
	return p
}

// State returns the playback state, Stopped when nothing is loaded.
func (s *Session) State() playback.State {
	st := playback.Stopped
	_ = s.with(func(c *playback.Controller) error {
		st = c.State()
		return nil
	})
	return st
}

// FrameCount returns the loaded source's frame count, or 0.
func (s *Session) FrameCount() int {
	if src := s.Source(); src != nil {
		return src.FrameCount()
	}
	return 0
}

// CanvasSize returns the loaded source's canvas size, or zeros.
func (s *Session) CanvasSize() (width, height int) {
	if src := s.Source(); src != nil {
		return src.CanvasSize()
	}
	return 0, 0
}

// Keyframes returns the number of cached keyframes and the bytes they hold.
func (s *Session) Keyframes() (count, bytes int) {
	_ = s.with(func(c *playback.Controller) error {
		count, bytes = c.Keyframes()
		return nil
	})
	return count, bytes
}

// IsStale reports whether err means the load was replaced or cancelled
// rather than failing on its own.
func IsStale(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}
