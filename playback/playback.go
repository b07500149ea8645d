// Package playback drives a compositor: seeking to arbitrary frames through
// the keyframe cache, stepping, and timed auto-advance.
//
// All state of a Controller (canvas, keyframe cache, cursor and the
// scheduled advance) shares one mutex. The scheduled advance runs on its own
// goroutine and re-checks its cancellation after taking the mutex, so a
// cancelled advance never mutates the canvas. Operations that cancel it also
// wait for its goroutine to exit before returning.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/deepteams/gifseek/compositor"
	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/keyframe"
)

var (
	ErrFrameOutOfRange = errors.New("playback: frame index out of range")
	ErrClosed          = errors.New("playback: controller closed")
	ErrNoFrames        = errors.New("playback: source has no frames")
)

// State is the controller state.
type State int

const (
	Stopped State = iota
	Playing
	Seeking
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Seeking:
		return "seeking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink receives a copy of the canvas after every seek and step. Present is
// called with the controller locked and must not call back into it.
type Sink interface {
	Present(frame *image.NRGBA, current, total int)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame *image.NRGBA, current, total int)

// Present calls f.
func (f SinkFunc) Present(frame *image.NRGBA, current, total int) { f(frame, current, total) }

// Options configures a Controller. The zero value is usable.
type Options struct {
	// KeyframeStride is the keyframe interval. 0 selects keyframe.DefaultStride.
	KeyframeStride int
	Compression    keyframe.Compression
	Sink           Sink
	Logger         *slog.Logger
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller is the seek and playback state machine of one source.
type Controller struct {
	mu sync.Mutex

	comp    *compositor.Compositor
	table   *frametable.Table
	n       int
	current int
	state   State
	task    *task
	closed  bool

	sink Sink
	log  *slog.Logger
}

// New builds a controller for src and renders frame 0.
func New(src compositor.Source, opts *Options) (*Controller, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.KeyframeStride <= 0 {
		o.KeyframeStride = keyframe.DefaultStride
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	t := src.Table()
	if t.NumFrames() == 0 {
		return nil, ErrNoFrames
	}
	cache, err := keyframe.New(o.KeyframeStride, o.Compression)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		comp:  compositor.New(src, cache),
		table: t,
		n:     t.NumFrames(),
		sink:  o.Sink,
		log:   o.Logger,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.seekLocked(0); err != nil {
		cache.Close()
		return nil, err
	}
	c.presentLocked()
	return c, nil
}

// SeekTo renders target with its disposal pending. A scheduled advance is
// cancelled; if the controller was playing it keeps playing from target.
func (c *Controller) SeekTo(target int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if target < 0 || target >= c.n {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0,%d)", ErrFrameOutOfRange, target, c.n)
	}
	old := c.cancelLocked()
	resume := c.state == Playing
	c.state = Seeking
	err := c.seekLocked(target)
	c.state = Stopped
	if err == nil {
		c.presentLocked()
		if resume {
			c.state = Playing
			c.scheduleLocked()
		}
	}
	c.mu.Unlock()
	old.wait()
	return err
}

// AdvanceOneStep retires the current frame and reveals the next one,
// wrapping to frame 0 after the last frame.
func (c *Controller) AdvanceOneStep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.advanceLocked(); err != nil {
		return err
	}
	c.presentLocked()
	return nil
}

// Play starts timed playback from the current frame. It is a no-op when
// already playing.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == Playing {
		return nil
	}
	c.state = Playing
	c.scheduleLocked()
	c.log.Debug("playback: play", "frame", c.current)
	return nil
}

// Pause cancels the scheduled advance. The cursor and canvas are kept.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.cancelLocked()
	wasPlaying := c.state == Playing
	c.state = Stopped
	c.mu.Unlock()
	old.wait()
	if wasPlaying {
		c.log.Debug("playback: pause")
	}
	return nil
}

// StepForward pauses and seeks to the next frame, wrapping to 0.
func (c *Controller) StepForward() error { return c.step(1) }

// StepBackward pauses and seeks to the previous frame, wrapping to the last.
func (c *Controller) StepBackward() error { return c.step(-1) }

func (c *Controller) step(delta int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.cancelLocked()
	c.state = Seeking
	err := c.seekLocked(((c.current+delta)%c.n + c.n) % c.n)
	c.state = Stopped
	if err == nil {
		c.presentLocked()
	}
	c.mu.Unlock()
	old.wait()
	return err
}

// Current returns the cursor.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// FrameCount returns the number of frames.
func (c *Controller) FrameCount() int { return c.n }

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Playing reports whether timed playback is active.
func (c *Controller) Playing() bool { return c.State() == Playing }

// Snapshot returns a copy of the canvas.
func (c *Controller) Snapshot() (*image.NRGBA, error) {
	_, img, err := c.Frame()
	return img, err
}

// Frame returns the cursor and a copy of the canvas taken atomically.
func (c *Controller) Frame() (int, *image.NRGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	return c.current, c.comp.Snapshot(), nil
}

// Keyframes returns the number of cached keyframes and the bytes they hold.
func (c *Controller) Keyframes() (count, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, 0
	}
	cache := c.comp.Cache()
	return cache.Len(), cache.Bytes()
}

// Close stops playback and releases all buffers. It is safe to call more
// than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	old := c.cancelLocked()
	c.closed = true
	c.state = Stopped
	c.comp.Cache().Close()
	c.comp.Release()
	c.mu.Unlock()
	old.wait()
	return nil
}

// seekLocked replays from the nearest keyframe strictly before target, or
// from the transparent origin, and draws target without its disposal.
func (c *Controller) seekLocked(target int) error {
	start := 0
	if k, ok := c.comp.Cache().Nearest(target); ok {
		if err := c.comp.RestoreKeyframe(k); err != nil {
			c.log.Warn("playback: keyframe restore failed", "keyframe", k, "error", err)
			c.comp.ResetOrigin()
		} else {
			start = k + 1
		}
	} else {
		c.comp.ResetOrigin()
	}

	for j := start; j < target; j++ {
		if err := c.comp.DecodeFrame(j, true); err != nil {
			return err
		}
	}
	if err := c.comp.DecodeFrame(target, false); err != nil {
		return err
	}
	c.log.Debug("playback: seek", "target", target, "from", start, "replayed", target-start)
	c.current = target
	return nil
}

func (c *Controller) advanceLocked() error {
	next := (c.current + 1) % c.n
	if next == 0 {
		// A loop restarts from the origin, exactly like SeekTo(0).
		c.comp.ResetOrigin()
	} else if err := c.comp.DecodeFrame(c.current, true); err != nil {
		return err
	}
	if err := c.comp.DecodeFrame(next, false); err != nil {
		return err
	}
	c.current = next
	return nil
}

func (c *Controller) presentLocked() {
	if c.sink == nil {
		return
	}
	c.sink.Present(c.comp.Snapshot(), c.current, c.n)
}

// scheduleLocked starts the auto-advance goroutine. At most one task exists.
func (c *Controller) scheduleLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	c.task = t
	go c.run(ctx, t)
}

// cancelLocked cancels the scheduled task and returns it so the caller can
// wait for it after unlocking.
func (c *Controller) cancelLocked() *task {
	t := c.task
	if t != nil {
		t.cancel()
		c.task = nil
	}
	return t
}

func (t *task) wait() {
	if t != nil {
		<-t.done
	}
}

func (c *Controller) run(ctx context.Context, t *task) {
	defer close(t.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		delay := c.table.Frames[c.current].Delay
		c.mu.Unlock()

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		if err := c.advanceLocked(); err != nil {
			c.log.Error("playback: advance failed", "frame", c.current, "error", err)
			c.state = Stopped
			c.task = nil
			t.cancel()
			c.mu.Unlock()
			return
		}
		c.presentLocked()
		c.mu.Unlock()
	}
}
