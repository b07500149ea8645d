package playback

import (
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/internal/bitstream"
	"github.com/deepteams/gifseek/internal/giftest"
	"github.com/deepteams/gifseek/keyframe"
)

type tableSource struct{ t *frametable.Table }

func (s tableSource) Table() *frametable.Table { return s.t }

func (s tableSource) Decode(i int) (*image.NRGBA, error) {
	return bitstream.Decode(&s.t.Frames[i])
}

// mixed returns an n-frame 12x12 animation cycling through every disposal
// method, with a transparent checkerboard every fifth frame.
func mixed(n int) *giftest.GIF {
	frames := make([]giftest.Frame, n)
	for i := range frames {
		x, y := i%7, (i*3)%7
		f := giftest.Frame{
			Rect:     image.Rect(x, y, x+5, y+4),
			Fill:     byte(1 + i%7),
			Disposal: byte(i % 4),
			Delay:    1,
		}
		if i%5 == 0 {
			f.HasTransparent = true
			f.TransparentIdx = giftest.Clear
			f.Pix = make([]byte, 20)
			for p := range f.Pix {
				if (p/5+p%5)%2 == 1 {
					f.Pix[p] = f.Fill
				}
			}
		}
		frames[i] = f
	}
	return giftest.New(12, 12, frames...)
}

func newController(t *testing.T, g *giftest.GIF, opts *Options) *Controller {
	t.Helper()
	tbl, err := frametable.Build(g.Bytes(), nil)
	require.NoError(t, err)
	c, err := New(tableSource{tbl}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func snap(t *testing.T, c *Controller) []byte {
	t.Helper()
	img, err := c.Snapshot()
	require.NoError(t, err)
	return img.Pix
}

// reference renders every frame by advancing one step at a time.
func reference(t *testing.T, g *giftest.GIF) [][]byte {
	t.Helper()
	c := newController(t, g, nil)
	ref := [][]byte{snap(t, c)}
	for i := 1; i < len(g.Frames); i++ {
		require.NoError(t, c.AdvanceOneStep())
		ref = append(ref, snap(t, c))
	}
	return ref
}

func TestSeekTo_Idempotent(t *testing.T) {
	c := newController(t, mixed(23), nil)
	for _, n := range []int{0, 4, 10, 15, 22, 3} {
		require.NoError(t, c.SeekTo(n))
		first := snap(t, c)
		require.NoError(t, c.SeekTo(n))
		require.Equal(t, first, snap(t, c), "frame %d", n)
		require.Equal(t, n, c.Current())
	}
}

func TestSeekTo_KeyframeEquivalence(t *testing.T) {
	g := mixed(23)
	ref := reference(t, g)

	stepper := newController(t, g, nil)
	for n := range g.Frames {
		cold := newController(t, g, nil)
		require.NoError(t, cold.SeekTo(n))
		require.Equal(t, ref[n], snap(t, cold), "cold seek %d", n)

		require.Equal(t, n, stepper.Current())
		require.Equal(t, ref[n], snap(t, stepper), "step %d", n)
		require.NoError(t, stepper.StepForward())
	}
}

func TestSeekTo_WarmCacheAnyOrder(t *testing.T) {
	g := mixed(31)
	ref := reference(t, g)
	for _, opts := range []*Options{
		{KeyframeStride: 10},
		{KeyframeStride: 3, Compression: keyframe.CompressionZstd},
		{KeyframeStride: 1},
	} {
		c := newController(t, g, opts)
		rng := rand.New(rand.NewSource(int64(opts.KeyframeStride)))
		require.NoError(t, c.SeekTo(30))
		for i := 0; i < 60; i++ {
			n := rng.Intn(len(g.Frames))
			require.NoError(t, c.SeekTo(n))
			require.Equal(t, ref[n], snap(t, c), "stride %d seek %d", opts.KeyframeStride, n)
		}
		count, _ := c.Keyframes()
		require.Equal(t, 30/opts.KeyframeStride+1, count)
	}
}

func TestScenario(t *testing.T) {
	g := giftest.New(10, 10,
		giftest.Solid(image.Rect(0, 0, 10, 10), giftest.Red),
		giftest.Frame{Rect: image.Rect(2, 2, 6, 6), Fill: giftest.Blue, Disposal: 2},
		giftest.Frame{Rect: image.Rect(5, 5, 9, 9), Fill: giftest.Green},
	)
	c := newController(t, g, nil)
	require.NoError(t, c.SeekTo(2))
	img, err := c.Snapshot()
	require.NoError(t, err)
	require.Zero(t, img.NRGBAAt(3, 3).A)
	require.Equal(t, uint8(0xFF), img.NRGBAAt(6, 6).G)
	require.Equal(t, uint8(0xFF), img.NRGBAAt(0, 0).R)
}

func TestWraparound(t *testing.T) {
	g := mixed(5)

	c := newController(t, g, nil)
	initial := snap(t, c)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.StepForward())
	}
	require.Equal(t, 0, c.Current())
	require.Equal(t, initial, snap(t, c))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.AdvanceOneStep())
	}
	require.Equal(t, 0, c.Current())
	require.Equal(t, initial, snap(t, c))
}

func TestStepBackward(t *testing.T) {
	g := mixed(6)
	for i := range g.Frames {
		g.Frames[i].Delay = 500
	}
	ref := reference(t, g)
	c := newController(t, g, nil)
	require.NoError(t, c.Play())
	require.NoError(t, c.StepBackward())
	require.False(t, c.Playing())
	require.Equal(t, 5, c.Current())
	require.Equal(t, ref[5], snap(t, c))
	require.NoError(t, c.StepBackward())
	require.Equal(t, 4, c.Current())
}

func TestSeekTo_OutOfRange(t *testing.T) {
	c := newController(t, mixed(3), nil)
	require.ErrorIs(t, c.SeekTo(3), ErrFrameOutOfRange)
	require.ErrorIs(t, c.SeekTo(-1), ErrFrameOutOfRange)
	require.Equal(t, 0, c.Current())
}

func TestPlay_Advances(t *testing.T) {
	g := mixed(4)
	ref := reference(t, g)

	var (
		mu       sync.Mutex
		seen     []int
		mismatch atomic.Int32
	)
	sink := SinkFunc(func(img *image.NRGBA, cur, total int) {
		mu.Lock()
		seen = append(seen, cur)
		mu.Unlock()
		if total != 4 || string(img.Pix) != string(ref[cur]) {
			mismatch.Add(1)
		}
	})
	c := newController(t, g, &Options{Sink: sink})
	require.NoError(t, c.Play())
	require.NoError(t, c.Play())
	require.Equal(t, Playing, c.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 7
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Pause())
	require.Equal(t, Stopped, c.State())
	require.Zero(t, mismatch.Load())

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		require.Equal(t, (seen[i-1]+1)%4, seen[i])
	}
}

func TestSeekTo_WhilePlayingKeepsPlaying(t *testing.T) {
	c := newController(t, mixed(8), nil)
	require.NoError(t, c.Play())
	require.NoError(t, c.SeekTo(5))
	require.True(t, c.Playing())
	require.Eventually(t, func() bool { return c.Current() != 5 }, time.Second, 2*time.Millisecond)
}

func TestSeekDuringPendingAdvance(t *testing.T) {
	g := mixed(23)
	ref := reference(t, g)

	var bad atomic.Int32
	sink := SinkFunc(func(img *image.NRGBA, cur, _ int) {
		if string(img.Pix) != string(ref[cur]) {
			bad.Add(1)
		}
	})
	c := newController(t, g, &Options{Sink: sink})
	require.NoError(t, c.Play())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				assert.NoError(t, c.SeekTo(rng.Intn(len(g.Frames))))
				cur, img, err := c.Frame()
				if assert.NoError(t, err) {
					assert.Equal(t, ref[cur], img.Pix, "frame %d", cur)
				}
				if i%10 == 0 {
					time.Sleep(time.Duration(rng.Intn(15)) * time.Millisecond)
				}
			}
		}(int64(w))
	}
	wg.Wait()
	require.Zero(t, bad.Load())

	// The last seek wins once the pending advance is cancelled.
	require.NoError(t, c.Pause())
	require.NoError(t, c.SeekTo(17))
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 17, c.Current())
	require.Equal(t, ref[17], snap(t, c))
}

func TestClose(t *testing.T) {
	c := newController(t, mixed(3), nil)
	require.NoError(t, c.Play())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.SeekTo(0), ErrClosed)
	require.ErrorIs(t, c.Play(), ErrClosed)
	require.ErrorIs(t, c.Pause(), ErrClosed)
	require.ErrorIs(t, c.StepForward(), ErrClosed)
	require.ErrorIs(t, c.AdvanceOneStep(), ErrClosed)
	_, err := c.Snapshot()
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, c.Playing())
}

func TestNew_Errors(t *testing.T) {
	tbl := &frametable.Table{Width: 1, Height: 1}
	_, err := New(tableSource{tbl}, nil)
	require.ErrorIs(t, err, ErrNoFrames)

	good, err := frametable.Build(mixed(1).Bytes(), nil)
	require.NoError(t, err)
	_, err = New(tableSource{good}, &Options{Compression: keyframe.Compression(9)})
	require.ErrorIs(t, err, keyframe.ErrCompression)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "playing", Playing.String())
	require.Equal(t, "seeking", Seeking.String())
	require.Equal(t, "State(7)", State(7).String())
}
