package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"golang.org/x/image/draw"
)

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "play the animation in a truecolor terminal",
		ArgsUsage: "<input.gif>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: 40, Usage: "terminal columns"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long (0 plays until interrupted)"},
		},
		Action: runPlay,
	}
}

func runPlay(ctx context.Context, cmd *cli.Command) error {
	cols := int(cmd.Int("width"))
	if cols <= 0 {
		return fmt.Errorf("play: --width must be positive")
	}
	term := &terminal{w: cmd.Root().Writer, cols: cols}

	s, _, err := load(ctx, cmd, term)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Play(); err != nil {
		return err
	}
	if d := cmd.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	<-ctx.Done()
	return s.Pause()
}

// terminal draws frames with upper half blocks: the foreground color is the
// top pixel of a cell and the background color the bottom one.
type terminal struct {
	w     io.Writer
	cols  int
	lines int // lines drawn by the previous frame
	buf   bytes.Buffer
	small *image.NRGBA
}

// backdrop is blended under transparent pixels.
var backdrop = [3]int{0x20, 0x20, 0x20}

func (t *terminal) Present(img *image.NRGBA, current, total int) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	rows := max(2, t.cols*b.Dy()/b.Dx())
	rows += rows % 2
	if t.small == nil || t.small.Rect.Dy() != rows {
		t.small = image.NewNRGBA(image.Rect(0, 0, t.cols, rows))
	}
	draw.ApproxBiLinear.Scale(t.small, t.small.Bounds(), img, b, draw.Src, nil)

	t.buf.Reset()
	if t.lines > 0 {
		fmt.Fprintf(&t.buf, "\x1b[%dA", t.lines)
	}
	for y := 0; y < rows; y += 2 {
		for x := 0; x < t.cols; x++ {
			tr, tg, tb := flatten(t.small, x, y)
			br, bg, bb := flatten(t.small, x, y+1)
			t.buf.WriteString(color.RGB(tr, tg, tb).AddBgRGB(br, bg, bb).Sprint("▀"))
		}
		t.buf.WriteByte('\n')
	}
	fmt.Fprintf(&t.buf, "frame %d/%d\n", current+1, total)
	t.lines = rows/2 + 1
	t.w.Write(t.buf.Bytes())
}

// flatten blends the pixel at (x, y) over the backdrop.
func flatten(img *image.NRGBA, x, y int) (r, g, b int) {
	c := img.NRGBAAt(x, y)
	a := int(c.A)
	blend := func(v uint8, bg int) int { return (int(v)*a + bg*(255-a)) / 255 }
	return blend(c.R, backdrop[0]), blend(c.G, backdrop[1]), blend(c.B, backdrop[2])
}
