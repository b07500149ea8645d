package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/deepteams/gifseek"
	"github.com/deepteams/gifseek/frametable"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "display animation metadata",
		ArgsUsage: "<input.gif>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "frames", Usage: "list every frame"},
		},
		Action: runInfo,
	}
}

func runInfo(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	name, in, err := readInput(cmd)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := gifseek.ReadSource(in, cfg.Options(logger))
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	t := src.Table()
	w := cmd.Root().Writer
	label := color.New(color.FgCyan).SprintFunc()

	canvasBytes := uint64(t.Width) * uint64(t.Height) * 4
	snapshots := uint64((t.NumFrames()-1)/cfg.Keyframes.Stride + 1)

	fmt.Fprintf(w, "%s       %s\n", label("File:"), name)
	fmt.Fprintf(w, "%s       %s\n", label("Size:"), humanize.Bytes(uint64(src.Size())))
	fmt.Fprintf(w, "%s %d x %d\n", label("Dimensions:"), t.Width, t.Height)
	fmt.Fprintf(w, "%s     %s\n", label("Frames:"), humanize.Comma(int64(t.NumFrames())))
	fmt.Fprintf(w, "%s   %v\n", label("Duration:"), t.TotalDuration())
	fmt.Fprintf(w, "%s       %s\n", label("Loop:"), loopString(t.LoopCount))
	fmt.Fprintf(w, "%s     %s per canvas, up to %s in %d keyframes\n", label("Memory:"),
		humanize.Bytes(canvasBytes), humanize.Bytes(canvasBytes*snapshots), snapshots)
	for _, c := range t.Comments {
		fmt.Fprintf(w, "%s    %q\n", label("Comment:"), c)
	}

	if !cmd.Bool("frames") {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRECT\tDELAY\tDISPOSAL\tTRANSPARENT\tINTERLACED")
	for i := range t.Frames {
		f := &t.Frames[i]
		fmt.Fprintf(tw, "%d\t%v\t%v\t%v\t%s\t%v\n",
			f.Index, f.Bounds, f.Delay, f.Disposal, transparentString(f), f.Interlaced)
	}
	return tw.Flush()
}

func loopString(n int) string {
	switch {
	case n < 0:
		return "once"
	case n == 0:
		return "forever"
	default:
		return fmt.Sprintf("%d times", n)
	}
}

func transparentString(f *frametable.Descriptor) string {
	if f.Transparent < 0 {
		return "-"
	}
	return fmt.Sprint(f.Transparent)
}
