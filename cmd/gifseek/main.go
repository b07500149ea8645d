// Command gifseek inspects, exports and plays animated GIFs.
//
// Usage:
//
//	gifseek info [--frames] <input.gif>                 Display animation metadata
//	gifseek frame --index N --out f.png <input.gif>     Export one composited frame
//	gifseek frame --all DIR <input.gif>                 Export every frame
//	gifseek play [--width COLS] <input.gif>             Play in a truecolor terminal
//
// Use "-" as input to read from stdin.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/deepteams/gifseek"
	"github.com/deepteams/gifseek/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gifseek: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "gifseek",
		Usage:     "inspect, export and play animated GIFs",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides the config file)"},
		},
		Commands: []*cli.Command{
			infoCommand(),
			frameCommand(),
			playCommand(),
		},
	}
}

// settings loads the configuration named by the global flags and builds the
// logger.
func settings(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	root := cmd.Root()
	cfg := config.Default()
	if path := root.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, nil, err
		}
	}
	if lvl := root.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(root.ErrWriter, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

// readInput reads the file named by the first argument. "-" reads stdin.
func readInput(cmd *cli.Command) (string, io.ReadCloser, error) {
	if cmd.NArg() < 1 {
		return "", nil, fmt.Errorf("%s: missing input file", cmd.Name)
	}
	path := cmd.Args().First()
	if path == "-" {
		return "<stdin>", io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	return path, f, nil
}

// load opens the input as a session with autoplay disabled.
func load(ctx context.Context, cmd *cli.Command, sink gifseek.Sink) (*gifseek.Session, string, error) {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return nil, "", err
	}
	name, in, err := readInput(cmd)
	if err != nil {
		return nil, "", err
	}
	defer in.Close()

	opts := cfg.Options(logger)
	opts.Autoplay = false
	opts.Sink = sink

	s := gifseek.NewSession(opts)
	if err := s.LoadReader(ctx, in); err != nil {
		s.Close()
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return s, name, nil
}
