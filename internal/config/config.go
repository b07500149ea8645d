// Package config loads the YAML configuration of the gifseek command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deepteams/gifseek"
	"github.com/deepteams/gifseek/frametable"
	"github.com/deepteams/gifseek/keyframe"
)

// Config represents the complete configuration.
type Config struct {
	Keyframes KeyframesConfig `yaml:"keyframes"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Limits    LimitsConfig    `yaml:"limits"`
	Log       LogConfig       `yaml:"log"`
}

// KeyframesConfig contains keyframe cache settings
type KeyframesConfig struct {
	Stride      int    `yaml:"stride"`      // frames between snapshots
	Compression string `yaml:"compression"` // none, zstd
}

// PlaybackConfig contains playback settings
type PlaybackConfig struct {
	ZeroDelayMS int  `yaml:"zero_delay_ms"` // delay substituted for 0
	Autoplay    bool `yaml:"autoplay"`
}

// LimitsConfig bounds accepted sources. Zero disables max_bytes; max_pixels
// of -1 disables the canvas bound.
type LimitsConfig struct {
	MaxBytes  int64 `yaml:"max_bytes"`
	MaxPixels int   `yaml:"max_pixels"`
	MaxFrames int   `yaml:"max_frames"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Keyframes: KeyframesConfig{Stride: keyframe.DefaultStride, Compression: "none"},
		Playback:  PlaybackConfig{ZeroDelayMS: 100, Autoplay: true},
		Limits:    LimitsConfig{MaxPixels: frametable.DefaultMaxPixels, MaxFrames: 10000},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func Validate(cfg *Config) error {
	if cfg.Keyframes.Stride <= 0 {
		return fmt.Errorf("keyframes.stride must be positive, got %d", cfg.Keyframes.Stride)
	}
	if _, err := keyframe.ParseCompression(cfg.Keyframes.Compression); err != nil {
		return fmt.Errorf("keyframes.compression: %w", err)
	}
	if cfg.Playback.ZeroDelayMS <= 0 {
		return fmt.Errorf("playback.zero_delay_ms must be positive, got %d", cfg.Playback.ZeroDelayMS)
	}
	if cfg.Limits.MaxBytes < 0 || cfg.Limits.MaxFrames < 0 {
		return errors.New("limits must not be negative")
	}
	if cfg.Limits.MaxPixels < -1 {
		return fmt.Errorf("limits.max_pixels must be -1 or more, got %d", cfg.Limits.MaxPixels)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return l, nil
}

// Options converts the configuration into engine options.
func (c *Config) Options(logger *slog.Logger) *gifseek.Options {
	comp, _ := keyframe.ParseCompression(c.Keyframes.Compression)
	return &gifseek.Options{
		KeyframeStride:      c.Keyframes.Stride,
		KeyframeCompression: comp,
		ZeroDelay:           time.Duration(c.Playback.ZeroDelayMS) * time.Millisecond,
		MaxBytes:            c.Limits.MaxBytes,
		MaxPixels:           c.Limits.MaxPixels,
		MaxFrames:           c.Limits.MaxFrames,
		Autoplay:            c.Playback.Autoplay,
		Logger:              logger,
	}
}
