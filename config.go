package goavif

import (
	"io"
	"log/slog"
	"runtime"
)

// Config controls a Decoder.
type Config struct {
	// Workers is the number of tiles decoded concurrently. Each worker owns
	// one AV1 decoder instance.
	Workers int

	Precision Precision

	// MaxPixels rejects images whose declared size exceeds it. Zero means
	// no limit.
	MaxPixels int64

	// IgnoreAlpha decodes only the colour item.
	IgnoreAlpha bool

	// ApplyGrain asks the AV1 decoder to synthesise film grain.
	ApplyGrain bool

	// NewAV1Decoder creates per-worker AV1 decoders. Nil selects dav1d.
	NewAV1Decoder AV1DecoderFactory

	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by DecodeBytes.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		Precision: PrecisionFloat,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option modifies a Config.
type Option func(*Config)

// WithWorkers sets the number of tiles decoded concurrently. Values below
// one keep the default of runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithPrecision selects the colour conversion arithmetic.
func WithPrecision(p Precision) Option {
	return func(c *Config) { c.Precision = p }
}

// WithMaxPixels rejects images whose declared width times height exceeds n.
// The limit is checked before any tile is decoded. Zero disables it.
func WithMaxPixels(n int64) Option {
	return func(c *Config) { c.MaxPixels = n }
}

// WithLogger sets the logger for decode progress. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithAV1Decoder replaces dav1d with f. f is called once per worker.
func WithAV1Decoder(f AV1DecoderFactory) Option {
	return func(c *Config) { c.NewAV1Decoder = f }
}

// WithApplyGrain asks the default dav1d decoder to synthesise film grain.
func WithApplyGrain(on bool) Option {
	return func(c *Config) { c.ApplyGrain = on }
}

// WithIgnoreAlpha skips the auxiliary alpha item and always emits RGB.
func WithIgnoreAlpha(on bool) Option {
	return func(c *Config) { c.IgnoreAlpha = on }
}
