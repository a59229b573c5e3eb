package media

import (
	"log/slog"
	"os"
	"time"
)

const (
	DefaultSampleRate = 16000

	// DefaultMaxDuration caps decoded audio so a small upload cannot expand
	// into an unbounded sample buffer.
	DefaultMaxDuration = 30 * time.Minute

	// DefaultMaxImagePixels is checked against the declared image size before
	// any pixel buffer is allocated.
	DefaultMaxImagePixels = 40_000_000
)

type Option func(*Normalizer)

func WithSampleRate(rate int) Option {
	return func(n *Normalizer) {
		if rate > 0 {
			n.sampleRate = rate
		}
	}
}

func WithMaxDuration(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.maxDuration = d
		}
	}
}

func WithMaxImagePixels(pixels int) Option {
	return func(n *Normalizer) {
		if pixels > 0 {
			n.maxImagePixels = pixels
		}
	}
}

// WithTempDir sets where canonical audio files are written. Empty means os.TempDir().
func WithTempDir(dir string) Option {
	return func(n *Normalizer) {
		n.tempDir = dir
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// Normalizer is stateless apart from its settings and safe for concurrent use.
type Normalizer struct {
	sampleRate     int
	maxDuration    time.Duration
	maxImagePixels int
	tempDir        string
	logger         *slog.Logger
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		sampleRate:     DefaultSampleRate,
		maxDuration:    DefaultMaxDuration,
		maxImagePixels: DefaultMaxImagePixels,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *Normalizer) tempDirectory() string {
	if n.tempDir == "" {
		return os.TempDir()
	}
	return n.tempDir
}
