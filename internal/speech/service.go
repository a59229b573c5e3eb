// Package speech turns canonical audio into a transcript. It never fails the
// caller: backend errors and silence both come back as an empty result.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mediaflow/internal/media"
	"mediaflow/internal/outcome"
)

const DefaultLanguage = "en-US"

var ErrNoSpeech = errors.New("no speech recognized")

// Client is a speech-to-text backend. language is a BCP-47 tag such as "en-US".
type Client interface {
	Transcribe(ctx context.Context, file io.Reader, fileName, model, language string) (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithEmptyHook(hook func(operation string)) Option {
	return func(s *Service) {
		s.onEmpty = hook
	}
}

type Service struct {
	client       Client
	defaultModel string
	timeout      time.Duration
	logger       *slog.Logger
	onEmpty      func(operation string)
}

func New(client Client, defaultModel string, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		client:       client,
		defaultModel: strings.TrimSpace(defaultModel),
		timeout:      timeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Transcribe(ctx context.Context, audio *media.Audio, language string) outcome.Result {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	if audio == nil {
		return s.empty(language, errors.New("no audio"))
	}

	file, err := audio.Open()
	if err != nil {
		return s.empty(language, fmt.Errorf("open canonical audio: %w", err))
	}
	defer func() { _ = file.Close() }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.client.Transcribe(ctx, file, audio.FileName(), s.defaultModel, language)
	if err != nil {
		return s.empty(language, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.empty(language, ErrNoSpeech)
	}
	return outcome.Ok(text)
}

func (s *Service) empty(language string, reason error) outcome.Result {
	s.logger.Warn("transcription returned no text", "language", language, "error", reason)
	if s.onEmpty != nil {
		s.onEmpty("transcribe")
	}
	return outcome.Empty(reason)
}
