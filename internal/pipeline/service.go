package pipeline

import (
	"context"
	"strings"
	"time"

	"mediaflow/internal/media"
	"mediaflow/internal/outcome"
)

const (
	StatusOK           = "ok"
	StatusEmpty        = "empty"
	StatusNoTranscript = "no_transcript"
)

type AudioNormalizer interface {
	WithAudio(in media.Input, fn func(*media.Audio) error) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio *media.Audio, language string) outcome.Result
}

type Generator interface {
	AnalyzeTranscript(ctx context.Context, transcript, prompt string, temperature float64) outcome.Result
	Summarize(ctx context.Context, transcript string, maxLength int, temperature float64) outcome.Result
}

type Service struct {
	normalizer   AudioNormalizer
	transcriber  Transcriber
	generator    Generator
	noTranscript string
}

type Request struct {
	Audio       media.Input
	Language    string
	Prompt      string
	MaxLength   int
	Temperature float64
}

type Timings struct {
	Normalization time.Duration
	Transcription time.Duration
	Generation    time.Duration
	Total         time.Duration
}

type Result struct {
	Text       string
	Transcript outcome.Result
	Status     string
	Timings    Timings

	// AudioDuration is the length of the canonical clip sent for transcription.
	AudioDuration time.Duration
}

// New builds the audio pipeline. noTranscript is returned as the text of
// Analyze and Summarize when nothing could be transcribed.
func New(normalizer AudioNormalizer, transcriber Transcriber, generator Generator, noTranscript string) *Service {
	return &Service{
		normalizer:   normalizer,
		transcriber:  transcriber,
		generator:    generator,
		noTranscript: strings.TrimSpace(noTranscript),
	}
}

// Transcribe returns the transcript of in. The error is non-nil only when the
// input could not be normalized; upstream failures yield StatusEmpty.
func (s *Service) Transcribe(ctx context.Context, in media.Input, language string) (Result, error) {
	return s.run(ctx, Request{Audio: in, Language: language}, nil)
}

func (s *Service) Analyze(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, req, func(transcript string) outcome.Result {
		return s.generator.AnalyzeTranscript(ctx, transcript, req.Prompt, req.Temperature)
	})
}

func (s *Service) Summarize(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, req, func(transcript string) outcome.Result {
		return s.generator.Summarize(ctx, transcript, req.MaxLength, req.Temperature)
	})
}

// run transcribes inside WithAudio so the canonical file is gone before the
// generation step starts. A nil follow is a plain transcription.
func (s *Service) run(ctx context.Context, req Request, follow func(transcript string) outcome.Result) (Result, error) {
	started := time.Now()
	var result Result

	err := s.normalizer.WithAudio(req.Audio, func(audio *media.Audio) error {
		result.Timings.Normalization = time.Since(started)
		result.AudioDuration = audio.Duration()
		transcriptionStarted := time.Now()
		result.Transcript = s.transcriber.Transcribe(ctx, audio, req.Language)
		result.Timings.Transcription = time.Since(transcriptionStarted)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	switch {
	case follow == nil:
		result.Text = result.Transcript.Text
		result.Status = result.Transcript.Status()
	case result.Transcript.IsEmpty():
		result.Text = s.noTranscript
		result.Status = StatusNoTranscript
	default:
		generationStarted := time.Now()
		generated := follow(result.Transcript.Text)
		result.Timings.Generation = time.Since(generationStarted)
		result.Text = generated.Text
		result.Status = generated.Status()
	}

	result.Timings.Total = time.Since(started)
	return result, nil
}
