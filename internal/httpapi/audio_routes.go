package httpapi

import (
	"context"
	"net/http"
	"strings"

	"mediaflow/internal/media"
	"mediaflow/internal/model"
	"mediaflow/internal/pipeline"
)

const audioField = "audio_file"

func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, r, "transcribe", func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		return s.audio.Transcribe(ctx, req.Audio, req.Language)
	})
}

func (s *server) handleAnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, r, "analyze", s.audio.Analyze)
}

func (s *server) handleSummarizeAudio(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, r, "summarize", s.audio.Summarize)
}

// serveAudio parses the shared audio form and streams the upload into op.
func (s *server) serveAudio(w http.ResponseWriter, r *http.Request, operation string, op func(context.Context, pipeline.Request) (pipeline.Result, error)) {
	if err := s.parseMultipart(w, r); err != nil {
		s.handleMultipartReadError(w, r, audioField, err)
		return
	}
	defer cleanupMultipartForm(r)

	form, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}
	fh, err := upload(r, audioField)
	if err != nil {
		s.handleMultipartReadError(w, r, audioField, err)
		return
	}
	file, err := fh.Open()
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer func() { _ = file.Close() }()

	result, err := op(r.Context(), pipeline.Request{
		Audio:       media.NewStream(file, fh.Filename),
		Language:    form.Language,
		Prompt:      form.Prompt,
		MaxLength:   form.MaxLength,
		Temperature: form.Temperature,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveAudioResult(operation, result.Status)
	}
	s.logger.Debug("audio pipeline finished",
		"request_id", requestIDFromContext(r.Context()),
		"operation", operation,
		"status", result.Status,
		"audio_ms", result.AudioDuration.Milliseconds(),
		"normalization_ms", result.Timings.Normalization.Milliseconds(),
		"transcription_ms", result.Timings.Transcription.Milliseconds(),
		"generation_ms", result.Timings.Generation.Milliseconds(),
	)
	s.writeResult(w, result.Status, result.Text)
}

func (s *server) readAudioForm(w http.ResponseWriter, r *http.Request) (model.AudioForm, bool) {
	temperature, err := floatField(r, "temperature", s.cfg.DefaultTemperature)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return model.AudioForm{}, false
	}
	maxLength, err := intField(r, "max_length")
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return model.AudioForm{}, false
	}
	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	form := model.AudioForm{
		Prompt:      strings.TrimSpace(r.FormValue("prompt")),
		Language:    language,
		Temperature: temperature,
		MaxLength:   maxLength,
	}
	return form, s.validateRequest(w, r, &form)
}
