package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediaflow/internal/config"
	"mediaflow/internal/generate"
	"mediaflow/internal/httpapi"
	"mediaflow/internal/media"
	"mediaflow/internal/observability"
	"mediaflow/internal/pipeline"
	"mediaflow/internal/prompts"
	"mediaflow/internal/speech"
	"mediaflow/internal/upstream/gemini"
	"mediaflow/internal/upstream/openai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	promptSet, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		logger.Error("loading prompts", "error", err)
		os.Exit(1)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}

	geminiClient := gemini.New(cfg.GeminiBaseURL, cfg.GoogleAPIKey, upstreamHTTPClient,
		gemini.WithObserver(metrics.UpstreamObserver(config.BackendGemini)),
		gemini.WithTranscribePrompt(promptSet.Transcribe),
	)
	openaiClient := openai.New(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, upstreamHTTPClient,
		openai.WithObserver(metrics.UpstreamObserver(config.BackendOpenAI)),
	)

	var backend generate.Backend = geminiClient
	if cfg.GenerationBackend == config.BackendOpenAI {
		backend = openaiClient
	}
	var speechClient speech.Client = geminiClient
	if cfg.TranscriptionBackend == config.BackendWhisper {
		speechClient = openaiClient
	}

	normalizer := media.NewNormalizer(
		media.WithSampleRate(cfg.AudioSampleRate),
		media.WithMaxDuration(cfg.MaxAudioDuration),
		media.WithMaxImagePixels(cfg.MaxImagePixels),
		media.WithTempDir(cfg.TempDir),
		media.WithLogger(logger),
	)
	generator := generate.New(backend, cfg.GenerationModel, cfg.GenerationTimeout,
		generate.WithLogger(logger),
		generate.WithPrompts(promptSet),
		generate.WithVisionModel(cfg.VisionModel),
		generate.WithEmptyHook(metrics.EmptyResultHook("generate")),
	)
	transcriber := speech.New(speechClient, cfg.TranscriptionModel, cfg.TranscriptionTimeout,
		speech.WithLogger(logger),
		speech.WithEmptyHook(metrics.EmptyResultHook("transcribe")),
	)
	audioPipeline := pipeline.New(normalizer, transcriber, generator, promptSet.NoTranscript)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Generator:      generator,
		Images:         normalizer,
		Audio:          audioPipeline,
		Ready:          readiness(cfg, geminiClient, openaiClient),
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.ListenAddr,
			"generation_backend", cfg.GenerationBackend,
			"transcription_backend", cfg.TranscriptionBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// readiness checks every upstream in use that has a key configured.
func readiness(cfg config.Config, g *gemini.Client, o *openai.Client) httpapi.ReadinessFunc {
	useGemini := cfg.GenerationBackend == config.BackendGemini || cfg.TranscriptionBackend == config.BackendGemini
	useOpenAI := cfg.GenerationBackend == config.BackendOpenAI || cfg.TranscriptionBackend == config.BackendWhisper

	return func(ctx context.Context) error {
		if useGemini && cfg.GoogleAPIKey != "" {
			if err := g.CheckModel(ctx, cfg.GenerationModel); err != nil {
				return err
			}
		}
		if useOpenAI && cfg.UpstreamAPIKey != "" {
			if err := o.CheckModels(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
