package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"mediaflow/internal/config"
	"mediaflow/internal/generate"
	"mediaflow/internal/media"
	"mediaflow/internal/model"
	"mediaflow/internal/outcome"
	"mediaflow/internal/pipeline"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Generator interface {
	Text(ctx context.Context, prompt string, temperature float64, maxTokens int) outcome.Result
	Chat(ctx context.Context, messages []generate.Message, temperature float64) outcome.Result
	WithContext(ctx context.Context, prompt, contextText string, temperature float64) outcome.Result
	AnalyzeImages(ctx context.Context, prompt string, images []*media.Image, temperature float64) outcome.Result
	CompareImages(ctx context.Context, first, second *media.Image, prompt string, temperature float64) outcome.Result
}

type ImageNormalizer interface {
	NormalizeImage(in media.Input) (*media.Image, error)
}

type AudioPipeline interface {
	Transcribe(ctx context.Context, in media.Input, language string) (pipeline.Result, error)
	Analyze(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Summarize(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// ReadinessFunc reports whether the configured upstreams answer.
type ReadinessFunc func(ctx context.Context) error

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	ObserveAudioResult(operation, status string)
}

type Dependencies struct {
	Generator      Generator
	Images         ImageNormalizer
	Audio          AudioPipeline
	Ready          ReadinessFunc
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	generator    Generator
	images       ImageNormalizer
	audio        AudioPipeline
	ready        ReadinessFunc
	metrics      MetricsObserver
	metricsRoute http.Handler
	validate     *validator.Validate
}

type ctxKey string

const (
	serviceName      = "MediaFlow"
	requestIDHeader  = "X-Request-Id"
	resultHeader     = "X-Result-Status"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Generator == nil || deps.Images == nil || deps.Audio == nil {
		panic("httpapi: generator, image and audio dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		generator:    deps.Generator,
		images:       deps.Images,
		audio:        deps.Audio,
		ready:        deps.Ready,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		validate:     newValidator(),
	}

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader, resultHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/text", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Post("/chat", s.handleChat)
			r.Post("/context", s.handleContext)
		})
		r.Route("/image", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyzeImage)
			r.Post("/analyze-multiple", s.handleAnalyzeMultiple)
			r.Post("/compare", s.handleCompareImages)
		})
		r.Route("/audio", func(r chi.Router) {
			r.Post("/transcribe", s.handleTranscribe)
			r.Post("/analyze", s.handleAnalyzeAudio)
			r.Post("/summarize", s.handleSummarizeAudio)
		})
	})

	return r
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.WelcomeResponse{
		Message: "Welcome to " + serviceName + " API",
		Endpoints: map[string]string{
			"text":  "/api/text/",
			"image": "/api/image/",
			"audio": "/api/audio/",
		},
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "request_id", requestIDFromContext(r.Context()), "error", err)
			s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "upstream check failed: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: serviceName})
}

// writeResult answers with the text and exposes whether it is empty.
func (s *server) writeResult(w http.ResponseWriter, status, text string) {
	w.Header().Set(resultHeader, status)
	writeJSON(w, http.StatusOK, model.TextResponse{Text: text})
}

func (s *server) writeOutcome(w http.ResponseWriter, res outcome.Result) {
	s.writeResult(w, res.Status(), res.Text)
}

// decodeJSON reads a single JSON value into dst and validates it. It writes
// the error response itself and reports whether the handler should go on.
func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	return s.validateRequest(w, r, dst)
}

func (s *server) validateRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", validationDetail(err))
		return false
	}
	return true
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large")
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
}

// writeMappedError answers 500 for every failure that reaches a handler. The
// detail carries the error text so that input decode failures are visible to
// the caller.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	code := "internal_error"
	switch {
	case errors.Is(err, media.ErrUnsupportedInputKind):
		code = "unsupported_input"
	case errors.Is(err, media.ErrInputDecode):
		code = "input_decode_error"
	case errors.Is(err, context.Canceled):
		code = "canceled"
	}
	s.logger.Error("request failed", "request_id", requestIDFromContext(r.Context()), "code", code, "error", err)
	s.writeError(w, r, http.StatusInternalServerError, code, err.Error())
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	rid := requestIDFromContext(r.Context())
	if rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Detail:    detail,
		Code:      code,
		RequestID: rid,
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"result", ww.Header().Get(resultHeader),
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			if name, _, _ := strings.Cut(f.Tag.Get(key), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}
