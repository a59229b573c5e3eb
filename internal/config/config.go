package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendGemini  = "gemini"
	BackendOpenAI  = "openai"
	BackendWhisper = "whisper"

	defaultGeminiModel  = "gemini-2.0-flash"
	defaultOpenAIModel  = "llama-3.3-70b-versatile"
	defaultWhisperModel = "whisper-large-v3"
)

type Config struct {
	ListenAddr           string
	GoogleAPIKey         string
	GeminiBaseURL        string
	GenerationBackend    string
	GenerationModel      string
	VisionModel          string
	TranscriptionBackend string
	TranscriptionModel   string
	UpstreamBaseURL      string
	UpstreamAPIKey       string
	RequestTimeout       time.Duration
	TranscriptionTimeout time.Duration
	GenerationTimeout    time.Duration
	MaxUploadBytes       int64
	AudioSampleRate      int
	MaxAudioDuration     time.Duration
	MaxImagePixels       int
	DefaultLanguage      string
	DefaultTemperature   float64
	PromptsFile          string
	TempDir              string
	CORSAllowedOrigins   []string
	LogLevel             string
}

type envConfig struct {
	ListenAddr                  string   `env:"LISTEN_ADDR" envDefault:":8080"`
	GoogleAPIKey                string   `env:"GOOGLE_API_KEY"`
	GeminiBaseURL               string   `env:"GEMINI_BASE_URL"`
	GenerationBackend           string   `env:"GENERATION_BACKEND" envDefault:"gemini"`
	GenerationModel             string   `env:"GENERATION_MODEL"`
	VisionModel                 string   `env:"VISION_MODEL"`
	TranscriptionBackend        string   `env:"TRANSCRIPTION_BACKEND" envDefault:"gemini"`
	TranscriptionModel          string   `env:"TRANSCRIPTION_MODEL"`
	UpstreamBaseURL             string   `env:"UPSTREAM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	UpstreamAPIKey              string   `env:"UPSTREAM_API_KEY"`
	RequestTimeoutSeconds       int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	TranscriptionTimeoutSeconds int      `env:"TRANSCRIPTION_TIMEOUT_SECONDS" envDefault:"30"`
	GenerationTimeoutSeconds    int      `env:"GENERATION_TIMEOUT_SECONDS" envDefault:"30"`
	MaxUploadBytes              int64    `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`
	AudioSampleRate             int      `env:"AUDIO_SAMPLE_RATE" envDefault:"16000"`
	MaxAudioSeconds             int      `env:"MAX_AUDIO_SECONDS" envDefault:"1800"`
	MaxImagePixels              int      `env:"MAX_IMAGE_PIXELS" envDefault:"40000000"`
	DefaultLanguage             string   `env:"DEFAULT_LANGUAGE" envDefault:"en-US"`
	DefaultTemperature          float64  `env:"DEFAULT_TEMPERATURE" envDefault:"0.7"`
	PromptsFile                 string   `env:"PROMPTS_FILE"`
	TempDir                     string   `env:"TEMP_DIR"`
	CORSAllowedOrigins          []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel                    string   `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env files (if present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && len(dotenvFiles) > 0 {
		return Config{}, fmt.Errorf("loading env files: %w", err)
	}
	return parse(cenv.Options{})
}

func parse(opts cenv.Options) (Config, error) {
	var raw envConfig
	if err := cenv.ParseWithOptions(&raw, opts); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:           strings.TrimSpace(raw.ListenAddr),
		GoogleAPIKey:         strings.TrimSpace(raw.GoogleAPIKey),
		GeminiBaseURL:        strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		GenerationBackend:    strings.ToLower(strings.TrimSpace(raw.GenerationBackend)),
		GenerationModel:      strings.TrimSpace(raw.GenerationModel),
		VisionModel:          strings.TrimSpace(raw.VisionModel),
		TranscriptionBackend: strings.ToLower(strings.TrimSpace(raw.TranscriptionBackend)),
		TranscriptionModel:   strings.TrimSpace(raw.TranscriptionModel),
		UpstreamBaseURL:      strings.TrimRight(strings.TrimSpace(raw.UpstreamBaseURL), "/"),
		UpstreamAPIKey:       strings.TrimSpace(raw.UpstreamAPIKey),
		RequestTimeout:       time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		TranscriptionTimeout: time.Duration(raw.TranscriptionTimeoutSeconds) * time.Second,
		GenerationTimeout:    time.Duration(raw.GenerationTimeoutSeconds) * time.Second,
		MaxUploadBytes:       raw.MaxUploadBytes,
		AudioSampleRate:      raw.AudioSampleRate,
		MaxAudioDuration:     time.Duration(raw.MaxAudioSeconds) * time.Second,
		MaxImagePixels:       raw.MaxImagePixels,
		DefaultLanguage:      strings.TrimSpace(raw.DefaultLanguage),
		DefaultTemperature:   raw.DefaultTemperature,
		PromptsFile:          strings.TrimSpace(raw.PromptsFile),
		TempDir:              strings.TrimSpace(raw.TempDir),
		CORSAllowedOrigins:   trimAll(raw.CORSAllowedOrigins),
		LogLevel:             strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = defaultGenerationModel(cfg)
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.GenerationModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = defaultTranscriptionModel(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks shape only. API keys are not required here; a missing key
// surfaces as an empty result on the first upstream call.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	switch c.GenerationBackend {
	case BackendGemini, BackendOpenAI:
	default:
		return fmt.Errorf("GENERATION_BACKEND must be %q or %q, got %q", BackendGemini, BackendOpenAI, c.GenerationBackend)
	}
	switch c.TranscriptionBackend {
	case BackendGemini, BackendWhisper:
	default:
		return fmt.Errorf("TRANSCRIPTION_BACKEND must be %q or %q, got %q", BackendGemini, BackendWhisper, c.TranscriptionBackend)
	}
	if c.GenerationModel == "" {
		return errors.New("GENERATION_MODEL must not be empty")
	}
	if c.usesOpenAICompatible() && c.UpstreamBaseURL == "" {
		return errors.New("UPSTREAM_BASE_URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.TranscriptionTimeout <= 0 {
		return errors.New("TRANSCRIPTION_TIMEOUT_SECONDS must be > 0")
	}
	if c.GenerationTimeout <= 0 {
		return errors.New("GENERATION_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.AudioSampleRate < 8000 || c.AudioSampleRate > 48000 {
		return errors.New("AUDIO_SAMPLE_RATE must be between 8000 and 48000")
	}
	if c.MaxAudioDuration <= 0 {
		return errors.New("MAX_AUDIO_SECONDS must be > 0")
	}
	if c.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_PIXELS must be > 0")
	}
	if c.DefaultLanguage == "" {
		return errors.New("DEFAULT_LANGUAGE must not be empty")
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 1 {
		return errors.New("DEFAULT_TEMPERATURE must be between 0 and 1")
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return errors.New("CORS_ALLOWED_ORIGINS must not be empty")
	}
	return nil
}

func (c Config) usesOpenAICompatible() bool {
	return c.GenerationBackend == BackendOpenAI || c.TranscriptionBackend == BackendWhisper
}

func defaultGenerationModel(c Config) string {
	if c.GenerationBackend == BackendOpenAI {
		return defaultOpenAIModel
	}
	return defaultGeminiModel
}

// Gemini transcribes with the generation model only when that model is a
// Gemini one; otherwise it falls back to the Gemini default.
func defaultTranscriptionModel(c Config) string {
	switch {
	case c.TranscriptionBackend == BackendWhisper:
		return defaultWhisperModel
	case c.GenerationBackend != BackendGemini:
		return defaultGeminiModel
	}
	return c.GenerationModel
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
