package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediaflow/internal/media"
	"mediaflow/internal/outcome"
	"mediaflow/internal/prompts"

	"github.com/samber/lo"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var ErrNoUserMessage = errors.New("chat has no user message")

type Message struct {
	Role    string
	Content string
}

type Attachment struct {
	MIMEType string
	Data     []byte
}

// Request is built once per call and never modified afterwards.
type Request struct {
	Model       string
	System      string
	Prompt      string
	History     []Message
	Attachments []Attachment
	Temperature float64
	MaxTokens   int
}

// Backend is a generative model API. Implementations live under internal/upstream.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPrompts(set prompts.Set) Option {
	return func(s *Service) {
		s.prompts = set
	}
}

// WithVisionModel selects the model used for requests carrying images.
func WithVisionModel(model string) Option {
	return func(s *Service) {
		s.visionModel = strings.TrimSpace(model)
	}
}

// WithEmptyHook is called with the operation name whenever a call yields an empty result.
func WithEmptyHook(hook func(operation string)) Option {
	return func(s *Service) {
		s.onEmpty = hook
	}
}

type Service struct {
	backend      Backend
	defaultModel string
	visionModel  string
	timeout      time.Duration
	logger       *slog.Logger
	prompts      prompts.Set
	onEmpty      func(operation string)
}

func New(backend Backend, defaultModel string, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		backend:      backend,
		defaultModel: strings.TrimSpace(defaultModel),
		timeout:      timeout,
		logger:       slog.Default(),
		prompts:      prompts.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.visionModel == "" {
		s.visionModel = s.defaultModel
	}
	return s
}

// Generate forwards req to the backend. Backend failures and blank output are
// logged and returned as an empty result; Generate never fails.
func (s *Service) Generate(ctx context.Context, req Request) outcome.Result {
	return s.run(ctx, "generate", req)
}

func (s *Service) Text(ctx context.Context, prompt string, temperature float64, maxTokens int) outcome.Result {
	return s.run(ctx, "text", Request{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}

// Chat replays every message before the last user message as history and
// sends that user message. Only the reply to it is returned. System messages
// become the system instruction; messages after the last user turn are dropped.
func (s *Service) Chat(ctx context.Context, messages []Message, temperature float64) outcome.Result {
	last, idx, ok := lo.FindLastIndexOf(messages, func(m Message) bool {
		return normalizeRole(m.Role) == RoleUser
	})
	if !ok {
		s.logEmpty("chat", ErrNoUserMessage)
		return outcome.Empty(ErrNoUserMessage)
	}

	earlier := messages[:idx]
	system := lo.FilterMap(earlier, func(m Message, _ int) (string, bool) {
		return strings.TrimSpace(m.Content), normalizeRole(m.Role) == RoleSystem
	})
	history := lo.FilterMap(earlier, func(m Message, _ int) (Message, bool) {
		role := normalizeRole(m.Role)
		return Message{Role: role, Content: m.Content}, role != "" && role != RoleSystem && strings.TrimSpace(m.Content) != ""
	})

	return s.run(ctx, "chat", Request{
		System:      strings.Join(system, "\n"),
		History:     history,
		Prompt:      last.Content,
		Temperature: temperature,
	})
}

func (s *Service) WithContext(ctx context.Context, prompt, contextText string, temperature float64) outcome.Result {
	return s.run(ctx, "context", Request{
		Prompt:      fmt.Sprintf("Context: %s\n\nPrompt: %s", contextText, prompt),
		Temperature: temperature,
	})
}

func (s *Service) AnalyzeImages(ctx context.Context, prompt string, images []*media.Image, temperature float64) outcome.Result {
	return s.run(ctx, "analyze_images", Request{
		Model:       s.visionModel,
		Prompt:      prompt,
		Attachments: attachments(images),
		Temperature: temperature,
	})
}

// CompareImages falls back to the default comparison prompt when prompt is blank.
func (s *Service) CompareImages(ctx context.Context, first, second *media.Image, prompt string, temperature float64) outcome.Result {
	if strings.TrimSpace(prompt) == "" {
		prompt = s.prompts.CompareImages
	}
	return s.run(ctx, "compare_images", Request{
		Model:       s.visionModel,
		Prompt:      prompt,
		Attachments: attachments([]*media.Image{first, second}),
		Temperature: temperature,
	})
}

func (s *Service) AnalyzeTranscript(ctx context.Context, transcript, prompt string, temperature float64) outcome.Result {
	if strings.TrimSpace(prompt) == "" {
		prompt = s.prompts.AnalyzeTranscript
	}
	return s.run(ctx, "analyze_transcript", Request{
		Prompt:      fmt.Sprintf("%s\n\nTranscript: %s", prompt, transcript),
		Temperature: temperature,
	})
}

// Summarize asks for a summary. maxLength is passed to the model as an
// instruction only; the output length is not enforced.
func (s *Service) Summarize(ctx context.Context, transcript string, maxLength int, temperature float64) outcome.Result {
	constraint := ""
	if maxLength > 0 {
		constraint = fmt.Sprintf(" in %d words or less", maxLength)
	}
	return s.run(ctx, "summarize", Request{
		Prompt:      fmt.Sprintf("%s%s:\n\n%s", s.prompts.Summarize, constraint, transcript),
		Temperature: temperature,
	})
}

func (s *Service) run(ctx context.Context, operation string, req Request) outcome.Result {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = s.defaultModel
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.backend.Generate(ctx, req)
	if err != nil {
		s.logEmpty(operation, err)
		return outcome.Empty(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logEmpty(operation, outcome.ErrNoOutput)
		return outcome.Empty(outcome.ErrNoOutput)
	}
	return outcome.Ok(text)
}

func (s *Service) logEmpty(operation string, reason error) {
	s.logger.Warn("generation returned no text", "operation", operation, "error", reason)
	if s.onEmpty != nil {
		s.onEmpty(operation)
	}
}

func attachments(images []*media.Image) []Attachment {
	return lo.FilterMap(images, func(img *media.Image, _ int) (Attachment, bool) {
		if img == nil {
			return Attachment{}, false
		}
		return Attachment{MIMEType: img.MIMEType, Data: img.Data}, true
	})
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "model":
		return RoleAssistant
	case "system":
		return RoleSystem
	case "user":
		return RoleUser
	default:
		return ""
	}
}
