// Package gemini adapts the Google Gen AI SDK to the generation and
// transcription interfaces used by the services.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mediaflow/internal/generate"

	"google.golang.org/genai"
)

var ErrMissingAPIKey = errors.New("gemini: api key is not configured")

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithTranscribePrompt sets the instruction sent alongside audio in Transcribe.
func WithTranscribePrompt(prompt string) Option {
	return func(c *Client) {
		if prompt = strings.TrimSpace(prompt); prompt != "" {
			c.transcribePrompt = prompt
		}
	}
}

// Client is safe for concurrent use. The SDK client is built on first use so
// that a missing key fails individual calls rather than startup.
type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	observer         ObserverFunc
	transcribePrompt string

	once    sync.Once
	sdk     *genai.Client
	initErr error
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:           strings.TrimSpace(apiKey),
		httpClient:       httpClient,
		transcribePrompt: "Transcribe the speech in this audio verbatim.",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Generate(ctx context.Context, req generate.Request) (string, error) {
	sdk, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		contents = append(contents, genai.NewContentFromText(m.Content, role(m.Role)))
	}
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := sdk.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// Transcribe sends the audio inline as audio/wav together with a
// transcription instruction naming the expected language.
func (c *Client) Transcribe(ctx context.Context, file io.Reader, _ string, model, language string) (string, error) {
	sdk, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}

	prompt := c.transcribePrompt
	if language != "" {
		prompt = fmt.Sprintf("%s The speech is in %s.", prompt, language)
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(data, "audio/wav"),
	}, genai.RoleUser)}

	resp, err := sdk.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("gemini transcribe: %w", err)
	}
	return resp.Text(), nil
}

// CheckModel fetches model metadata; it is used by the readiness probe.
func (c *Client) CheckModel(ctx context.Context, model string) error {
	sdk, err := c.client(ctx)
	if err != nil {
		return err
	}
	if _, err := sdk.Models.Get(ctx, model, nil); err != nil {
		return fmt.Errorf("gemini model %q: %w", model, err)
	}
	return nil
}

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = ErrMissingAPIKey
			return
		}
		httpClient := c.httpClient
		if c.observer != nil {
			clone := *httpClient
			clone.Transport = &observingTransport{next: transportOf(httpClient), observe: c.observer}
			httpClient = &clone
		}
		cfg := &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		}
		if c.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL + "/"}
		}
		c.sdk, c.initErr = genai.NewClient(ctx, cfg)
	})
	return c.sdk, c.initErr
}

func role(r string) genai.Role {
	if r == generate.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

type observingTransport struct {
	next    http.RoundTripper
	observe ObserverFunc
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.next.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.observe(endpointName(req.URL.Path), status, time.Since(started))
	return resp, err
}

// endpointName turns ".../models/gemini-2.0-flash:generateContent" into
// "generateContent" and a plain model lookup into "models".
func endpointName(path string) string {
	if i := strings.LastIndex(path, ":"); i >= 0 {
		return path[i+1:]
	}
	return "models"
}

func transportOf(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
