// Package openai talks to OpenAI-compatible REST APIs (OpenAI, Groq, local
// whisper servers). It covers speech-to-text, chat completions and a model
// listing used for readiness checks.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatMessage content is either a string or a list of content parts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Content string
	Usage   *TokenUsage
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Transcribe uploads file to /audio/transcriptions. lang is a BCP-47 tag; only
// its base language is sent since the endpoint expects ISO-639-1 codes.
func (c *Client) Transcribe(ctx context.Context, file io.Reader, fileName, model, lang string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("model", model); err != nil {
		return "", err
	}
	if code := baseLanguage(lang); code != "" {
		if err := writer.WriteField("language", code); err != nil {
			return "", err
		}
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	respBody, err := c.do(ctx, "audio_transcriptions", http.MethodPost, "/audio/transcriptions", writer.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	return parseTranscript(respBody)
}

func (c *Client) ChatCompletion(ctx context.Context, reqPayload ChatCompletionRequest) (ChatCompletionResponse, error) {
	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	respBody, err := c.do(ctx, "chat_completions", http.MethodPost, "/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	return parseChatCompletion(respBody)
}

func (c *Client) CheckModels(ctx context.Context) error {
	_, err := c.do(ctx, "models", http.MethodGet, "/models", "", nil)
	return err
}

func (c *Client) do(ctx context.Context, endpoint, method, path, contentType string, body io.Reader) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}
	return respBody, nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func baseLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

func parseTranscript(data []byte) (string, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Text != "" {
		return parsed.Text, nil
	}

	plainText := strings.TrimSpace(joinLines(string(data)))
	if plainText == "" {
		return "", fmt.Errorf("invalid transcription response")
	}
	return plainText, nil
}

func parseChatCompletion(data []byte) (ChatCompletionResponse, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage,omitempty"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("invalid chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatCompletionResponse{}, fmt.Errorf("missing choices")
	}

	resp := ChatCompletionResponse{Content: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		resp.Usage = &TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return resp, nil
}

func joinLines(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	return strings.Join(parts, " ")
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
