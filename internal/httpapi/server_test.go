package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaflow/internal/config"
	"mediaflow/internal/generate"
	"mediaflow/internal/media"
	"mediaflow/internal/model"
	"mediaflow/internal/outcome"
	"mediaflow/internal/pipeline"
	"mediaflow/internal/speech"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type stubGenerator struct {
	result      outcome.Result
	prompt      string
	contextText string
	messages    []generate.Message
	images      []*media.Image
	temperature float64
	maxTokens   int
}

func (s *stubGenerator) Text(_ context.Context, prompt string, temperature float64, maxTokens int) outcome.Result {
	s.prompt, s.temperature, s.maxTokens = prompt, temperature, maxTokens
	return s.result
}

func (s *stubGenerator) Chat(_ context.Context, messages []generate.Message, temperature float64) outcome.Result {
	s.messages, s.temperature = messages, temperature
	return s.result
}

func (s *stubGenerator) WithContext(_ context.Context, prompt, contextText string, temperature float64) outcome.Result {
	s.prompt, s.contextText, s.temperature = prompt, contextText, temperature
	return s.result
}

func (s *stubGenerator) AnalyzeImages(_ context.Context, prompt string, images []*media.Image, temperature float64) outcome.Result {
	s.prompt, s.images, s.temperature = prompt, images, temperature
	return s.result
}

func (s *stubGenerator) CompareImages(_ context.Context, first, second *media.Image, prompt string, temperature float64) outcome.Result {
	s.prompt, s.images, s.temperature = prompt, []*media.Image{first, second}, temperature
	return s.result
}

func (s *stubGenerator) AnalyzeTranscript(_ context.Context, transcript, prompt string, temperature float64) outcome.Result {
	s.prompt, s.contextText, s.temperature = prompt, transcript, temperature
	return s.result
}

func (s *stubGenerator) Summarize(_ context.Context, transcript string, maxLength int, temperature float64) outcome.Result {
	s.contextText, s.maxTokens, s.temperature = transcript, maxLength, temperature
	return s.result
}

type stubSpeechClient struct {
	text     string
	err      error
	language string
	header   string
}

func (s *stubSpeechClient) Transcribe(_ context.Context, file io.Reader, _ string, _ string, language string) (string, error) {
	head := make([]byte, 4)
	_, _ = io.ReadFull(file, head)
	s.header = string(head)
	s.language = language
	return s.text, s.err
}

type fixture struct {
	handler   http.Handler
	generator *stubGenerator
	speech    *stubSpeechClient
	tempDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		generator: &stubGenerator{result: outcome.Ok("generated")},
		speech:    &stubSpeechClient{text: "hello from audio"},
		tempDir:   t.TempDir(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := media.NewNormalizer(media.WithTempDir(f.tempDir), media.WithLogger(logger))
	transcriber := speech.New(f.speech, "whisper", time.Second, speech.WithLogger(logger))
	cfg := config.Config{
		MaxUploadBytes:     1 << 20,
		DefaultLanguage:    "en-US",
		DefaultTemperature: 0.7,
		CORSAllowedOrigins: []string{"*"},
	}
	f.handler = NewServer(cfg, logger, Dependencies{
		Generator: f.generator,
		Images:    normalizer,
		Audio:     pipeline.New(normalizer, transcriber, f.generator, "Could not transcribe audio"),
	})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type filePart struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(f.data)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return v
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(out, 8000, 16, 1, 1)
	data := make([]int, 4000)
	for i := range data {
		data[i] = (i % 40) * 500
	}
	if err := enc.Write(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 8000}, Data: data, SourceBitDepth: 16}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	_ = out.Close()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealthzAndRoot(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected healthz response: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	welcome := decodeBody[model.WelcomeResponse](t, w)
	if welcome.Endpoints["audio"] != "/api/audio/" {
		t.Fatalf("unexpected welcome document: %+v", welcome)
	}
}

func TestReadyzReportsUpstreamFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := media.NewNormalizer()
	h := NewServer(config.Config{MaxUploadBytes: 1024}, logger, Dependencies{
		Generator: &stubGenerator{},
		Images:    normalizer,
		Audio:     pipeline.New(normalizer, speech.New(&stubSpeechClient{}, "m", time.Second), &stubGenerator{}, ""),
		Ready:     func(context.Context) error { return errors.New("401 from upstream") },
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if body := decodeBody[model.ErrorResponse](t, w); body.Code != "not_ready" || body.RequestID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestTranscribeEndToEnd(t *testing.T) {
	f := newFixture(t)

	w := f.do(multipartRequest(t, "/api/audio/transcribe", map[string]string{"language": "de-DE"},
		filePart{field: "audio_file", name: "speech.wav", data: wavBytes(t)}))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody[model.TextResponse](t, w); got.Text != "hello from audio" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if w.Header().Get(resultHeader) != "ok" {
		t.Fatalf("unexpected result header: %q", w.Header().Get(resultHeader))
	}
	if f.speech.header != "RIFF" || f.speech.language != "de-DE" {
		t.Fatalf("speech client got %q in %q", f.speech.header, f.speech.language)
	}
	entries, _ := os.ReadDir(f.tempDir)
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %d", len(entries))
	}
}

func TestTranscribeDefaultsLanguage(t *testing.T) {
	f := newFixture(t)
	f.do(multipartRequest(t, "/api/audio/transcribe", nil, filePart{field: "audio_file", name: "a.wav", data: wavBytes(t)}))
	if f.speech.language != "en-US" {
		t.Fatalf("unexpected language: %q", f.speech.language)
	}
}

func TestAudioTranscriptionFailureIsEmptyText(t *testing.T) {
	f := newFixture(t)
	f.speech.err = errors.New("quota exceeded")

	w := f.do(multipartRequest(t, "/api/audio/transcribe", nil, filePart{field: "audio_file", name: "a.wav", data: wavBytes(t)}))
	if w.Code != http.StatusOK || decodeBody[model.TextResponse](t, w).Text != "" {
		t.Fatalf("expected 200 with empty text, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(resultHeader) != "empty" {
		t.Fatalf("unexpected result header: %q", w.Header().Get(resultHeader))
	}

	w = f.do(multipartRequest(t, "/api/audio/summarize", map[string]string{"max_length": "20"},
		filePart{field: "audio_file", name: "a.wav", data: wavBytes(t)}))
	if got := decodeBody[model.TextResponse](t, w); got.Text != "Could not transcribe audio" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if w.Header().Get(resultHeader) != pipeline.StatusNoTranscript {
		t.Fatalf("unexpected result header: %q", w.Header().Get(resultHeader))
	}
}

func TestAudioAnalyzeForwardsForm(t *testing.T) {
	f := newFixture(t)
	w := f.do(multipartRequest(t, "/api/audio/analyze", map[string]string{"prompt": "Tone?", "temperature": "0.2"},
		filePart{field: "audio_file", name: "a.wav", data: wavBytes(t)}))
	if w.Code != http.StatusOK || decodeBody[model.TextResponse](t, w).Text != "generated" {
		t.Fatalf("unexpected response: %d %s", w.Code, w.Body.String())
	}
	if f.generator.prompt != "Tone?" || f.generator.contextText != "hello from audio" || f.generator.temperature != 0.2 {
		t.Fatalf("unexpected generator input: %+v", f.generator)
	}
}

func TestUndecodableAudioIs500WithDetail(t *testing.T) {
	f := newFixture(t)
	w := f.do(multipartRequest(t, "/api/audio/transcribe", nil, filePart{field: "audio_file", name: "a.wav", data: []byte("not audio at all")}))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	body := decodeBody[model.ErrorResponse](t, w)
	if body.Code != "input_decode_error" || !strings.Contains(body.Detail, "error processing audio input") {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestUnsupportedImageIs500WithDecodeDetail(t *testing.T) {
	f := newFixture(t)
	w := f.do(multipartRequest(t, "/api/image/analyze", map[string]string{"prompt": "What is this?"},
		filePart{field: "image", name: "doc.pdf", data: []byte("%PDF-1.4 not an image")}))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	body := decodeBody[model.ErrorResponse](t, w)
	if body.Code != "input_decode_error" || !strings.Contains(body.Detail, "error processing image input") {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestImageRoutes(t *testing.T) {
	f := newFixture(t)
	img := pngBytes(t)

	w := f.do(multipartRequest(t, "/api/image/analyze-multiple", map[string]string{"prompt": "Count"},
		filePart{field: "images", name: "a.png", data: img}, filePart{field: "images", name: "b.png", data: img}))
	if w.Code != http.StatusOK || len(f.generator.images) != 2 {
		t.Fatalf("unexpected response: %d %s (%d images)", w.Code, w.Body.String(), len(f.generator.images))
	}
	if f.generator.images[0].MIMEType != "image/png" || f.generator.temperature != 0.7 {
		t.Fatalf("unexpected generator input: %+v", f.generator)
	}

	w = f.do(multipartRequest(t, "/api/image/compare", nil,
		filePart{field: "image1", name: "a.png", data: img}, filePart{field: "image2", name: "b.png", data: img}))
	if w.Code != http.StatusOK || f.generator.prompt != "" || len(f.generator.images) != 2 {
		t.Fatalf("unexpected compare call: %d %s", w.Code, w.Body.String())
	}

	w = f.do(multipartRequest(t, "/api/image/compare", nil, filePart{field: "image1", name: "a.png", data: img}))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "image2") {
		t.Fatalf("expected missing image2 to be rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestImageAnalyzeValidatesForm(t *testing.T) {
	f := newFixture(t)
	img := filePart{field: "image", name: "a.png", data: pngBytes(t)}

	w := f.do(multipartRequest(t, "/api/image/analyze", map[string]string{"prompt": " "}, img))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank prompt, got %d", w.Code)
	}
	w = f.do(multipartRequest(t, "/api/image/analyze", map[string]string{"prompt": "x", "temperature": "hot"}, img))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad temperature, got %d", w.Code)
	}
	w = f.do(multipartRequest(t, "/api/image/analyze", map[string]string{"prompt": "x"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing upload, got %d", w.Code)
	}
}

func TestTextRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(jsonRequest(t, "/api/text/generate", map[string]any{"prompt": "hi", "max_tokens": 12}))
	if w.Code != http.StatusOK || decodeBody[model.TextResponse](t, w).Text != "generated" {
		t.Fatalf("unexpected response: %d %s", w.Code, w.Body.String())
	}
	if f.generator.temperature != 0.7 || f.generator.maxTokens != 12 {
		t.Fatalf("unexpected generator input: %+v", f.generator)
	}

	w = f.do(jsonRequest(t, "/api/text/generate", map[string]any{"prompt": "hi", "temperature": 0}))
	if w.Code != http.StatusOK || f.generator.temperature != 0 {
		t.Fatalf("explicit zero temperature not honored: %v", f.generator.temperature)
	}

	w = f.do(jsonRequest(t, "/api/text/context", map[string]any{"prompt": "q", "context": "c"}))
	if w.Code != http.StatusOK || f.generator.contextText != "c" {
		t.Fatalf("unexpected context call: %d %+v", w.Code, f.generator)
	}

	w = f.do(jsonRequest(t, "/api/text/chat", map[string]any{"messages": []map[string]string{
		{"role": "user", "content": "Hi"},
		{"role": "model", "content": "Hello"},
		{"role": "user", "content": "Bye"},
	}}))
	if w.Code != http.StatusOK || len(f.generator.messages) != 3 || f.generator.messages[1].Role != "model" {
		t.Fatalf("unexpected chat call: %d %+v", w.Code, f.generator.messages)
	}
}

func TestChatAcceptsUnknownRolesAndEmptyContent(t *testing.T) {
	f := newFixture(t)
	w := f.do(jsonRequest(t, "/api/text/chat", map[string]any{"messages": []map[string]string{
		{"role": "robot", "content": "beep"},
		{"role": "user", "content": ""},
	}}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if len(f.generator.messages) != 2 || f.generator.messages[0].Role != "robot" {
		t.Fatalf("messages not forwarded as sent: %+v", f.generator.messages)
	}
}

func TestEmptyGenerationIsOKWithEmptyStatus(t *testing.T) {
	f := newFixture(t)
	f.generator.result = outcome.Empty(errors.New("blocked"))

	w := f.do(jsonRequest(t, "/api/text/generate", map[string]any{"prompt": "hi"}))
	if w.Code != http.StatusOK || decodeBody[model.TextResponse](t, w).Text != "" {
		t.Fatalf("unexpected response: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(resultHeader) != "empty" {
		t.Fatalf("unexpected result header: %q", w.Header().Get(resultHeader))
	}
}

func TestTextRequestErrors(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/text/generate", strings.NewReader("{not json"))
	if w := f.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}

	cases := map[string]any{
		"missing prompt":      map[string]any{"temperature": 0.5},
		"temperature too hot": map[string]any{"prompt": "x", "temperature": 1.5},
		"empty chat":          map[string]any{"messages": []any{}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			path := "/api/text/generate"
			if strings.Contains(name, "chat") {
				path = "/api/text/chat"
			}
			w := f.do(jsonRequest(t, path, payload))
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d %s", w.Code, w.Body.String())
			}
			if body := decodeBody[model.ErrorResponse](t, w); body.Code != "validation_error" || body.Detail == "" {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte{0}, 2<<20)
	w := f.do(multipartRequest(t, "/api/audio/transcribe", nil, filePart{field: "audio_file", name: "a.wav", data: big}))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/text/generate", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := f.do(req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS headers, got %v", w.Header())
	}
}
