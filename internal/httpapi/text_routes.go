package httpapi

import (
	"net/http"

	"mediaflow/internal/generate"
	"mediaflow/internal/model"

	"github.com/samber/lo"
)

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.TextRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.writeOutcome(w, s.generator.Text(r.Context(), req.Prompt, s.temperature(req.Temperature), req.MaxTokens))
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	messages := lo.Map(req.Messages, func(m model.ChatMessage, _ int) generate.Message {
		return generate.Message{Role: m.Role, Content: m.Content}
	})
	s.writeOutcome(w, s.generator.Chat(r.Context(), messages, s.temperature(req.Temperature)))
}

func (s *server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req model.ContextRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.writeOutcome(w, s.generator.WithContext(r.Context(), req.Prompt, req.Context, s.temperature(req.Temperature)))
}

func (s *server) temperature(v *float64) float64 {
	if v == nil {
		return s.cfg.DefaultTemperature
	}
	return *v
}
