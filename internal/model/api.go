package model

type ErrorResponse struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type WelcomeResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

// TextResponse is the body of every /api route.
type TextResponse struct {
	Text string `json:"text"`
}

// Temperature is a pointer so that an explicit 0 is distinguishable from "unset".
type TextRequest struct {
	Prompt      string   `json:"prompt" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   int      `json:"max_tokens" validate:"gte=0"`
}

// Messages with unknown roles are skipped by chat; empty content is passed through.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1"`
	Temperature *float64      `json:"temperature" validate:"omitempty,gte=0,lte=1"`
}

type ContextRequest struct {
	Prompt      string   `json:"prompt" validate:"required"`
	Context     string   `json:"context" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=1"`
}

// Multipart forms. Uploads are read separately; these hold the scalar fields.

type ImageForm struct {
	Prompt      string  `form:"prompt" validate:"required"`
	Temperature float64 `form:"temperature" validate:"gte=0,lte=1"`
}

type CompareForm struct {
	Prompt      string  `form:"prompt"`
	Temperature float64 `form:"temperature" validate:"gte=0,lte=1"`
}

type AudioForm struct {
	Prompt      string  `form:"prompt"`
	Language    string  `form:"language" validate:"omitempty,bcp47_language_tag"`
	Temperature float64 `form:"temperature" validate:"gte=0,lte=1"`
	MaxLength   int     `form:"max_length" validate:"gte=0"`
}
