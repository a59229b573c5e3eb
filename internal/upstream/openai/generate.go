package openai

import (
	"context"
	"encoding/base64"

	"mediaflow/internal/generate"

	"github.com/samber/lo"
)

// Generate maps req onto a chat completion. Attachments are sent as
// image_url parts with base64 data URIs.
func (c *Client) Generate(ctx context.Context, req generate.Request) (string, error) {
	resp, err := c.ChatCompletion(ctx, ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    chatMessages(req),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func chatMessages(req generate.Request) []ChatMessage {
	messages := make([]ChatMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}

	if len(req.Attachments) == 0 {
		return append(messages, ChatMessage{Role: "user", Content: req.Prompt})
	}
	parts := []ContentPart{{Type: "text", Text: req.Prompt}}
	parts = append(parts, lo.Map(req.Attachments, func(a generate.Attachment, _ int) ContentPart {
		return ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)},
		}
	})...)
	return append(messages, ChatMessage{Role: "user", Content: parts})
}
