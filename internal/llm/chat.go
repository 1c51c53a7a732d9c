package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatGenerator implements Generator on top of an OpenAI-compatible chat
// completion endpoint. Image parts are sent as data URIs.
type ChatGenerator struct {
	Client Client
	Model  string
}

func (g *ChatGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m))
	}
	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoOutput
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrNoOutput
	}
	return out, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	if len(m.Parts) == 1 && m.Parts[0].Image == nil {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Parts[0].Text}
	}
	parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Image != nil {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    DataURI(p.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
	}
	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

// DataURI encodes an image as a base64 data URI with its detected MIME type.
func DataURI(img []byte) string {
	return "data:" + ImageMIME(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
