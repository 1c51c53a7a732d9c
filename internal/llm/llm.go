package llm

import (
	"context"
	"errors"
)

// ErrNoOutput is returned when the model produced no text.
var ErrNoOutput = errors.New("llm: no output")

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Part is one piece of message content: text, or raw image bytes.
type Part struct {
	Text  string
	Image []byte
}

// Message is a chat message made of ordered parts.
type Message struct {
	Role  string
	Parts []Part
}

// TextMessage returns a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Request is a single generation call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Generator produces text for a request. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
