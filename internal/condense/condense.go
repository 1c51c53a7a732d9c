// Package condense turns extracted page text into short digests that fit in
// the final answer prompt.
package condense

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/extract"
	"github.com/hyperifyio/scarper/internal/llm"
)

const (
	DefaultMaxWords    = 1200
	DefaultMaxTokens   = 256
	DefaultTemperature = 0.1
	DefaultTopP        = 0.9
)

const systemPrompt = "You are a precise research assistant. Produce concise but information-dense summaries " +
	"highlighting key facts, statistics, quotes, and caveats. Use bullet points when appropriate."

// Digest is the condensed form of one document.
type Digest struct {
	URL     string
	Summary string
}

// Condenser summarizes documents through a Generator. Zero fields fall back
// to the package defaults.
type Condenser struct {
	Generator   llm.Generator
	MaxWords    int
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Condense summarizes doc. It reports false when the document has no text,
// or when generation fails or returns nothing; failures are logged and never
// returned.
func (c *Condenser) Condense(ctx context.Context, doc extract.Document) (Digest, bool) {
	if !doc.HasText() {
		return Digest{}, false
	}
	prepared := Excerpt(doc.Text, c.maxWords())
	if strings.TrimSpace(prepared) == "" {
		return Digest{}, false
	}
	out, err := c.Generator.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, systemPrompt),
			llm.TextMessage(llm.RoleUser, UserPrompt(doc, prepared)),
		},
		MaxTokens:   c.maxTokens(),
		Temperature: c.temperature(),
		TopP:        c.topP(),
	})
	if err != nil {
		log.Error().Err(err).Str("url", doc.URL).Msg("failed to summarize document")
		return Digest{}, false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		log.Warn().Str("url", doc.URL).Msg("empty summary")
		return Digest{}, false
	}
	return Digest{URL: doc.URL, Summary: out}, true
}

// UserPrompt builds the summarization request for a prepared excerpt.
func UserPrompt(doc extract.Document, prepared string) string {
	label := strings.TrimSpace(doc.Title)
	if label == "" {
		label = doc.URL
	}
	var sb strings.Builder
	sb.WriteString("Summarize the following webpage content so it can be used as grounding context for another ")
	sb.WriteString("larger prompt. Keep it under 200 words and avoid redundancy.\n\n")
	sb.WriteString("Content from ")
	sb.WriteString(label)
	sb.WriteString(":\n\n")
	sb.WriteString(prepared)
	return sb.String()
}

// Excerpt returns text unchanged when it has at most maxWords
// whitespace-separated tokens, otherwise the first maxWords tokens joined by
// single spaces.
func Excerpt(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

func (c *Condenser) maxWords() int {
	if c.MaxWords > 0 {
		return c.MaxWords
	}
	return DefaultMaxWords
}

func (c *Condenser) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

func (c *Condenser) temperature() float32 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return DefaultTemperature
}

func (c *Condenser) topP() float32 {
	if c.TopP > 0 {
		return c.TopP
	}
	return DefaultTopP
}
