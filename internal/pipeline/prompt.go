package pipeline

import (
	"fmt"
	"strings"
)

// SystemPrompt fixes the answer's grounding discipline and citation style.
const SystemPrompt = "You are Scarper, a focused research assistant connected to a private local LLM. " +
	"You must ground every answer in the supplied web context. " +
	"Cite sources using bracketed indices like [1]. If the context is insufficient, say you don't know."

const (
	contextHeading  = "Relevant context:"
	noContextNotice = "No external context was retrieved. Answer conservatively and note the limitation."
	answerDirective = "Craft a precise, factual response under 250 words. Place source citations inline, e.g., [2]."
)

// ContextBlock renders one indexed source for the grounding section.
func ContextBlock(index int, title, url, summary string) string {
	return fmt.Sprintf("[%d] %s\nURL: %s\nSummary:\n%s", index, title, url, summary)
}

// UserPrompt assembles the question, the grounding section (or the notice
// that there is none) and the answer directive.
func UserPrompt(query string, blocks []string) string {
	parts := []string{"User question: " + query}
	if len(blocks) > 0 {
		parts = append(parts, contextHeading, strings.Join(blocks, "\n\n"))
	} else {
		parts = append(parts, noContextNotice)
	}
	parts = append(parts, answerDirective)
	return strings.Join(parts, "\n\n")
}
