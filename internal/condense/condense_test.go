package condense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/scarper/internal/extract"
	"github.com/hyperifyio/scarper/internal/llm"
)

type capturingGenerator struct {
	mu   sync.Mutex
	reqs []llm.Request
	out  string
	err  error
}

func (g *capturingGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.out, g.err
}

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestExcerpt_TruncatesToFirstWords(t *testing.T) {
	got := Excerpt(numberedWords(5000), 1200)
	words := strings.Fields(got)
	require.Len(t, words, 1200)
	assert.Equal(t, "w0", words[0])
	assert.Equal(t, "w1199", words[1199])
	assert.Equal(t, numberedWords(1200), got)
}

func TestExcerpt_ShortTextUnchanged(t *testing.T) {
	text := "line one\n\nline   two"
	assert.Equal(t, text, Excerpt(text, 1200))
}

func TestCondense_BuildsRequest(t *testing.T) {
	g := &capturingGenerator{out: "  - key fact\n"}
	c := &Condenser{Generator: g}
	doc := extract.Document{URL: "https://example.com/a", Title: "Example", Text: numberedWords(5000)}

	d, ok := c.Condense(context.Background(), doc)
	require.True(t, ok)
	assert.Equal(t, Digest{URL: "https://example.com/a", Summary: "- key fact"}, d)

	require.Len(t, g.reqs, 1)
	req := g.reqs[0]
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.InDelta(t, 0.9, req.TopP, 1e-6)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Parts[0].Text, "precise research assistant")
	user := req.Messages[1].Parts[0].Text
	assert.True(t, strings.HasPrefix(user, "Summarize the following webpage content"))
	assert.Contains(t, user, "Content from Example:\n\n"+numberedWords(1200))
	assert.NotContains(t, user, "w1200")
}

func TestCondense_UsesURLWhenUntitled(t *testing.T) {
	g := &capturingGenerator{out: "summary"}
	c := &Condenser{Generator: g}
	_, ok := c.Condense(context.Background(), extract.Document{URL: "https://example.com/x", Text: "body"})
	require.True(t, ok)
	assert.Contains(t, g.reqs[0].Messages[1].Parts[0].Text, "Content from https://example.com/x:\n\nbody")
}

func TestCondense_Failures(t *testing.T) {
	cases := map[string]struct {
		gen *capturingGenerator
		doc extract.Document
	}{
		"no text":      {&capturingGenerator{out: "x"}, extract.Document{URL: "u", Text: "  "}},
		"backend down": {&capturingGenerator{err: errors.New("refused")}, extract.Document{URL: "u", Text: "body"}},
		"blank output": {&capturingGenerator{out: " \n "}, extract.Document{URL: "u", Text: "body"}},
		"no output":    {&capturingGenerator{err: llm.ErrNoOutput}, extract.Document{URL: "u", Text: "body"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := &Condenser{Generator: tc.gen}
			d, ok := c.Condense(context.Background(), tc.doc)
			assert.False(t, ok)
			assert.Empty(t, d.Summary)
		})
	}
}

func TestCondense_NoTextSkipsGeneration(t *testing.T) {
	g := &capturingGenerator{out: "x"}
	c := &Condenser{Generator: g}
	_, ok := c.Condense(context.Background(), extract.Document{URL: "u"})
	assert.False(t, ok)
	assert.Empty(t, g.reqs)
}
