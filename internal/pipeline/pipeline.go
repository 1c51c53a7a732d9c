// Package pipeline answers a question from live web context: search, fetch
// and extract, condense, then one grounded generation call with indexed
// citations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/aggregate"
	"github.com/hyperifyio/scarper/internal/budget"
	"github.com/hyperifyio/scarper/internal/condense"
	"github.com/hyperifyio/scarper/internal/extract"
	"github.com/hyperifyio/scarper/internal/fetch"
	"github.com/hyperifyio/scarper/internal/llm"
	"github.com/hyperifyio/scarper/internal/search"
	"github.com/hyperifyio/scarper/internal/tracer"
)

var (
	// ErrEmptyResults is returned when search yields no candidates.
	ErrEmptyResults = errors.New("no search results returned for the supplied query")
	// ErrInvalidImagePayload is returned when the image is not valid base64.
	ErrInvalidImagePayload = errors.New("invalid base64 image payload")
	// ErrGeneration wraps failures of the final answer generation.
	ErrGeneration = errors.New("answer generation failed")
)

const (
	DefaultAnswerMaxTokens   = 768
	DefaultAnswerTemperature = 0.2
	DefaultAnswerTopP        = 0.95
	DefaultTopK              = 5
)

// Request is one question to answer.
type Request struct {
	Query string
	TopK  int
	// ImageBase64 is an optional image, base64 with or without a data-URL header.
	ImageBase64 string
}

// Source is a search candidate as reported back to the caller. Index is the
// candidate's 1-based position in search order and matches the bracketed
// citation in the answer.
type Source struct {
	Index   int    `json:"-"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Response is the grounded answer and the sources it may cite.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Fetcher retrieves and extracts candidates. Implemented by *fetch.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, candidates []fetch.Candidate) []extract.Document
}

// Condenser summarizes a document. Implemented by *condense.Condenser.
type Condenser interface {
	Condense(ctx context.Context, doc extract.Document) (condense.Digest, bool)
}

// AnswerOptions are the sampling settings of the final generation call.
type AnswerOptions struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Pipeline wires the collaborators of one answer. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	Search    search.Provider
	Fetcher   Fetcher
	Condenser Condenser
	Generator llm.Generator
	Answer    AnswerOptions

	// Budget estimates prompt size for logging. Nil uses the character
	// heuristic.
	Budget *budget.Estimator
	// ContextTokens is the model's context window. Zero disables the
	// overflow warning.
	ContextTokens int
}

// Run answers req. Only ErrEmptyResults, ErrInvalidImagePayload, a
// *search.ProviderError and ErrGeneration are returned; per-page failures
// only reduce the context the answer is grounded in.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("query", req.Query))
	start := time.Now()

	results, err := p.search(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return Response{}, err
	}
	candidates := aggregate.Candidates(results)

	docs := p.fetchAll(ctx, candidates)
	digests := p.condenseAll(ctx, docs)

	sources, blocks := assemble(results, digests)
	if len(blocks) == 0 {
		log.Warn().Str("query", req.Query).Int("candidates", len(candidates)).Int("documents", len(docs)).Msg("no context could be condensed; answering without grounding")
	}

	messages, err := p.messages(req, blocks)
	if err != nil {
		tracer.RecordError(span, err)
		return Response{}, err
	}

	answer, err := p.generate(ctx, messages)
	if err != nil {
		tracer.RecordError(span, err)
		return Response{}, err
	}

	if len(sources) == 0 {
		sources = allSources(results)
	}
	log.Info().Str("query", req.Query).Int("candidates", len(candidates)).Int("documents", len(docs)).Int("grounded", len(blocks)).Dur("elapsed", time.Since(start)).Msg("answered")
	tracer.SetOK(span)
	return Response{Answer: answer, Sources: sources}, nil
}

func (p *Pipeline) search(ctx context.Context, req Request) ([]search.Result, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.search")
	defer span.End()
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	results, err := p.Search.Search(ctx, req.Query, topK)
	if err != nil {
		return nil, search.AsProviderError(p.Search.Name(), err)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	span.SetAttributes(tracer.IntAttr("count", len(results)))
	if len(results) == 0 {
		return nil, ErrEmptyResults
	}
	log.Debug().Str("query", req.Query).Int("count", len(results)).Str("provider", p.Search.Name()).Msg("search results")
	return results, nil
}

func (p *Pipeline) fetchAll(ctx context.Context, candidates []fetch.Candidate) []extract.Document {
	ctx, span := tracer.StartSpan(ctx, "pipeline.fetch")
	defer span.End()
	docs := p.Fetcher.FetchAll(ctx, candidates)
	span.SetAttributes(tracer.IntAttr("count", len(docs)))
	return docs
}

// condenseAll condenses every document with text concurrently and returns
// the digests keyed by URL.
func (p *Pipeline) condenseAll(ctx context.Context, docs []extract.Document) map[string]condense.Digest {
	ctx, span := tracer.StartSpan(ctx, "pipeline.condense")
	defer span.End()

	type result struct {
		digest condense.Digest
		ok     bool
	}
	ch := make(chan result)
	n := 0
	for _, d := range docs {
		if !d.HasText() {
			continue
		}
		n++
		go func(d extract.Document) {
			dg, ok := p.Condenser.Condense(ctx, d)
			if ok {
				dg.URL = d.URL
			}
			ch <- result{digest: dg, ok: ok}
		}(d)
	}
	out := make(map[string]condense.Digest, n)
	for i := 0; i < n; i++ {
		r := <-ch
		if r.ok && strings.TrimSpace(r.digest.Summary) != "" {
			out[r.digest.URL] = r.digest
		}
	}
	span.SetAttributes(tracer.IntAttr("count", len(out)))
	return out
}

// assemble walks results in search order, indexing from 1, and returns the
// sources that have a digest together with their context blocks. Results are
// used exactly as search returned them; a repeated URL keeps its own index.
func assemble(results []search.Result, digests map[string]condense.Digest) ([]Source, []string) {
	var sources []Source
	var blocks []string
	for i, r := range results {
		d, ok := digests[r.URL]
		if !ok {
			continue
		}
		idx := i + 1
		sources = append(sources, Source{Index: idx, URL: r.URL, Title: r.Title, Snippet: r.Snippet, Summary: d.Summary})
		blocks = append(blocks, ContextBlock(idx, r.Title, r.URL, d.Summary))
	}
	return sources, blocks
}

func allSources(results []search.Result) []Source {
	out := make([]Source, 0, len(results))
	for i, r := range results {
		out = append(out, Source{Index: i + 1, URL: r.URL, Title: r.Title, Snippet: r.Snippet})
	}
	return out
}

func (p *Pipeline) messages(req Request, blocks []string) ([]llm.Message, error) {
	user := llm.Message{Role: llm.RoleUser, Parts: []llm.Part{{Text: UserPrompt(req.Query, blocks)}}}
	if req.ImageBase64 != "" {
		img, err := DecodeImage(req.ImageBase64)
		if err != nil {
			return nil, err
		}
		user.Parts = append(user.Parts, llm.Part{Image: img})
	}
	return []llm.Message{llm.TextMessage(llm.RoleSystem, SystemPrompt), user}, nil
}

func (p *Pipeline) generate(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.generate")
	defer span.End()

	opts := p.answerOptions()
	p.logBudget(messages, opts.MaxTokens)
	answer, err := p.Generator.Generate(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: %w", ErrGeneration, llm.ErrNoOutput)
	}
	return answer, nil
}

func (p *Pipeline) answerOptions() AnswerOptions {
	o := p.Answer
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultAnswerMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultAnswerTemperature
	}
	if o.TopP <= 0 {
		o.TopP = DefaultAnswerTopP
	}
	return o
}

func (p *Pipeline) logBudget(messages []llm.Message, reserved int) {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		for _, part := range m.Parts {
			if part.Image == nil {
				texts = append(texts, part.Text)
			}
		}
	}
	tokens := p.Budget.PromptTokens(texts...)
	ev := log.Debug()
	if p.ContextTokens > 0 && !budget.FitsInContext(p.ContextTokens, reserved+budget.HeadroomTokens(p.ContextTokens), tokens) {
		ev = log.Warn()
	}
	ev.Int("prompt_tokens", tokens).Int("reserved", reserved).Int("context_tokens", p.ContextTokens).Msg("answer prompt budget")
}
