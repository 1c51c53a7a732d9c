package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/scarper/internal/budget"
	"github.com/hyperifyio/scarper/internal/condense"
	"github.com/hyperifyio/scarper/internal/extract"
	"github.com/hyperifyio/scarper/internal/fetch"
	"github.com/hyperifyio/scarper/internal/llm"
	"github.com/hyperifyio/scarper/internal/pipeline"
	"github.com/hyperifyio/scarper/internal/search"
	"github.com/hyperifyio/scarper/internal/server"
	"github.com/hyperifyio/scarper/internal/tracer"
)

const preflightTimeout = 5 * time.Second

// App owns the collaborators built from a Config: one search backend, one
// fetcher, one serialized generation backend shared by condensing and
// answering, and the pipeline tying them together.
type App struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	llm      llm.Client
	shutdown func(context.Context) error
}

// New builds the application. The LLM endpoint is probed once by listing
// models; an unreachable endpoint is logged and does not fail startup.
func New(ctx context.Context, cfg Config) (*App, error) {
	cfg = cfg.WithDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	shutdown, err := tracer.Setup(ctx, tracer.Config{Enabled: cfg.TracingEnabled, Exporter: cfg.TracingExporter})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	provider, err := newSearchProvider(cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	// Use a high-throughput HTTP client to avoid client-side throttling
	client := llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, func(c *openai.ClientConfig) {
		c.HTTPClient = newHighThroughputHTTPClient(0)
	})

	a := &App{cfg: cfg, llm: client, shutdown: shutdown}
	a.pipeline = a.buildPipeline(provider, client)
	a.preflight(ctx)

	log.Info().
		Str("search", provider.Name()).
		Str("model", cfg.LLMModel).
		Int("fetch_concurrency", cfg.MaxConcurrentFetches).
		Dur("fetch_timeout", cfg.FetchTimeout).
		Msg("scarper configured")
	return a, nil
}

// buildPipeline wires the stages. Generation goes through a circuit breaker
// and then a single-slot gate so condensing and answering never run two
// inference calls at once against the same backend.
func (a *App) buildPipeline(provider search.Provider, client llm.Client) *pipeline.Pipeline {
	cfg := a.cfg
	gen := llm.NewSerial(llm.NewBreaker(cfg.LLMModel, &llm.ChatGenerator{Client: client, Model: cfg.LLMModel}, llm.BreakerConfig{}))

	fetcher := &fetch.Fetcher{
		Client: &fetch.Client{
			HTTPClient:        newHighThroughputHTTPClient(cfg.FetchTimeout),
			UserAgent:         cfg.UserAgent,
			PerRequestTimeout: cfg.FetchTimeout,
			RedirectMaxHops:   5,
		},
		Extractor:     extract.NewChain(),
		MaxConcurrent: cfg.MaxConcurrentFetches,
	}

	return &pipeline.Pipeline{
		Search:  provider,
		Fetcher: fetcher,
		Condenser: &condense.Condenser{
			Generator: gen,
			MaxWords:  cfg.SummaryChunkSize,
			MaxTokens: cfg.SummaryMaxTokens,
		},
		Generator: gen,
		Answer: pipeline.AnswerOptions{
			MaxTokens:   cfg.FinalAnswerMaxTokens,
			Temperature: float32(cfg.LLMTemperature),
			TopP:        float32(cfg.LLMTopP),
		},
		Budget:        newEstimator(cfg.Tokenizer),
		ContextTokens: cfg.ContextWindow(),
	}
}

// newEstimator returns nil, the character heuristic, for TokenizerHeuristic.
func newEstimator(encoding string) *budget.Estimator {
	if encoding == TokenizerHeuristic {
		return nil
	}
	return budget.NewEstimator(encoding)
}

// newSearchProvider builds the configured search backend.
func newSearchProvider(cfg Config) (search.Provider, error) {
	hc := newHighThroughputHTTPClient(cfg.FetchTimeout)
	switch backend := cfg.SearchBackend(); backend {
	case "brave":
		b := search.NewBrave(cfg.BraveAPIKey, hc)
		b.Endpoint = cfg.BraveEndpoint
		b.SafeSearch = cfg.BraveSafeSearch
		b.UserAgent = cfg.UserAgent
		return b, nil
	case "searxng":
		return &search.SearxNG{
			BaseURL:    cfg.SearxURL,
			APIKey:     cfg.SearxKey,
			HTTPClient: hc,
			UserAgent:  cfg.UserAgent,
			SafeSearch: cfg.BraveSafeSearch,
		}, nil
	case "file":
		return &search.FileProvider{Path: cfg.FileSearchPath, MatchAll: cfg.FileSearchMatchAll}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", backend)
	}
}

// preflight lists models as a best-effort connectivity check.
func (a *App) preflight(ctx context.Context) {
	lister, ok := a.llm.(llm.ModelLister)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("LLM returned zero models")
		return
	}
	found := false
	for _, m := range models.Models {
		if m.ID == a.cfg.LLMModel {
			found = true
			break
		}
	}
	ev := log.Info()
	if !found {
		ev = log.Warn()
	}
	ev.Int("count", len(models.Models)).Bool("model_listed", found).Str("model", a.cfg.LLMModel).Msg("LLM models available")
}

// Pipeline returns the configured answer pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Query answers one request through the pipeline.
func (a *App) Query(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	if req.TopK <= 0 {
		req.TopK = pipeline.DefaultTopK
	}
	if req.TopK > a.cfg.BraveResultCount {
		req.TopK = a.cfg.BraveResultCount
	}
	return a.pipeline.Run(ctx, req)
}

// NewServer returns the HTTP surface over the pipeline.
func (a *App) NewServer() *server.Server {
	return server.New(a.pipeline, server.Options{
		ResultCount:    a.cfg.BraveResultCount,
		RequestTimeout: a.cfg.RequestTimeout,
		RateLimit:      a.cfg.RateLimit,
		RateBurst:      a.cfg.RateBurst,
		Version:        BuildVersion,
	})
}

// Handler is the HTTP handler of NewServer, for embedding and tests.
func (a *App) Handler(ctx context.Context) http.Handler {
	return a.NewServer().Handler(ctx)
}

// Serve listens on the configured address until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return a.NewServer().Start(ctx, a.cfg.ListenAddr)
}

// Close flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}
