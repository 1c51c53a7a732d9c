package app

import (
	"time"

	"github.com/hyperifyio/scarper/internal/budget"
	"github.com/hyperifyio/scarper/internal/condense"
	"github.com/hyperifyio/scarper/internal/fetch"
	"github.com/hyperifyio/scarper/internal/pipeline"
	"github.com/hyperifyio/scarper/internal/search"
)

const (
	DefaultUserAgent        = "ScarperBot/0.1 (+https://github.com/cto-dot-new/scarper; contact=ops@cto.new)"
	DefaultListenAddr       = ":8000"
	DefaultBraveResultCount = 6
	DefaultBraveSafeSearch  = "moderate"
	DefaultFetchTimeout     = 12 * time.Second
	DefaultTokenizer        = "cl100k_base"
	// TokenizerHeuristic estimates tokens from character counts and never
	// loads a tiktoken vocabulary.
	TokenizerHeuristic = "heuristic"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Search. The first configured backend wins: Brave, then SearxNG, then
	// a local results file.
	SearchProvider   string // brave, searxng or file; empty selects automatically
	BraveAPIKey      string
	BraveEndpoint    string
	BraveSafeSearch  string
	BraveResultCount int
	SearxURL         string
	SearxKey         string
	FileSearchPath   string
	// FileSearchMatchAll returns every file entry regardless of the query.
	FileSearchMatchAll bool

	// LLM
	LLMBaseURL       string
	LLMModel         string
	LLMAPIKey        string
	LLMTemperature   float64
	LLMTopP          float64
	LLMContextWindow int // zero estimates from LLMModel
	Tokenizer        string

	// Fetching
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	UserAgent            string

	// Condensing and answering
	SummaryMaxTokens     int
	SummaryChunkSize     int
	FinalAnswerMaxTokens int

	// HTTP surface
	ListenAddr     string
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second; zero disables limiting
	RateBurst      int

	// Tracing
	TracingEnabled  bool
	TracingExporter string

	Verbose bool
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero-valued settings with their defaults.
func (c Config) WithDefaults() Config {
	if c.BraveEndpoint == "" {
		c.BraveEndpoint = search.DefaultBraveEndpoint
	}
	if c.BraveSafeSearch == "" {
		c.BraveSafeSearch = DefaultBraveSafeSearch
	}
	if c.BraveResultCount == 0 {
		c.BraveResultCount = DefaultBraveResultCount
	}
	if c.LLMTemperature == 0 {
		c.LLMTemperature = pipeline.DefaultAnswerTemperature
	}
	if c.LLMTopP == 0 {
		c.LLMTopP = pipeline.DefaultAnswerTopP
	}
	if c.Tokenizer == "" {
		c.Tokenizer = DefaultTokenizer
	}
	if c.MaxConcurrentFetches == 0 {
		c.MaxConcurrentFetches = fetch.DefaultMaxConcurrent
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = condense.DefaultMaxTokens
	}
	if c.SummaryChunkSize == 0 {
		c.SummaryChunkSize = condense.DefaultMaxWords
	}
	if c.FinalAnswerMaxTokens == 0 {
		c.FinalAnswerMaxTokens = pipeline.DefaultAnswerMaxTokens
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.TracingExporter == "" {
		c.TracingExporter = "stdout"
	}
	return c
}

// ContextWindow returns the configured context window, or an estimate for
// the configured model when none is set.
func (c Config) ContextWindow() int {
	if c.LLMContextWindow > 0 {
		return c.LLMContextWindow
	}
	return budget.ModelContextTokens(c.LLMModel)
}

// SearchBackend reports which search provider the configuration selects,
// or "" when none is configured.
func (c Config) SearchBackend() string {
	if c.SearchProvider != "" {
		return c.SearchProvider
	}
	switch {
	case trim(c.BraveAPIKey) != "":
		return "brave"
	case trim(c.SearxURL) != "":
		return "searxng"
	case trim(c.FileSearchPath) != "":
		return "file"
	}
	return ""
}
