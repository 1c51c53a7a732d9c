package app

import (
	"flag"
	"fmt"
	"io"
)

// Options is the parsed command line: the resolved Config plus the switches
// that only steer the command itself.
type Options struct {
	Config Config

	ConfigPath string
	EnvFile    string
	Version    bool

	// Query answers one question on stdout instead of serving HTTP.
	Query     string
	TopK      int
	ImagePath string
}

// ParseArgs resolves configuration with precedence flags > environment >
// config file > defaults. Flags are parsed twice: once to find the config
// file and dotenv path, then again over the merged result so that only
// explicitly given flags win.
func ParseArgs(name string, args []string, stderr io.Writer) (Options, error) {
	first := Options{Config: DefaultConfig()}
	fs := newFlagSet(name, &first)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if first.Version {
		return first, nil
	}

	if err := LoadEnvFiles(first.EnvFile); err != nil {
		return Options{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if first.ConfigPath != "" {
		fc, err := LoadConfigFile(first.ConfigPath)
		if err != nil {
			return Options{}, fmt.Errorf("load config file: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc); err != nil {
			return Options{}, err
		}
	}
	ApplyEnvOverrides(&cfg)

	resolved := Options{Config: cfg.WithDefaults()}
	fs = newFlagSet(name, &resolved)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if err := ValidateConfig(resolved.Config); err != nil {
		return Options{}, err
	}
	return resolved, nil
}

// newFlagSet binds every flag to o, using o's current values as defaults.
func newFlagSet(name string, o *Options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &o.Config

	fs.StringVar(&o.ConfigPath, "config", o.ConfigPath, "Path to a YAML or JSON config file")
	fs.StringVar(&o.EnvFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	fs.BoolVar(&o.Version, "version", false, "Print build information and exit")
	fs.StringVar(&o.Query, "query", "", "Answer a single question and print JSON instead of serving HTTP")
	fs.IntVar(&o.TopK, "top-k", 0, "Number of search results to use with -query (0 uses the default)")
	fs.StringVar(&o.ImagePath, "image", "", "Optional image file sent with -query")

	fs.StringVar(&c.SearchProvider, "search.provider", c.SearchProvider, "Search backend: brave, searxng or file (empty selects the first configured)")
	fs.StringVar(&c.BraveAPIKey, "brave.key", c.BraveAPIKey, "Brave Search API subscription token")
	fs.StringVar(&c.BraveEndpoint, "brave.endpoint", c.BraveEndpoint, "Brave Search API endpoint")
	fs.StringVar(&c.BraveSafeSearch, "search.safe", c.BraveSafeSearch, "Safe search level: off, moderate or strict")
	fs.IntVar(&c.BraveResultCount, "search.count", c.BraveResultCount, "Maximum search results per query (upper bound for top_k)")
	fs.StringVar(&c.SearxURL, "searx.url", c.SearxURL, "SearxNG base URL")
	fs.StringVar(&c.SearxKey, "searx.key", c.SearxKey, "SearxNG API key (optional)")
	fs.StringVar(&c.FileSearchPath, "search.file", c.FileSearchPath, "Path to JSON file for offline file-based search provider")
	fs.BoolVar(&c.FileSearchMatchAll, "search.file.all", c.FileSearchMatchAll, "Return every file entry regardless of the query")

	fs.StringVar(&c.LLMBaseURL, "llm.base", c.LLMBaseURL, "OpenAI-compatible base URL")
	fs.StringVar(&c.LLMModel, "llm.model", c.LLMModel, "Model name")
	fs.StringVar(&c.LLMAPIKey, "llm.key", c.LLMAPIKey, "API key for OpenAI-compatible server")
	fs.Float64Var(&c.LLMTemperature, "llm.temperature", c.LLMTemperature, "Sampling temperature of the final answer")
	fs.Float64Var(&c.LLMTopP, "llm.topP", c.LLMTopP, "Nucleus sampling of the final answer")
	fs.IntVar(&c.LLMContextWindow, "llm.context", c.LLMContextWindow, "Model context window in tokens (0 estimates from the model name)")
	fs.StringVar(&c.Tokenizer, "llm.tokenizer", c.Tokenizer, "tiktoken encoding used to estimate prompt size")

	fs.IntVar(&c.MaxConcurrentFetches, "fetch.concurrency", c.MaxConcurrentFetches, "Maximum pages fetched at once")
	fs.DurationVar(&c.FetchTimeout, "fetch.timeout", c.FetchTimeout, "Per-page fetch timeout")
	fs.StringVar(&c.UserAgent, "fetch.ua", c.UserAgent, "User-Agent for page and search requests")

	fs.IntVar(&c.SummaryMaxTokens, "summary.maxTokens", c.SummaryMaxTokens, "Maximum tokens per page summary")
	fs.IntVar(&c.SummaryChunkSize, "summary.chunkWords", c.SummaryChunkSize, "Words of page text sent for summarization")
	fs.IntVar(&c.FinalAnswerMaxTokens, "answer.maxTokens", c.FinalAnswerMaxTokens, "Maximum tokens of the final answer")

	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "HTTP listen address")
	fs.DurationVar(&c.RequestTimeout, "server.timeout", c.RequestTimeout, "Per-request deadline for /query (0 disables)")
	fs.Float64Var(&c.RateLimit, "server.rate", c.RateLimit, "Requests per second accepted by /query (0 disables)")
	fs.IntVar(&c.RateBurst, "server.burst", c.RateBurst, "Burst size of the /query rate limit")

	fs.BoolVar(&c.TracingEnabled, "trace", c.TracingEnabled, "Record OpenTelemetry spans")
	fs.StringVar(&c.TracingExporter, "trace.exporter", c.TracingExporter, "Span exporter: stdout or noop")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "Verbose logging")
	return fs
}
