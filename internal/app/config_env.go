package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, false)
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This is used to let env take
// precedence over values coming from a config file while still allowing flags
// to remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, true)
}

func applyEnv(cfg *Config, force bool) {
	e := envApplier{force: force}

	e.str(&cfg.SearchProvider, "SCARPER_SEARCH_PROVIDER")
	e.str(&cfg.BraveAPIKey, "SCARPER_BRAVE_API_KEY", "BRAVE_API_KEY")
	e.str(&cfg.BraveEndpoint, "SCARPER_BRAVE_ENDPOINT")
	e.str(&cfg.BraveSafeSearch, "SCARPER_BRAVE_SAFE_SEARCH")
	e.integer(&cfg.BraveResultCount, "SCARPER_BRAVE_RESULT_COUNT")
	// Support both SEARX_URL and SEARXNG_URL; the prefixed key wins.
	e.str(&cfg.SearxURL, "SCARPER_SEARX_URL", "SEARX_URL", "SEARXNG_URL")
	e.str(&cfg.SearxKey, "SCARPER_SEARX_KEY", "SEARX_KEY", "SEARXNG_KEY")
	e.str(&cfg.FileSearchPath, "SCARPER_SEARCH_FILE")
	e.boolean(&cfg.FileSearchMatchAll, "SCARPER_FILE_SEARCH_MATCH_ALL")

	e.str(&cfg.LLMBaseURL, "SCARPER_LLM_BASE_URL", "LLM_BASE_URL")
	e.str(&cfg.LLMModel, "SCARPER_LLM_MODEL", "LLM_MODEL")
	e.str(&cfg.LLMAPIKey, "SCARPER_LLM_API_KEY", "LLM_API_KEY")
	e.float(&cfg.LLMTemperature, "SCARPER_LLM_TEMPERATURE")
	e.float(&cfg.LLMTopP, "SCARPER_LLM_TOP_P")
	e.integer(&cfg.LLMContextWindow, "SCARPER_LLM_CONTEXT_WINDOW")
	e.str(&cfg.Tokenizer, "SCARPER_TOKENIZER")

	e.integer(&cfg.MaxConcurrentFetches, "SCARPER_MAX_CONCURRENT_FETCHES")
	e.duration(&cfg.FetchTimeout, "SCARPER_FETCH_TIMEOUT")
	e.str(&cfg.UserAgent, "SCARPER_USER_AGENT")

	e.integer(&cfg.SummaryMaxTokens, "SCARPER_SUMMARY_MAX_TOKENS")
	e.integer(&cfg.SummaryChunkSize, "SCARPER_SUMMARY_CHUNK_SIZE")
	e.integer(&cfg.FinalAnswerMaxTokens, "SCARPER_FINAL_ANSWER_MAX_TOKENS")

	e.str(&cfg.ListenAddr, "SCARPER_LISTEN_ADDR")
	e.duration(&cfg.RequestTimeout, "SCARPER_REQUEST_TIMEOUT")
	e.float(&cfg.RateLimit, "SCARPER_RATE_LIMIT")
	e.integer(&cfg.RateBurst, "SCARPER_RATE_BURST")

	e.boolean(&cfg.TracingEnabled, "SCARPER_TRACING")
	e.str(&cfg.TracingExporter, "SCARPER_TRACING_EXPORTER")
	e.boolean(&cfg.Verbose, "SCARPER_VERBOSE", "VERBOSE")
}

// envApplier copies environment values into config fields. Without force
// only zero-valued fields are filled.
type envApplier struct {
	force bool
}

// lookup returns the first non-empty value among keys.
func (e envApplier) lookup(keys ...string) (string, string) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return k, v
		}
	}
	return "", ""
}

func (e envApplier) str(dst *string, keys ...string) {
	if !e.force && *dst != "" {
		return
	}
	if _, v := e.lookup(keys...); v != "" {
		*dst = v
	}
}

func (e envApplier) integer(dst *int, keys ...string) {
	if !e.force && *dst != 0 {
		return
	}
	k, v := e.lookup(keys...)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer environment value")
		return
	}
	*dst = n
}

func (e envApplier) float(dst *float64, keys ...string) {
	if !e.force && *dst != 0 {
		return
	}
	k, v := e.lookup(keys...)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric environment value")
		return
	}
	*dst = f
}

// duration accepts Go durations ("12s") or plain seconds ("12", "2.5").
func (e envApplier) duration(dst *time.Duration, keys ...string) {
	if !e.force && *dst != 0 {
		return
	}
	k, v := e.lookup(keys...)
	if v == "" {
		return
	}
	d, err := parseSeconds(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid duration in environment")
		return
	}
	*dst = d
}

// Booleans override when env present and truthy/falsey.
func (e envApplier) boolean(dst *bool, keys ...string) {
	if !e.force && *dst {
		return
	}
	_, v := e.lookup(keys...)
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func parseSeconds(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
