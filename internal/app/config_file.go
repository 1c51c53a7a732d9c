package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/scarper/internal/search"
)

// FileConfig represents the single-file configuration schema.
// Nested sections improve readability and map naturally to flags/env.
// Durations are strings: Go durations ("12s") or plain seconds ("12").
type FileConfig struct {
	Listen string `yaml:"listen" json:"listen"`

	Search struct {
		Provider     string `yaml:"provider" json:"provider"`
		ResultCount  int    `yaml:"resultCount" json:"resultCount"`
		SafeSearch   string `yaml:"safeSearch" json:"safeSearch"`
		File         string `yaml:"file" json:"file"`
		FileMatchAll bool   `yaml:"fileMatchAll" json:"fileMatchAll"`
	} `yaml:"search" json:"search"`

	Brave struct {
		Key      string `yaml:"key" json:"key"`
		Endpoint string `yaml:"endpoint" json:"endpoint"`
	} `yaml:"brave" json:"brave"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"searx" json:"searx"`

	LLM struct {
		BaseURL       string  `yaml:"base" json:"base"`
		Model         string  `yaml:"model" json:"model"`
		APIKey        string  `yaml:"key" json:"key"`
		Temperature   float64 `yaml:"temperature" json:"temperature"`
		TopP          float64 `yaml:"topP" json:"topP"`
		ContextWindow int     `yaml:"contextWindow" json:"contextWindow"`
		Tokenizer     string  `yaml:"tokenizer" json:"tokenizer"`
	} `yaml:"llm" json:"llm"`

	Fetch struct {
		MaxConcurrent int    `yaml:"maxConcurrent" json:"maxConcurrent"`
		Timeout       string `yaml:"timeout" json:"timeout"`
		UserAgent     string `yaml:"userAgent" json:"userAgent"`
	} `yaml:"fetch" json:"fetch"`

	Summary struct {
		MaxTokens int `yaml:"maxTokens" json:"maxTokens"`
		ChunkSize int `yaml:"chunkSize" json:"chunkSize"`
	} `yaml:"summary" json:"summary"`

	Answer struct {
		MaxTokens int `yaml:"maxTokens" json:"maxTokens"`
	} `yaml:"answer" json:"answer"`

	Server struct {
		RequestTimeout string  `yaml:"requestTimeout" json:"requestTimeout"`
		RateLimit      float64 `yaml:"rateLimit" json:"rateLimit"`
		RateBurst      int     `yaml:"rateBurst" json:"rateBurst"`
	} `yaml:"server" json:"server"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		Exporter string `yaml:"exporter" json:"exporter"`
	} `yaml:"tracing" json:"tracing"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg. A malformed duration is an error.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	setStr := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(dst *int, v int) {
		if *dst == 0 && v != 0 {
			*dst = v
		}
	}
	setFloat := func(dst *float64, v float64) {
		if *dst == 0 && v != 0 {
			*dst = v
		}
	}

	setStr(&cfg.ListenAddr, fc.Listen)

	setStr(&cfg.SearchProvider, fc.Search.Provider)
	setInt(&cfg.BraveResultCount, fc.Search.ResultCount)
	setStr(&cfg.BraveSafeSearch, fc.Search.SafeSearch)
	setStr(&cfg.FileSearchPath, fc.Search.File)
	setStr(&cfg.BraveAPIKey, fc.Brave.Key)
	setStr(&cfg.BraveEndpoint, fc.Brave.Endpoint)
	setStr(&cfg.SearxURL, fc.Searx.URL)
	setStr(&cfg.SearxKey, fc.Searx.Key)

	setStr(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	setStr(&cfg.LLMModel, fc.LLM.Model)
	setStr(&cfg.LLMAPIKey, fc.LLM.APIKey)
	setFloat(&cfg.LLMTemperature, fc.LLM.Temperature)
	setFloat(&cfg.LLMTopP, fc.LLM.TopP)
	setInt(&cfg.LLMContextWindow, fc.LLM.ContextWindow)
	setStr(&cfg.Tokenizer, fc.LLM.Tokenizer)

	setInt(&cfg.MaxConcurrentFetches, fc.Fetch.MaxConcurrent)
	setStr(&cfg.UserAgent, fc.Fetch.UserAgent)
	if cfg.FetchTimeout == 0 && fc.Fetch.Timeout != "" {
		d, err := parseSeconds(strings.TrimSpace(fc.Fetch.Timeout))
		if err != nil {
			return fmt.Errorf("config: fetch.timeout: %w", err)
		}
		cfg.FetchTimeout = d
	}

	setInt(&cfg.SummaryMaxTokens, fc.Summary.MaxTokens)
	setInt(&cfg.SummaryChunkSize, fc.Summary.ChunkSize)
	setInt(&cfg.FinalAnswerMaxTokens, fc.Answer.MaxTokens)

	if cfg.RequestTimeout == 0 && fc.Server.RequestTimeout != "" {
		d, err := parseSeconds(strings.TrimSpace(fc.Server.RequestTimeout))
		if err != nil {
			return fmt.Errorf("config: server.requestTimeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	setFloat(&cfg.RateLimit, fc.Server.RateLimit)
	setInt(&cfg.RateBurst, fc.Server.RateBurst)

	if !cfg.FileSearchMatchAll && fc.Search.FileMatchAll {
		cfg.FileSearchMatchAll = true
	}
	if !cfg.TracingEnabled && fc.Tracing.Enabled {
		cfg.TracingEnabled = true
	}
	setStr(&cfg.TracingExporter, fc.Tracing.Exporter)
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	return nil
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if trim(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required (or set SCARPER_LLM_MODEL)")
	}
	switch backend := cfg.SearchBackend(); backend {
	case "":
		return errors.New("config: no search backend configured (set a Brave API key, a SearxNG URL or a results file)")
	case "brave":
		if trim(cfg.BraveAPIKey) == "" {
			return errors.New("config: brave.key is required for the brave provider")
		}
	case "searxng":
		if trim(cfg.SearxURL) == "" {
			return errors.New("config: searx.url is required for the searxng provider")
		}
	case "file":
		if trim(cfg.FileSearchPath) == "" {
			return errors.New("config: search.file is required for the file provider")
		}
	default:
		return fmt.Errorf("config: unknown search provider %q", backend)
	}
	switch cfg.BraveSafeSearch {
	case "", "off", "moderate", "strict":
	default:
		return fmt.Errorf("config: safe search must be off, moderate or strict, got %q", cfg.BraveSafeSearch)
	}
	if cfg.BraveResultCount < 0 || cfg.MaxConcurrentFetches < 0 || cfg.SummaryMaxTokens < 0 ||
		cfg.SummaryChunkSize < 0 || cfg.FinalAnswerMaxTokens < 0 || cfg.LLMContextWindow < 0 ||
		cfg.FetchTimeout < 0 || cfg.RequestTimeout < 0 || cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.BraveResultCount > search.BraveMaxCount {
		return fmt.Errorf("config: search result count must be at most %d", search.BraveMaxCount)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return errors.New("config: llm.temperature must be within [0, 2]")
	}
	if cfg.LLMTopP < 0 || cfg.LLMTopP > 1 {
		return errors.New("config: llm.topP must be within [0, 1]")
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }
