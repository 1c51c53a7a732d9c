package budget

import (
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
)

// Encodings load from the vocabularies embedded in tiktoken-go-loader, never
// from the network. Unknown encodings fail and fall back to the heuristic.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultContextTokens is the context window assumed for unknown models.
const DefaultContextTokens = 8192

// tokensPerMessage approximates chat framing overhead per message and for
// the primed assistant reply.
const tokensPerMessage = 3

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	// Keep conservative to avoid overruns. Use ceiling for safety.
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// Estimator counts tokens with a tiktoken encoding. The encoding is loaded
// lazily on first use; when it cannot be loaded the character heuristic is
// used instead. A nil *Estimator always uses the heuristic.
type Estimator struct {
	// Encoding names the tiktoken encoding, e.g. cl100k_base.
	Encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an Estimator for the named encoding.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Estimator{Encoding: encoding}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.Encoding)
		if err != nil {
			log.Warn().Err(err).Str("encoding", e.Encoding).Msg("tokenizer unavailable; using character heuristic")
			return
		}
		e.enc = enc
	})
	return e.enc
}

// Count returns the number of tokens in s.
func (e *Estimator) Count(s string) int {
	if e == nil {
		return EstimateTokens(s)
	}
	enc := e.encoding()
	if enc == nil {
		return EstimateTokens(s)
	}
	return len(enc.Encode(s, nil, nil))
}

// PromptTokens estimates a chat prompt made of the given message texts,
// including per-message framing.
func (e *Estimator) PromptTokens(messages ...string) int {
	total := tokensPerMessage
	for _, m := range messages {
		total += tokensPerMessage + e.Count(m)
	}
	return total
}

// ModelContextTokens returns an estimated maximum context window for a given
// model name. Unknown models fall back to DefaultContextTokens.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return DefaultContextTokens
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range []struct {
		suffix string
		tokens int
	}{{"1m", 1_000_000}, {"512k", 512_000}, {"200k", 200_000}, {"128k", 128_000}, {"32k", 32_768}} {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	return DefaultContextTokens
}

// RemainingContext computes the remaining input token budget for a context
// window after reserving tokens for the answer. The result is never negative.
func RemainingContext(contextTokens int, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := contextTokens - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FitsInContext reports whether the prompt plus the reserved answer fits in
// the context window.
func FitsInContext(contextTokens int, reservedForOutput int, promptTokens int) bool {
	return RemainingContext(contextTokens, reservedForOutput, promptTokens) > 0
}

// HeadroomTokens returns a safety margin for tokenizer and framing drift:
// the larger of 5% of the context window or 256 tokens.
func HeadroomTokens(contextTokens int) int {
	dyn := int(math.Ceil(float64(contextTokens) * 0.05))
	if dyn < 256 {
		return 256
	}
	return dyn
}

// knownModelMax contains rough context sizes for common model identifiers.
var knownModelMax = map[string]int{
	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"gpt-3.5-turbo": 16_384,
	"llama-3":       8_192,
	"llama-3.1":     128_000,
	"llama-3.2":     128_000,
	"qwen2.5":       32_768,
	"gemma-3":       128_000,
	"gpt-oss-20b":   4_096,
}
