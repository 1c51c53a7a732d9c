package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultBraveEndpoint is the Brave web search API.
	DefaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	// BraveMaxCount is the largest page size the API accepts.
	BraveMaxCount = 20
)

// Brave implements Provider against the Brave Search API. Failed requests
// are retried with exponential backoff; the final failure is returned as a
// *ProviderError.
type Brave struct {
	APIKey     string
	Endpoint   string // defaults to DefaultBraveEndpoint
	SafeSearch string // off, moderate or strict; defaults to moderate
	UserAgent  string
	HTTPClient *http.Client

	// MaxAttempts includes the initial attempt. Zero means 3.
	MaxAttempts int
	// MinBackoff and MaxBackoff bound the exponential wait between attempts.
	// Zero means 1s and 4s.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Limiter paces outgoing requests. Nil means unpaced.
	Limiter *rate.Limiter
}

// NewBrave returns a Brave provider paced to one request per second, the
// API's free-tier limit.
func NewBrave(apiKey string, httpClient *http.Client) *Brave {
	return &Brave{
		APIKey:     apiKey,
		HTTPClient: httpClient,
		Limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, &ProviderError{Provider: b.Name(), Err: errors.New("missing API key")}
	}
	endpoint, err := b.requestURL(query, limit)
	if err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: err}
	}

	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := b.backoff(i)
			var re *retryAfterError
			if errors.As(lastErr, &re) && re.after > wait {
				wait = re.after
			}
			log.Debug().Err(lastErr).Int("attempt", i+1).Dur("wait", wait).Msg("retrying brave search")
			select {
			case <-ctx.Done():
				return nil, &ProviderError{Provider: b.Name(), Err: ctx.Err()}
			case <-time.After(wait):
			}
		}
		results, err := b.do(ctx, endpoint)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	log.Error().Err(lastErr).Str("query", query).Msg("brave search failed after retries")
	return nil, &ProviderError{Provider: b.Name(), Err: lastErr}
}

func (b *Brave) requestURL(query string, limit int) (string, error) {
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = DefaultBraveEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > BraveMaxCount {
		limit = BraveMaxCount
	}
	safe := b.SafeSearch
	if safe == "" {
		safe = "moderate"
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(limit))
	q.Set("search_lang", "en")
	q.Set("safesearch", safe)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Brave) backoff(retry int) time.Duration {
	lo, hi := b.MinBackoff, b.MaxBackoff
	if lo <= 0 {
		lo = time.Second
	}
	if hi <= 0 {
		hi = 4 * time.Second
	}
	d := lo << (retry - 1)
	if d > hi || d <= 0 {
		d = hi
	}
	return d
}

type retryAfterError struct {
	status int
	after  time.Duration
}

func (e *retryAfterError) Error() string { return fmt.Sprintf("brave status: %d", e.status) }

func (b *Brave) do(ctx context.Context, endpoint string) ([]Result, error) {
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	hc := b.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 12 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryAfterError{status: resp.StatusCode, after: rateLimitReset(resp.Header)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("brave status: %d", resp.StatusCode)
	}
	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}
	out := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Description),
			Source:  b.Name(),
		})
	}
	return out, nil
}

// rateLimitReset reads the smallest reset window from X-RateLimit-Reset,
// e.g. "1, 1419704". Zero when absent.
func rateLimitReset(h http.Header) time.Duration {
	var least int
	for _, part := range strings.Split(h.Get("X-RateLimit-Reset"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		if least == 0 || n < least {
			least = n
		}
	}
	return time.Duration(least) * time.Second
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}
