package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/scarper/internal/pipeline"
	"github.com/hyperifyio/scarper/internal/search"
)

type fakeAnswerer struct {
	mu   sync.Mutex
	seen []pipeline.Request
	resp pipeline.Response
	err  error
}

func (f *fakeAnswerer) Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	return f.resp, f.err
}

func newTestHandler(t *testing.T, a Answerer, opts Options) http.Handler {
	t.Helper()
	nop := zerolog.Nop()
	opts.Logger = &nop
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(a, opts).Handler(ctx)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &fakeAnswerer{}, Options{Version: "1.2.3"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "1.2.3", got["version"])
	assert.NotEmpty(t, rec.Header().Get("Request-Id"))
}

func TestQuery_Success(t *testing.T) {
	a := &fakeAnswerer{resp: pipeline.Response{
		Answer: "Go is a language [1].",
		Sources: []pipeline.Source{
			{Index: 1, URL: "https://go.dev", Title: "Go", Snippet: "The Go site", Summary: "Go summary"},
		},
	}}
	h := newTestHandler(t, a, Options{ResultCount: 6})

	rec := post(t, h, `{"query":"  what is go  ","top_k":3,"image_base64":"QUJD"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Answer  string           `json:"answer"`
		Sources []map[string]any `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Go is a language [1].", got.Answer)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "https://go.dev", got.Sources[0]["url"])
	assert.Equal(t, "Go summary", got.Sources[0]["summary"])
	assert.NotContains(t, got.Sources[0], "Index")

	require.Len(t, a.seen, 1)
	assert.Equal(t, pipeline.Request{Query: "what is go", TopK: 3, ImageBase64: "QUJD"}, a.seen[0])
}

func TestQuery_TopKDefaultAndClamp(t *testing.T) {
	a := &fakeAnswerer{}
	h := newTestHandler(t, a, Options{ResultCount: 6})

	require.Equal(t, http.StatusOK, post(t, h, `{"query":"q"}`).Code)
	require.Equal(t, http.StatusOK, post(t, h, `{"query":"q","top_k":12}`).Code)

	require.Len(t, a.seen, 2)
	assert.Equal(t, pipeline.DefaultTopK, a.seen[0].TopK)
	assert.Equal(t, 6, a.seen[1].TopK, "top_k is capped at the configured result count")
}

func TestQuery_EmptySourcesEncodeAsArray(t *testing.T) {
	h := newTestHandler(t, &fakeAnswerer{resp: pipeline.Response{Answer: "a"}}, Options{})
	rec := post(t, h, `{"query":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sources":[]`)
}

func TestQuery_Validation(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"query":`, http.StatusBadRequest},
		{"empty query", `{"query":"   "}`, http.StatusUnprocessableEntity},
		{"top_k zero", `{"query":"q","top_k":0}`, http.StatusUnprocessableEntity},
		{"top_k too large", `{"query":"q","top_k":13}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &fakeAnswerer{}
			rec := post(t, newTestHandler(t, a, Options{}), tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
			assert.Empty(t, a.seen, "invalid requests never reach the pipeline")
		})
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty results", pipeline.ErrEmptyResults, http.StatusNotFound},
		{"invalid image", fmt.Errorf("%w: bad padding", pipeline.ErrInvalidImagePayload), http.StatusBadRequest},
		{"provider", &search.ProviderError{Provider: "brave", Err: errors.New("status 500")}, http.StatusBadGateway},
		{"generation", fmt.Errorf("%w: boom", pipeline.ErrGeneration), http.StatusInternalServerError},
		{"generation deadline", fmt.Errorf("%w: %w", pipeline.ErrGeneration, context.DeadlineExceeded), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, newTestHandler(t, &fakeAnswerer{err: tc.err}, Options{}), `{"query":"q"}`)
			assert.Equal(t, tc.status, rec.Code)
			var got errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tc.err.Error(), got.Detail)
		})
	}
}

func TestQuery_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &fakeAnswerer{}, Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQuery_RateLimit(t *testing.T) {
	a := &fakeAnswerer{}
	h := newTestHandler(t, a, Options{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, post(t, h, `{"query":"q"}`).Code)
	assert.Equal(t, http.StatusOK, post(t, h, `{"query":"q"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, `{"query":"q"}`).Code)
	assert.Len(t, a.seen, 2)

	// Health is never limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newRateLimiter(ctx, 1, 1)
	now := time.Now()
	require.True(t, rl.allow("10.0.0.1", now))
	require.False(t, rl.allow("10.0.0.1", now))

	rl.sweep(now.Add(idleTTL + time.Second))
	rl.mu.Lock()
	assert.Empty(t, rl.clients)
	rl.mu.Unlock()
}

type deadlineAnswerer struct{ hasDeadline bool }

func (d *deadlineAnswerer) Run(ctx context.Context, _ pipeline.Request) (pipeline.Response, error) {
	_, d.hasDeadline = ctx.Deadline()
	return pipeline.Response{Answer: "ok"}, nil
}

func TestQuery_RequestTimeoutSetsDeadline(t *testing.T) {
	a := &deadlineAnswerer{}
	h := newTestHandler(t, a, Options{RequestTimeout: time.Minute})
	require.Equal(t, http.StatusOK, post(t, h, `{"query":"q"}`).Code)
	assert.True(t, a.hasDeadline)
}

func TestStart_ServesUntilCanceled(t *testing.T) {
	s := New(&fakeAnswerer{resp: pipeline.Response{Answer: "a"}}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool { return s.BoundAddr() != "" }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + s.BoundAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
