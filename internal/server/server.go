// Package server exposes the answer pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/pipeline"
	"github.com/hyperifyio/scarper/internal/search"
)

const (
	// MinTopK and MaxTopK bound the top_k request field.
	MinTopK = 1
	MaxTopK = 12

	maxBodyBytes    = 16 << 20
	shutdownTimeout = 5 * time.Second
)

// Answerer runs one query. Implemented by *pipeline.Pipeline.
type Answerer interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Options configure the HTTP surface.
type Options struct {
	// ResultCount caps top_k at the number of results the search backend
	// is configured to return. Zero leaves top_k uncapped.
	ResultCount int
	// RequestTimeout bounds each /query call. Zero disables the deadline.
	RequestTimeout time.Duration
	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int
	Version   string
	// Logger receives access logs. Nil uses the global logger.
	Logger *zerolog.Logger
}

// Server serves POST /query and GET /health.
type Server struct {
	answerer Answerer
	opts     Options

	httpSrv *http.Server

	mu        sync.Mutex
	boundAddr string
}

// New returns a server answering with a.
func New(a Answerer, opts Options) *Server {
	return &Server{answerer: a, opts: opts}
}

// Handler returns the routed handler with logging and rate limiting. ctx
// bounds the lifetime of the rate limiter's background sweeper.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	var query http.Handler = http.HandlerFunc(s.handleQuery)
	if s.opts.RateLimit > 0 {
		query = newRateLimiter(ctx, s.opts.RateLimit, s.opts.RateBurst).middleware(query)
	}
	mux.Handle("POST /query", query)
	mux.HandleFunc("GET /health", s.handleHealth)

	logger := log.Logger
	if s.opts.Logger != nil {
		logger = *s.opts.Logger
	}
	return accessLog(logger, mux)
}

// Start listens on addr and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()
	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("server started")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}
	return nil
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

type queryRequest struct {
	Query       string `json:"query"`
	TopK        *int   `json:"top_k"`
	ImageBase64 string `json:"image_base64"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.opts.Version})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	req, msg := s.toPipelineRequest(body)
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	resp, err := s.answerer.Run(ctx, req)
	if err != nil {
		status := statusFor(err)
		logger := hlog.FromRequest(r)
		ev := logger.Warn()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Err(err).Int("status", status).Str("query", req.Query).Msg("query failed")
		writeError(w, status, err.Error())
		return
	}
	if resp.Sources == nil {
		resp.Sources = []pipeline.Source{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// toPipelineRequest validates body. A non-empty message reports why the
// request is unprocessable.
func (s *Server) toPipelineRequest(body queryRequest) (pipeline.Request, string) {
	q := strings.TrimSpace(body.Query)
	if q == "" {
		return pipeline.Request{}, "query must not be empty"
	}
	topK := pipeline.DefaultTopK
	if body.TopK != nil {
		topK = *body.TopK
	}
	if topK < MinTopK || topK > MaxTopK {
		return pipeline.Request{}, fmt.Sprintf("top_k must be between %d and %d", MinTopK, MaxTopK)
	}
	if s.opts.ResultCount > 0 && topK > s.opts.ResultCount {
		topK = s.opts.ResultCount
	}
	return pipeline.Request{Query: q, TopK: topK, ImageBase64: body.ImageBase64}, ""
}

// statusFor maps pipeline failures to HTTP status codes.
func statusFor(err error) int {
	var pe *search.ProviderError
	switch {
	case errors.Is(err, pipeline.ErrEmptyResults):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidImagePayload):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
