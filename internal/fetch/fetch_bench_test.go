package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperifyio/scarper/internal/extract"
)

// BenchmarkFetcher_FetchAll measures fetch+extract throughput at different
// ceilings against a server with fixed latency.
func BenchmarkFetcher_FetchAll(b *testing.B) {
	page := []byte("<html><head><title>Bench</title></head><body><article><p>Benchmark body text for extraction.</p></article></body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	cands := make([]Candidate, 8)
	for i := range cands {
		cands[i] = Candidate{URL: fmt.Sprintf("%s/page/%d", srv.URL, i), FallbackTitle: "bench"}
	}
	for _, n := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("concurrency=%d", n), func(b *testing.B) {
			f := &Fetcher{
				Client:        &Client{PerRequestTimeout: 5 * time.Second, HTTPClient: srv.Client()},
				Extractor:     extract.NewChain(),
				MaxConcurrent: n,
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if docs := f.FetchAll(context.Background(), cands); len(docs) != len(cands) {
					b.Fatalf("expected %d docs, got %d", len(cands), len(docs))
				}
			}
		})
	}
}
