package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/scarper/internal/extract"
)

func TestGet_Success(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "scarper-test", MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
	body, ct, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct == "" || string(body) == "" {
		t.Fatalf("expected content type and body")
	}
	if gotUA != "scarper-test" {
		t.Fatalf("user agent not sent: %q", gotUA)
	}
	if gotAccept != DefaultAccept {
		t.Fatalf("accept header not sent: %q", gotAccept)
	}
}

func TestGet_DecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1
		_, _ = w.Write([]byte{'<', 'p', '>', 'c', 'a', 'f', 0xe9, '<', '/', 'p', '>'})
	}))
	defer srv.Close()

	c := &Client{PerRequestTimeout: 2 * time.Second}
	body, _, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<p>café</p>" {
		t.Fatalf("expected utf-8 body, got %q", body)
	}
}

func TestGet_RetryOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(502)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "scarper-test", MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
	if _, _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
}

func TestGet_DefaultIsSingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(503)
	}))
	defer srv.Close()

	c := &Client{PerRequestTimeout: 2 * time.Second}
	_, _, err := c.Get(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 503 {
		t.Fatalf("expected status error 503, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one attempt, got %d", n)
	}
}

func TestGet_ClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 3, PerRequestTimeout: 2 * time.Second}
	_, _, err := c.Get(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := &Client{PerRequestTimeout: 50 * time.Millisecond}
	start := time.Now()
	if _, _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestGet_RejectsNonHTTP(t *testing.T) {
	c := &Client{UserAgent: "scarper-test", MaxAttempts: 1, PerRequestTimeout: 1 * time.Second}
	_, _, err := c.Get(context.Background(), "file:///etc/hosts")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}
}

func TestGet_ContentTypeGating(t *testing.T) {
	cases := []struct {
		contentType string
		wantErr     bool
	}{
		{"text/html; charset=utf-8", false},
		{"application/xhtml+xml", false},
		{"application/xml", false},
		{"text/plain; charset=utf-8", false},
		{"", false},
		{"application/pdf", true},
		{"image/png", true},
		{"application/octet-stream", true},
	}
	for _, tc := range cases {
		ct := tc.contentType
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct == "" {
				w.Header()["Content-Type"] = nil
			} else {
				w.Header().Set("Content-Type", ct)
			}
			w.WriteHeader(200)
			_, _ = w.Write([]byte("<p>readable</p>"))
		}))
		c := &Client{UserAgent: "scarper-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
		_, _, err := c.Get(context.Background(), srv.URL)
		srv.Close()
		if tc.wantErr && !errors.Is(err, ErrUnsupportedContentType) {
			t.Fatalf("%q: expected unsupported content type error, got %v", ct, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%q: unexpected error: %v", ct, err)
		}
	}
}

func TestFetchAll_ExtractsNonHTMLTextResponses(t *testing.T) {
	for _, ct := range []string{"text/plain; charset=utf-8", "application/xml"} {
		ct := ct
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", ct)
			_, _ = w.Write([]byte("<p>Readable paragraph about gophers.</p>"))
		}))
		f := &Fetcher{Client: &Client{PerRequestTimeout: 2 * time.Second}, Extractor: extract.NewChain()}
		docs := f.FetchAll(context.Background(), []Candidate{{URL: srv.URL, FallbackTitle: "T"}})
		srv.Close()
		if len(docs) != 1 || !strings.Contains(docs[0].Text, "gophers") {
			t.Fatalf("%q: expected one extracted document, got %+v", ct, docs)
		}
	}
}

func TestGet_RedirectLimit(t *testing.T) {
	// First path redirects once to /next; with RedirectMaxHops=1 this should fail immediately
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "scarper-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, RedirectMaxHops: 1}
	if _, _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected redirect limit error")
	}

	c.RedirectMaxHops = 0
	body, _, err := c.Get(context.Background(), srv.URL)
	if err != nil || string(body) != "ok" {
		t.Fatalf("expected redirect to be followed, got %q, %v", body, err)
	}
}

// countingExtractor records how many extractions overlap.
type countingExtractor struct {
	inFlight    int32
	maxObserved int32
}

func (e *countingExtractor) Extract(input []byte, pageURL, fallbackTitle string) extract.Document {
	observeMax(&e.inFlight, &e.maxObserved)
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&e.inFlight, -1)
	return extract.Document{URL: pageURL, Title: fallbackTitle, Text: string(input)}
}

func observeMax(inFlight, maxObserved *int32) {
	curr := atomic.AddInt32(inFlight, 1)
	for {
		prev := atomic.LoadInt32(maxObserved)
		if curr <= prev || atomic.CompareAndSwapInt32(maxObserved, prev, curr) {
			return
		}
	}
}

func TestFetchAll_RespectsCeiling(t *testing.T) {
	var inFlight, maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observeMax(&inFlight, &maxObserved)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	ext := &countingExtractor{}
	f := &Fetcher{
		Client:        &Client{PerRequestTimeout: 2 * time.Second},
		Extractor:     ext,
		MaxConcurrent: 2,
	}
	var cands []Candidate
	for i := 0; i < 7; i++ {
		cands = append(cands, Candidate{URL: srv.URL + "/p" + string(rune('a'+i))})
	}
	docs := f.FetchAll(context.Background(), cands)
	if len(docs) != len(cands) {
		t.Fatalf("expected %d documents, got %d", len(cands), len(docs))
	}
	if got := atomic.LoadInt32(&maxObserved); got > 2 {
		t.Fatalf("expected at most 2 fetches in flight, got %d", got)
	}
	if got := atomic.LoadInt32(&ext.maxObserved); got > 2 {
		t.Fatalf("expected at most 2 extractions in flight, got %d", got)
	}
}

func TestFetchAll_CeilingSharedAcrossCalls(t *testing.T) {
	var inFlight, maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observeMax(&inFlight, &maxObserved)
		time.Sleep(80 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	f := &Fetcher{
		Client:        &Client{PerRequestTimeout: 2 * time.Second},
		Extractor:     &countingExtractor{},
		MaxConcurrent: 3,
	}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.FetchAll(context.Background(), []Candidate{{URL: srv.URL + "/1"}, {URL: srv.URL + "/2"}, {URL: srv.URL + "/3"}})
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&maxObserved); got > 3 {
		t.Fatalf("expected at most 3 fetches in flight, got %d", got)
	}
}

func TestFetchAll_DropsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><div>Hello there.</div></body></html>"))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			w.WriteHeader(500)
		}
	}))
	defer srv.Close()

	f := &Fetcher{
		Client:    &Client{PerRequestTimeout: 2 * time.Second},
		Extractor: extract.NewChain(),
	}
	docs := f.FetchAll(context.Background(), []Candidate{
		{URL: srv.URL + "/ok", FallbackTitle: "OK page"},
		{URL: srv.URL + "/pdf", FallbackTitle: "PDF"},
		{URL: srv.URL + "/boom", FallbackTitle: "Broken"},
		{URL: "ftp://example.com/file", FallbackTitle: "FTP"},
	})
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].URL != srv.URL+"/ok" || docs[0].Text != "Hello there." || docs[0].Title != "OK page" {
		t.Fatalf("unexpected document: %+v", docs[0])
	}
}

func TestFetchAll_Empty(t *testing.T) {
	f := &Fetcher{Client: &Client{}, Extractor: extract.NewChain()}
	if docs := f.FetchAll(context.Background(), nil); len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestFetchAll_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fetcher{Client: &Client{}, Extractor: extract.NewChain(), MaxConcurrent: 1}
	docs := f.FetchAll(ctx, []Candidate{{URL: "http://127.0.0.1:1/a"}, {URL: "http://127.0.0.1:1/b"}})
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}
