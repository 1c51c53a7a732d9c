package fetch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/scarper/internal/extract"
)

// DefaultMaxConcurrent is the fetch ceiling used when none is configured.
const DefaultMaxConcurrent = 4

// Candidate is a page to retrieve. FallbackTitle usually comes from the
// search result and is used when the page itself has no title.
type Candidate struct {
	URL           string
	FallbackTitle string
}

// Outcome is the result of fetching one candidate. HTML is nil on failure.
type Outcome struct {
	URL  string
	HTML []byte
}

// Getter is the subset of Client used by Fetcher.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Fetcher retrieves candidates concurrently under a process-wide ceiling and
// extracts each page while its permit is still held. A Fetcher is safe for
// concurrent use; all calls share the same permit pool.
type Fetcher struct {
	Client    Getter
	Extractor extract.Extractor
	// MaxConcurrent bounds in-flight fetch+extract work. Zero means
	// DefaultMaxConcurrent.
	MaxConcurrent int

	semOnce sync.Once
	sem     *semaphore.Weighted
}

func (f *Fetcher) permits() *semaphore.Weighted {
	f.semOnce.Do(func() {
		n := f.MaxConcurrent
		if n <= 0 {
			n = DefaultMaxConcurrent
		}
		f.sem = semaphore.NewWeighted(int64(n))
	})
	return f.sem
}

// Fetch retrieves one candidate. Failures are logged and reported as an
// Outcome without HTML; no error escapes.
func (f *Fetcher) Fetch(ctx context.Context, c Candidate) Outcome {
	body, _, err := f.Client.Get(ctx, c.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", c.URL).Msg("unable to fetch")
		return Outcome{URL: c.URL}
	}
	return Outcome{URL: c.URL, HTML: body}
}

// FetchAll fetches and extracts every candidate and returns one document per
// successful fetch, in completion order. Failed fetches are omitted.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []Candidate) []extract.Document {
	if len(candidates) == 0 {
		return nil
	}
	sem := f.permits()
	results := make(chan *extract.Document, len(candidates))
	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c Candidate) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Warn().Err(err).Str("url", c.URL).Msg("unable to fetch")
				results <- nil
				return
			}
			defer sem.Release(1)
			out := f.Fetch(ctx, c)
			if out.HTML == nil {
				results <- nil
				return
			}
			doc := f.Extractor.Extract(out.HTML, out.URL, c.FallbackTitle)
			results <- &doc
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	docs := make([]extract.Document, 0, len(candidates))
	for d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	log.Debug().Int("candidates", len(candidates)).Int("fetched", len(docs)).Msg("fetch complete")
	return docs
}
