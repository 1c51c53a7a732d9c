// Command debugsearch runs one search and the fetch and extraction stages
// for it, printing what each candidate yields. No model is called.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/aggregate"
	"github.com/hyperifyio/scarper/internal/extract"
	"github.com/hyperifyio/scarper/internal/fetch"
	"github.com/hyperifyio/scarper/internal/search"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		braveKey  string
		searxURL  string
		limit     int
		noFetch   bool
		preview   int
		userAgent string
	)
	flag.StringVar(&braveKey, "brave.key", os.Getenv("SCARPER_BRAVE_API_KEY"), "Brave Search API key (preferred when set)")
	flag.StringVar(&searxURL, "searx.url", envOr("SEARX_URL", "http://localhost:8888"), "SearxNG base URL")
	flag.IntVar(&limit, "n", 5, "Number of results")
	flag.BoolVar(&noFetch, "no-fetch", false, "Only print search results")
	flag.IntVar(&preview, "preview", 300, "Characters of extracted text to print")
	flag.StringVar(&userAgent, "ua", "debugsearch/1.0", "User-Agent for search and page requests")
	flag.Parse()

	q := "What is love?"
	if flag.NArg() > 0 {
		q = strings.Join(flag.Args(), " ")
	}

	client := &http.Client{Timeout: 20 * time.Second}
	var prov search.Provider
	if braveKey != "" {
		b := search.NewBrave(braveKey, client)
		b.UserAgent = userAgent
		prov = b
	} else {
		prov = &search.SearxNG{BaseURL: searxURL, HTTPClient: client, UserAgent: userAgent}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	res, err := prov.Search(ctx, q, limit)
	if err != nil {
		log.Error().Err(err).Str("provider", prov.Name()).Msg("search failed")
		os.Exit(1)
	}
	res = aggregate.MergeAndNormalize(res)
	for i, r := range res {
		fmt.Printf("%d. %s - %s\n", i+1, r.Title, r.URL)
	}
	if noFetch {
		return
	}

	f := &fetch.Fetcher{
		Client:    &fetch.Client{UserAgent: userAgent, PerRequestTimeout: 12 * time.Second},
		Extractor: extract.NewChain(),
	}
	docs := f.FetchAll(ctx, aggregate.Candidates(res))
	fmt.Printf("\nextracted %d of %d pages\n", len(docs), len(res))
	for _, d := range docs {
		text := d.Text
		if len(text) > preview {
			text = text[:preview] + "..."
		}
		fmt.Printf("\n== %s\n   %s\n   %d words\n%s\n", d.Title, d.URL, len(strings.Fields(d.Text)), text)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
