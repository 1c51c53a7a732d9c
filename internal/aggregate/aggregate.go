package aggregate

import (
	"net/url"
	"strings"

	"github.com/hyperifyio/scarper/internal/fetch"
	"github.com/hyperifyio/scarper/internal/search"
)

// trackingParams are dropped from result URLs before de-duplication.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"}

// MergeAndNormalize merges result groups in order and de-duplicates them by
// a canonical form of the URL: lower-cased host, no fragment, no tracking
// parameters. The canonical form is only a key; each kept result carries its
// URL as the provider returned it. Results with unparseable or non-HTTP(S)
// URLs are dropped. The first occurrence wins, so relative order is
// preserved.
func MergeAndNormalize(groups ...[]search.Result) []search.Result {
	seen := map[string]struct{}{}
	out := make([]search.Result, 0, 16)
	for _, g := range groups {
		for _, r := range g {
			if r.URL == "" {
				continue
			}
			u, err := url.Parse(strings.TrimSpace(r.URL))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				continue
			}
			key := canonicalKey(u)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Candidates converts search results into fetch candidates, keeping order.
// The result title becomes the candidate's fallback title.
func Candidates(results []search.Result) []fetch.Candidate {
	out := make([]fetch.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, fetch.Candidate{URL: r.URL, FallbackTitle: r.Title})
	}
	return out
}

// canonicalKey returns the de-duplication key of u. u is not modified.
func canonicalKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Host = strings.ToLower(c.Host)
	c.Scheme = strings.ToLower(c.Scheme)
	if c.RawQuery != "" {
		q := c.Query()
		for _, p := range trackingParams {
			q.Del(p)
		}
		c.RawQuery = q.Encode()
	}
	return c.String()
}
