package extract

import (
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// Document is the readable content extracted from one fetched page. An empty
// Text means no tier produced usable content; that is a normal outcome.
type Document struct {
	URL   string
	Title string
	Text  string
}

// HasText reports whether extraction produced usable content.
func (d Document) HasText() bool { return strings.TrimSpace(d.Text) != "" }

// Extractor converts raw HTML bytes into a Document for the given page.
// Implementations should be deterministic and avoid side effects.
type Extractor interface {
	Extract(input []byte, pageURL string, fallbackTitle string) Document
}

// Result is the output of a single tier. An empty Text means "no result".
type Result struct {
	Text  string
	Title string
}

// Tier is one strategy in the fallback chain.
type Tier interface {
	Name() string
	Extract(input []byte, pageURL string) (Result, error)
}

// Chain tries its tiers in order and stops at the first one that yields
// non-empty text. The winning tier's title is used, else the caller's
// fallback title.
type Chain struct {
	Tiers []Tier
}

// NewChain returns the default three-tier chain: boilerplate removal,
// readability scoring, then raw markup.
func NewChain() *Chain {
	return &Chain{Tiers: []Tier{
		Boilerplate{MinChars: DefaultMinBoilerplateChars},
		Readability{},
		Raw{},
	}}
}

func (c *Chain) Extract(input []byte, pageURL string, fallbackTitle string) Document {
	doc := Document{URL: pageURL, Title: strings.TrimSpace(fallbackTitle)}
	for _, tier := range c.Tiers {
		res, ok := runTier(tier, input, pageURL)
		if !ok {
			log.Debug().Str("tier", tier.Name()).Str("url", pageURL).Msg("tier produced no text")
			continue
		}
		doc.Text = norm.NFC.String(res.Text)
		if res.Title != "" {
			doc.Title = norm.NFC.String(res.Title)
		}
		log.Debug().Str("tier", tier.Name()).Str("url", pageURL).Int("chars", len(doc.Text)).Msg("extracted")
		return doc
	}
	log.Debug().Str("url", pageURL).Msg("unable to extract meaningful text")
	return doc
}

// runTier isolates a tier so that an error or panic inside a parser is
// treated as the tier producing nothing.
func runTier(t Tier, input []byte, pageURL string) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("tier", t.Name()).Str("url", pageURL).Interface("panic", r).Msg("extraction tier panicked")
			res, ok = Result{}, false
		}
	}()
	out, err := t.Extract(input, pageURL)
	if err != nil {
		log.Debug().Err(err).Str("tier", t.Name()).Str("url", pageURL).Msg("extraction tier failed")
		return Result{}, false
	}
	out.Text = strings.TrimSpace(out.Text)
	out.Title = strings.TrimSpace(out.Title)
	if out.Text == "" {
		return Result{}, false
	}
	return out, true
}
