package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// DefaultMinBoilerplateChars is the shortest text the boilerplate tier
// accepts when the page has no main/article container to anchor on.
const DefaultMinBoilerplateChars = 250

// removedSelectors are stripped by the boilerplate tier before text is
// collected. Tables are dropped on purpose: they rarely summarize well.
const removedSelectors = "script, style, noscript, template, iframe, svg, canvas, form, button, nav, footer, aside, table, dialog"

// Boilerplate discards navigation, ads, comments, banners and tables,
// then reads text from the page's semantic content container. Page metadata
// supplies the title.
type Boilerplate struct {
	// MinChars applies only when no main/article container was found.
	MinChars int
}

func (Boilerplate) Name() string { return "boilerplate" }

func (b Boilerplate) Extract(input []byte, _ string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return Result{}, err
	}
	title := metadataTitle(input, doc)

	doc.Find(removedSelectors).Remove()
	doc.Find("header").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest("article, main").Length() == 0
	}).Remove()
	doc.Find("body *").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return len(s.Nodes) > 0 && isBoilerplateContainer(s.Nodes[0])
	}).Remove()

	root, semantic := contentRoot(doc)
	if root.Length() == 0 {
		return Result{}, nil
	}
	var sb strings.Builder
	for _, n := range root.Nodes {
		collectText(&sb, n, false)
	}
	text := normalizeWhitespace(sb.String())
	if !semantic && utf8.RuneCountInString(text) < b.MinChars {
		return Result{}, nil
	}
	return Result{Text: text, Title: title}, nil
}

// contentRoot picks the first semantic content container, falling back to
// the body. The boolean reports whether a semantic container was found.
func contentRoot(doc *goquery.Document) (*goquery.Selection, bool) {
	for _, sel := range []string{"main", "article", "[role=main]"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s, true
		}
	}
	return doc.Find("body").First(), false
}

// metadataTitle resolves the page title from OpenGraph, Twitter card and
// meta tags, then the title element, then the first h1.
func metadataTitle(input []byte, doc *goquery.Document) string {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(input)); err == nil {
		if t := strings.TrimSpace(og.Title); t != "" {
			return collapseSpaces(t)
		}
	}
	for _, sel := range []string{`meta[name="twitter:title"]`, `meta[property="twitter:title"]`, `meta[name="title"]`, `meta[name="dc.title"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return collapseSpaces(strings.TrimSpace(v))
		}
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return collapseSpaces(t)
	}
	return collapseSpaces(strings.TrimSpace(doc.Find("h1").First().Text()))
}
