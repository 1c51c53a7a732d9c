package extract

import (
	"bytes"
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	unlikelyCandidates = regexp.MustCompile(`(?i)-ad-|ai2html|banner|breadcrumbs|combx|comment|community|cover-wrap|disqus|extra|footer|gdpr|header|legends|menu|related|remark|replies|rss|shoutbox|sidebar|skyscraper|social|sponsor|supplemental|agegate|pagination|pager|popup`)
	maybeCandidate     = regexp.MustCompile(`(?i)and|article|body|column|content|main|shadow`)
	positiveWeight     = regexp.MustCompile(`(?i)article|body|content|entry|hentry|h-entry|main|page|pagination|post|text|blog|story`)
	negativeWeight     = regexp.MustCompile(`(?i)-ad-|hidden|^hid$| hid$| hid |^hid |banner|combx|comment|com-|contact|foot|footer|footnote|gdpr|masthead|media|meta|outbrain|promo|related|scroll|share|shoutbox|sidebar|skyscraper|sponsor|shopping|tags|tool|widget`)
	titleSeparators    = []string{" | ", " - ", " – ", " — ", " :: ", " » ", " / "}
)

// minParagraphChars is the shortest paragraph that contributes to scoring.
const minParagraphChars = 25

// Readability scores paragraph containers the way arc90-style readability
// does and keeps the best-scoring subtree plus its related siblings.
type Readability struct{}

func (Readability) Name() string { return "readability" }

func (Readability) Extract(input []byte, _ string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return Result{}, err
	}
	fullTitle := collapseSpaces(strings.TrimSpace(doc.Find("title").First().Text()))
	title := shortTitle(fullTitle)
	if title == "" {
		title = fullTitle
	}

	doc.Find("script, style, noscript, template, iframe, form, nav, footer, aside").Remove()
	doc.Find("body *").FilterFunction(func(_ int, s *goquery.Selection) bool {
		tag := goquery.NodeName(s)
		if tag == "body" || tag == "article" || tag == "main" {
			return false
		}
		marker := s.AttrOr("class", "") + " " + s.AttrOr("id", "")
		return unlikelyCandidates.MatchString(marker) && !maybeCandidate.MatchString(marker)
	}).Remove()

	fragment := topCandidateFragment(doc)
	if fragment == "" {
		return Result{}, nil
	}
	return Result{Text: fragmentText(fragment), Title: title}, nil
}

// topCandidateFragment returns the HTML of the best-scoring container and
// the siblings that score close to it, or "" when nothing qualifies.
func topCandidateFragment(doc *goquery.Document) string {
	scores := map[*html.Node]float64{}
	var order []*html.Node
	addScore := func(n *html.Node, s float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			scores[n] = initialScore(n)
			order = append(order, n)
		}
		scores[n] += s
	}

	doc.Find("p, pre, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) < minParagraphChars {
			return
		}
		score := 1 + float64(strings.Count(text, ",")) + math.Min(float64(len(text))/100, 3)
		parent := s.Parent()
		if parent.Length() == 0 {
			return
		}
		addScore(parent.Nodes[0], score)
		if grand := parent.Parent(); grand.Length() > 0 {
			addScore(grand.Nodes[0], score/2)
		}
	})
	if len(order) == 0 {
		return ""
	}

	var best *html.Node
	bestScore := math.Inf(-1)
	for _, n := range order {
		sel := goquery.NewDocumentFromNode(n).Selection
		scores[n] *= 1 - linkDensity(sel)
		if scores[n] > bestScore {
			best, bestScore = n, scores[n]
		}
	}
	if best == nil || bestScore <= 0 {
		return ""
	}

	if best.Parent == nil {
		h, err := goquery.OuterHtml(goquery.NewDocumentFromNode(best).Selection)
		if err != nil {
			return ""
		}
		return h
	}
	threshold := math.Max(10, bestScore*0.2)
	var b strings.Builder
	b.WriteString("<div>")
	for sib := best.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		keep := sib == best
		if !keep {
			if s, ok := scores[sib]; ok && s >= threshold {
				keep = true
			} else if strings.EqualFold(sib.Data, "p") {
				sel := goquery.NewDocumentFromNode(sib).Selection
				text := strings.TrimSpace(sel.Text())
				keep = len(text) > 80 && linkDensity(sel) < 0.25
			}
		}
		if !keep {
			continue
		}
		if h, err := goquery.OuterHtml(goquery.NewDocumentFromNode(sib).Selection); err == nil {
			b.WriteString(h)
		}
	}
	b.WriteString("</div>")
	return b.String()
}

func initialScore(n *html.Node) float64 {
	var score float64
	switch strings.ToLower(n.Data) {
	case "div", "article", "main", "section":
		score = 5
	case "pre", "td", "blockquote":
		score = 3
	case "address", "ol", "ul", "dl", "dd", "dt", "li", "form":
		score = -3
	case "h1", "h2", "h3", "h4", "h5", "h6", "th":
		score = -5
	}
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		if negativeWeight.MatchString(a.Val) {
			score -= 25
		}
		if positiveWeight.MatchString(a.Val) {
			score += 25
		}
	}
	return score
}

func linkDensity(s *goquery.Selection) float64 {
	total := len(strings.TrimSpace(s.Text()))
	if total == 0 {
		return 0
	}
	links := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		links += len(strings.TrimSpace(a.Text()))
	})
	return float64(links) / float64(total)
}

// fragmentText strips markup from an HTML fragment, joining text nodes with
// single spaces.
func fragmentText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	if err != nil {
		return ""
	}
	var parts []string
	for _, n := range nodes {
		parts = append(parts, strippedStrings(n)...)
	}
	return collapseSpaces(strings.Join(parts, " "))
}

// shortTitle drops a site name from a title like "Story - Site", keeping the
// longest segment that has at least two words.
func shortTitle(title string) string {
	for _, sep := range titleSeparators {
		if !strings.Contains(title, sep) {
			continue
		}
		best := ""
		for _, part := range strings.Split(title, sep) {
			part = strings.TrimSpace(part)
			if len(strings.Fields(part)) >= 2 && len(part) > len(best) {
				best = part
			}
		}
		if best != "" {
			return best
		}
	}
	return title
}
