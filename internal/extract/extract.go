package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// nonContentTags are dropped by every tier before text is collected.
var nonContentTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		head = n
	}
	t := findFirst(head, "title")
	if t == nil {
		return ""
	}
	return strings.TrimSpace(collapseSpaces(nodeText(t)))
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// strippedStrings returns every non-blank text node under n, trimmed, in
// document order. Subtrees rooted at non-content tags are skipped.
func strippedStrings(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && nonContentTags[strings.ToLower(cur.Data)] {
			return
		}
		if cur.Type == html.TextNode {
			if s := strings.TrimSpace(cur.Data); s != "" {
				out = append(out, s)
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// collectText writes readable text for n into b, keeping block boundaries
// as newlines and preserving pre/code blocks.
func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) {
			return
		}
		name := strings.ToLower(n.Data)
		if nonContentTags[name] {
			return
		}
		switch name {
		case "nav", "footer", "aside", "iframe":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "div", "section":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			b.WriteString("\n\n")
		case "li", "div", "section":
			b.WriteString("\n")
		case "pre", "code":
			b.WriteString("\n")
		}
	}
}

// boilerplateTokens are class/id tokens that mark non-content containers.
var boilerplateTokens = map[string]bool{
	"ad": true, "ads": true, "advert": true, "advertisement": true, "sponsor": true, "sponsored": true,
	"promo": true, "banner": true, "popup": true, "modal": true, "subscribe": true, "newsletter": true,
	"comment": true, "comments": true, "disqus": true, "respond": true, "replies": true,
	"share": true, "sharing": true, "social": true, "related": true, "sidebar": true,
	"breadcrumb": true, "breadcrumbs": true, "cookie": true, "cookies": true, "consent": true, "gdpr": true,
	"cookiebar": true,
}

// isBoilerplateContainer reports whether an element's id, class, role, or
// aria-label marks it as a banner, ad, comment thread, or similar.
func isBoilerplateContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "html", "body", "main", "article":
		return false
	}
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "aria-label" && key != "role" {
			continue
		}
		val := strings.ToLower(attr.Val)
		if key == "role" && (val == "complementary" || val == "navigation" || val == "banner" || val == "contentinfo") {
			return true
		}
		for _, tok := range strings.FieldsFunc(val, isTokenSeparator) {
			if boilerplateTokens[tok] {
				return true
			}
		}
	}
	return false
}

func isTokenSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '_' || r == '\t' || r == '\n'
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			// keep at most one consecutive blank
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\u00a0' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
