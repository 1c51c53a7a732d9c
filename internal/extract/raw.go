package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Raw is the last-resort tier: every text node of the body, minus scripts,
// styles and templates, joined with single spaces.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Extract(input []byte, _ string) (Result, error) {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil {
		return Result{}, err
	}
	root := findFirst(node, "body")
	if root == nil {
		root = node
	}
	text := strings.Join(strippedStrings(root), " ")
	return Result{Text: text, Title: findTitle(node)}, nil
}
