package transcript

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/xerrors"
)

const invisible = "script, style, noscript, template"

// Extract returns the text nodes of markup, one per line, skipping
// whitespace-only nodes and non-rendered elements.
func Extract(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", xerrors.Errorf("failed to parse markup: %w", err)
	}
	doc.Find(invisible).Remove()

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.Join(lines, "\n"), nil
}
