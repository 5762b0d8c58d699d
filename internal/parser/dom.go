package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// node is the narrow query surface the rules are written against.
type node struct {
	sel *goquery.Selection
}

func parseHTML(raw string) (node, error) {
	if strings.TrimSpace(raw) == "" {
		return node{}, fmt.Errorf("empty document")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return node{}, fmt.Errorf("parse html: %w", err)
	}
	return node{sel: doc.Selection}, nil
}

// first returns the first descendant matching selector.
func (n node) first(selector string) (node, bool) {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return node{}, false
	}
	return node{sel: found}, true
}

// all returns every descendant matching selector in document order.
func (n node) all(selector string) []node {
	found := n.sel.Find(selector)
	out := make([]node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, node{sel: s})
	})
	return out
}

func (n node) exists(selector string) bool {
	return n.sel.Find(selector).Length() > 0
}

func (n node) attr(name string) string {
	v, _ := n.sel.Attr(name)
	return strings.TrimSpace(v)
}

func (n node) hasClass(class string) bool {
	return n.sel.HasClass(class)
}

func (n node) is(selector string) bool {
	return n.sel.Is(selector)
}

func (n node) within(selector string) bool {
	return n.sel.ParentsFiltered(selector).Length() > 0
}

// text returns the element text with whitespace collapsed.
func (n node) text() string {
	return collapse(n.sel.Text())
}

// plainText returns the element text with block boundaries kept as
// newlines. Script and style content is dropped.
func (n node) plainText() string {
	var (
		lines []string
		buf   strings.Builder
	)
	flush := func() {
		if line := collapse(buf.String()); line != "" {
			lines = append(lines, line)
		}
		buf.Reset()
	}
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		switch h.Type {
		case html.TextNode:
			buf.WriteString(h.Data)
			return
		case html.ElementNode:
			if _, skip := skippedElements[h.Data]; skip {
				return
			}
		}
		_, block := blockElements[h.Data]
		if block && h.Type == html.ElementNode {
			flush()
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && h.Type == html.ElementNode {
			flush()
		}
	}
	for _, h := range n.sel.Nodes {
		walk(h)
	}
	flush()
	return strings.Join(lines, "\n")
}

var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"dd": {}, "div": {}, "dl": {}, "dt": {}, "figcaption": {}, "figure": {},
	"footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {}, "p": {},
	"pre": {}, "section": {}, "table": {}, "td": {}, "th": {}, "tr": {}, "ul": {},
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
