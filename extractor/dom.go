package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// page wraps a parsed document with a per-node visible-text cache.
type page struct {
	doc  *goquery.Document
	text map[*html.Node]string
}

func parsePage(rawHTML string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	return &page{doc: doc, text: make(map[*html.Node]string)}, nil
}

// skipText lists elements whose contents never render as text.
var skipText = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true, "svg": true,
}

// textOf returns the visible text of n with whitespace collapsed. Adjacent
// elements are separated by a space so words from sibling tags never merge.
func (p *page) textOf(n *html.Node) string {
	if t, ok := p.text[n]; ok {
		return t
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			if s := strings.TrimSpace(c.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.ElementNode:
			if skipText[c.Data] {
				return
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	t := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	p.text[n] = t
	return t
}

// elements returns every element under body in document order, skipping
// the ones that never render text.
func (p *page) elements() []*html.Node {
	var out []*html.Node
	p.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if skipText[n.Data] || insideSkipped(n) {
			return
		}
		out = append(out, n)
	})
	return out
}

func insideSkipped(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && skipText[p.Data] {
			return true
		}
	}
	return false
}

// depth is the number of ancestors of n.
func depth(n *html.Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
