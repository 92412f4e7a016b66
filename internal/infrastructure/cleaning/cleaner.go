package cleaning

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankLinesRe   = regexp.MustCompile(`\n\s*\n(\s*\n)+`)
	htmlCommentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	headerRe       = regexp.MustCompile(`(?m)^(#{1,6})[ \t]*(.+?)[ \t]*#*[ \t]*$`)
	inlineSpacesRe = regexp.MustCompile(`[ \t]+`)
)

// Cleaner normalizes raw source content per format before chunking.
type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

func (c *Cleaner) Clean(format, raw string) string {
	switch format {
	case "html":
		return HTMLToText(raw)
	case "markdown":
		return NormalizeMarkdown(raw)
	default:
		return normalizeWhitespace(raw)
	}
}

// HTMLToText extracts visible text from an HTML fragment. Links and images
// are dropped, block elements become line breaks.
func HTMLToText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return normalizeWhitespace(raw)
	}

	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return normalizeWhitespace(raw)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "img", "svg":
				return
			case "br":
				b.WriteString("\n")
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteString("\n\n")
		}
	}
	walk(root)
	return normalizeWhitespace(b.String())
}

// NormalizeMarkdown collapses blank runs, strips HTML comments and
// normalizes ATX headers.
func NormalizeMarkdown(raw string) string {
	out := htmlCommentRe.ReplaceAllString(raw, "")
	out = headerRe.ReplaceAllString(out, "$1 $2")
	return normalizeWhitespace(out)
}

func normalizeWhitespace(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpacesRe.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "ul", "ol", "pre", "blockquote", "table", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "aside", "section", "article":
		return true
	default:
		return false
	}
}
