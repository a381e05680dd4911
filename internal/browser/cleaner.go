// File: internal/browser/cleaner.go
package browser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TruncationMarker terminates page content cut at the configured limit.
const TruncationMarker = "\n...[content truncated]"

// droppedElements never carry information useful for choosing a selector.
var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Embed:    true,
	atom.Object:   true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Link:     true,
	atom.Meta:     true,
}

// keptAttributes are the attributes an agent may need to build a selector
// or understand a control.
var keptAttributes = map[string]bool{
	"id":          true,
	"class":       true,
	"name":        true,
	"type":        true,
	"value":       true,
	"placeholder": true,
	"href":        true,
	"role":        true,
	"for":         true,
	"alt":         true,
	"title":       true,
	"action":      true,
	"method":      true,
	"checked":     true,
	"selected":    true,
	"disabled":    true,
	"data-testid": true,
	"label":       true,
}

// voidElements have no closing tag.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Br: true, atom.Col: true, atom.Hr: true,
	atom.Img: true, atom.Input: true, atom.Source: true, atom.Wbr: true,
}

// CleanHTML reduces a serialized DOM to the elements, attributes and text
// relevant for deciding the next action. Output longer than maxLen bytes is
// cut and suffixed with TruncationMarker; maxLen <= 0 disables the limit.
// Markup that fails to parse is returned trimmed and truncated as is.
func CleanHTML(raw string, maxLen int) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return truncate(strings.TrimSpace(raw), maxLen)
	}

	var b strings.Builder
	if body := findBody(doc); body != nil {
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			writeNode(&b, c, maxLen)
		}
	} else {
		writeNode(&b, doc, maxLen)
	}
	return truncate(strings.TrimSpace(b.String()), maxLen)
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func keepAttr(key string) bool {
	return keptAttributes[key] || strings.HasPrefix(key, "aria-")
}

// writeNode serializes n compactly. Writing stops early once the builder is
// past limit, so huge documents are not walked to the end.
func writeNode(b *strings.Builder, n *html.Node, limit int) {
	if limit > 0 && b.Len() > limit {
		return
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			b.WriteString(html.EscapeString(text))
			b.WriteByte(' ')
		}
		return
	case html.ElementNode:
		if droppedElements[n.DataAtom] || n.Data == "svg" {
			return
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(b, c, limit)
		}
		return
	}

	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		if !keepAttr(a.Key) {
			continue
		}
		val := strings.TrimSpace(a.Val)
		if a.Key == "href" && strings.HasPrefix(strings.ToLower(val), "javascript:") {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(a.Key)
		if val != "" {
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(val))
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')

	if voidElements[n.DataAtom] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c, limit)
	}
	b.WriteString("</")
	b.WriteString(n.Data)
	b.WriteByte('>')
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	// Do not split a multi-byte rune.
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}
