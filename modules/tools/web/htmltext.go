package web

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Template: true,
	atom.Form:     true,
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Aside: true,
	atom.Main: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
	atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Figure: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Hr: true,
}

// htmlToText renders an HTML document as readable text with light
// Markdown structure: headings, list bullets and link targets survive.
// The title is taken from <title> when present.
func htmlToText(body []byte, contentType string) (title, text string, err error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("web: parse html: %w", err)
	}

	title = findTitle(doc)

	w := &textWriter{}
	root := findAtom(doc, atom.Body)
	if root == nil {
		root = doc
	}
	w.walk(root)
	return title, w.String(), nil
}

func findTitle(n *html.Node) string {
	if t := findAtom(n, atom.Title); t != nil {
		return collapse(textContent(t))
	}
	return ""
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAtom(c, a); found != nil {
			return found
		}
	}
	return nil
}

type textWriter struct {
	buf   strings.Builder
	lists int
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c)
		}
		return
	}

	if skipAtoms[n.DataAtom] {
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.block()
		level := int(n.Data[1] - '0')
		w.buf.WriteString(strings.Repeat("#", level) + " ")
		w.children(n)
		w.block()
		return
	case atom.Br:
		w.newline()
		return
	case atom.Li:
		w.newline()
		w.buf.WriteString(strings.Repeat("  ", max(w.lists-1, 0)) + "- ")
		w.children(n)
		w.newline()
		return
	case atom.Ul, atom.Ol:
		w.lists++
		w.block()
		w.children(n)
		w.block()
		w.lists--
		return
	case atom.A:
		href := strings.TrimSpace(attr(n, "href"))
		label := collapse(textContent(n))
		switch {
		case label == "":
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
			w.text(label)
		default:
			w.text("[" + label + "](" + href + ")")
		}
		return
	case atom.Td, atom.Th:
		w.children(n)
		w.buf.WriteString(" | ")
		return
	}

	block := blockAtoms[n.DataAtom]
	if block {
		w.block()
	}
	w.children(n)
	if block {
		w.block()
	}
}

func (w *textWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWriter) text(s string) {
	s = collapse(s)
	if s == "" {
		return
	}
	if w.buf.Len() > 0 {
		last := w.buf.String()[w.buf.Len()-1]
		if last != '\n' && last != ' ' {
			w.buf.WriteByte(' ')
		}
	}
	w.buf.WriteString(s)
}

func (w *textWriter) newline() {
	if w.buf.Len() == 0 {
		return
	}
	if !strings.HasSuffix(w.buf.String(), "\n") {
		w.buf.WriteByte('\n')
	}
}

func (w *textWriter) block() {
	if w.buf.Len() == 0 {
		return
	}
	w.newline()
	if !strings.HasSuffix(w.buf.String(), "\n\n") {
		w.buf.WriteByte('\n')
	}
}

func (w *textWriter) String() string {
	lines := strings.Split(w.buf.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " |")
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, want string) bool {
	for _, part := range strings.Fields(attr(n, "class")) {
		if part == want {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// isHTML reports whether a response should be run through htmlToText.
func isHTML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return true
	}
	if ct != "" {
		return false
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
