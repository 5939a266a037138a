package telegram

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// MarkdownToHTML renders model Markdown into the HTML subset accepted by
// the Bot API: b, i, s, code, pre, a and blockquote. Headings become bold
// lines and list items get a bullet or their number.
func MarkdownToHTML(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	r := &htmlRenderer{src: source}
	_ = ast.Walk(doc, r.walk)
	return strings.TrimSpace(r.b.String())
}

type htmlRenderer struct {
	src        []byte
	b          strings.Builder
	quoteDepth int
}

func (r *htmlRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
		r.separate(n)
	}

	switch n := n.(type) {
	case *ast.Heading:
		r.tag("b", entering)

	case *ast.Emphasis:
		if n.Level >= 2 {
			r.tag("b", entering)
		} else {
			r.tag("i", entering)
		}

	case *east.Strikethrough:
		r.tag("s", entering)

	case *ast.CodeSpan:
		r.tag("code", entering)

	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(n.Lines(), string(n.Language(r.src)))
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.codeBlock(n.Lines(), "")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			r.b.WriteString(`<a href="` + attrEscaper.Replace(string(n.Destination)) + `">`)
		} else {
			r.b.WriteString("</a>")
		}

	case *ast.AutoLink:
		if entering {
			url := string(n.URL(r.src))
			r.b.WriteString(`<a href="` + attrEscaper.Replace(url) + `">` + EscapeHTML(string(n.Label(r.src))) + "</a>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		if entering {
			r.b.WriteString(`<a href="` + attrEscaper.Replace(string(n.Destination)) + `">`)
		} else {
			r.b.WriteString("</a>")
		}

	case *ast.Blockquote:
		// The Bot API rejects nested block quotes; inner quotes turn italic.
		if entering {
			r.quoteDepth++
			if r.quoteDepth == 1 {
				r.b.WriteString("<blockquote>")
			} else {
				r.b.WriteString("<i>")
			}
		} else {
			if r.quoteDepth == 1 {
				r.b.WriteString("</blockquote>")
			} else {
				r.b.WriteString("</i>")
			}
			r.quoteDepth--
		}

	case *ast.ListItem:
		if entering {
			r.b.WriteString(listPrefix(n))
		}

	case *ast.ThematicBreak:
		if entering {
			r.b.WriteString("----------")
		}

	case *ast.Text:
		if entering {
			r.b.WriteString(EscapeHTML(string(n.Segment.Value(r.src))))
			if n.SoftLineBreak() || n.HardLineBreak() {
				r.b.WriteByte('\n')
			}
		}

	case *ast.String:
		if entering {
			r.b.WriteString(EscapeHTML(string(n.Value)))
		}

	case *ast.RawHTML:
		if entering {
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				r.b.WriteString(EscapeHTML(string(seg.Value(r.src))))
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.b.WriteString(EscapeHTML(string(seg.Value(r.src))))
			}
		}
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

// separate writes the whitespace between a block and its previous sibling.
func (r *htmlRenderer) separate(n ast.Node) {
	if n.PreviousSibling() == nil {
		return
	}
	if n.Kind() == ast.KindListItem {
		r.b.WriteByte('\n')
		return
	}
	if p := n.Parent(); p != nil && p.Kind() == ast.KindListItem {
		r.b.WriteByte('\n')
		return
	}
	r.b.WriteString("\n\n")
}

func (r *htmlRenderer) tag(name string, open bool) {
	if open {
		r.b.WriteString("<" + name + ">")
	} else {
		r.b.WriteString("</" + name + ">")
	}
}

func (r *htmlRenderer) codeBlock(lines *text.Segments, lang string) {
	var code strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(r.src))
	}
	body := EscapeHTML(strings.TrimRight(code.String(), "\n"))
	if lang != "" {
		r.b.WriteString(`<pre><code class="language-` + attrEscaper.Replace(lang) + `">` + body + "</code></pre>")
		return
	}
	r.b.WriteString("<pre>" + body + "</pre>")
}

// listPrefix returns the indentation and marker of a list item.
func listPrefix(item *ast.ListItem) string {
	depth := 0
	for p := item.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == ast.KindList {
			depth++
		}
	}
	indent := strings.Repeat("  ", max(depth-1, 0))

	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return indent + "• "
	}
	idx := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		idx++
	}
	return indent + strconv.Itoa(list.Start+idx) + ". "
}
