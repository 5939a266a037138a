package web

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// telegraphNode is an element of the telegra.ph content DOM. Children are
// either strings or *telegraphNode.
type telegraphNode struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}

var telegraphMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

// markdownToNodes converts Markdown into the telegra.ph node format,
// which only knows a small tag set: headings map to h3/h4 and unknown
// constructs degrade to paragraphs.
func markdownToNodes(src string) []any {
	source := []byte(src)
	doc := telegraphMarkdown.Parser().Parse(text.NewReader(source))
	b := nodeBuilder{source: source}
	return b.blocks(doc)
}

type nodeBuilder struct {
	source []byte
}

func (b nodeBuilder) blocks(parent ast.Node) []any {
	var out []any
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if el := b.block(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}

func (b nodeBuilder) block(n ast.Node) any {
	switch n := n.(type) {
	case *ast.Heading:
		tag := "h4"
		if n.Level <= 2 {
			tag = "h3"
		}
		return &telegraphNode{Tag: tag, Children: b.inlines(n)}
	case *ast.Paragraph, *ast.TextBlock:
		return &telegraphNode{Tag: "p", Children: b.inlines(n)}
	case *ast.Blockquote:
		return &telegraphNode{Tag: "blockquote", Children: flattenBlocks(b.blocks(n))}
	case *ast.List:
		tag := "ul"
		if n.IsOrdered() {
			tag = "ol"
		}
		var items []any
		for li := n.FirstChild(); li != nil; li = li.NextSibling() {
			items = append(items, &telegraphNode{Tag: "li", Children: flattenBlocks(b.blocks(li))})
		}
		return &telegraphNode{Tag: tag, Children: items}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return &telegraphNode{Tag: "pre", Children: []any{b.lines(n)}}
	case *ast.ThematicBreak:
		return &telegraphNode{Tag: "hr"}
	case *ast.HTMLBlock:
		return &telegraphNode{Tag: "p", Children: []any{b.lines(n)}}
	default:
		if children := b.blocks(n); len(children) > 0 {
			return &telegraphNode{Tag: "p", Children: flattenBlocks(children)}
		}
		return nil
	}
}

// flattenBlocks unwraps single paragraphs inside list items and quotes,
// which telegra.ph renders with extra spacing otherwise.
func flattenBlocks(children []any) []any {
	if len(children) == 1 {
		if p, ok := children[0].(*telegraphNode); ok && p.Tag == "p" {
			return p.Children
		}
	}
	return children
}

func (b nodeBuilder) lines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(b.source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b nodeBuilder) inlines(parent ast.Node) []any {
	var out []any
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, b.inline(n)...)
	}
	return out
}

func (b nodeBuilder) inline(n ast.Node) []any {
	switch n := n.(type) {
	case *ast.Text:
		s := string(n.Segment.Value(b.source))
		switch {
		case n.HardLineBreak():
			return []any{s, &telegraphNode{Tag: "br"}}
		case n.SoftLineBreak():
			return []any{s + " "}
		}
		return []any{s}
	case *ast.String:
		return []any{string(n.Value)}
	case *ast.CodeSpan:
		var sb strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(b.source))
			}
		}
		return []any{&telegraphNode{Tag: "code", Children: []any{sb.String()}}}
	case *ast.Emphasis:
		tag := "em"
		if n.Level >= 2 {
			tag = "strong"
		}
		return []any{&telegraphNode{Tag: tag, Children: b.inlines(n)}}
	case *extast.Strikethrough:
		return []any{&telegraphNode{Tag: "s", Children: b.inlines(n)}}
	case *ast.Link:
		return []any{&telegraphNode{Tag: "a", Attrs: map[string]string{"href": string(n.Destination)}, Children: b.inlines(n)}}
	case *ast.AutoLink:
		u := string(n.URL(b.source))
		return []any{&telegraphNode{Tag: "a", Attrs: map[string]string{"href": u}, Children: []any{string(n.Label(b.source))}}}
	case *ast.Image:
		return []any{&telegraphNode{Tag: "img", Attrs: map[string]string{"src": string(n.Destination)}}}
	case *ast.RawHTML:
		var sb strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			sb.Write(seg.Value(b.source))
		}
		return []any{sb.String()}
	default:
		return b.inlines(n)
	}
}
