package converter

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var excessiveBlankLines = regexp.MustCompile(`\n{3,}`)

// HTMLToMarkdown normalizes a post's raw HTML body to markdown.
// Script, style, and noscript elements are dropped; unknown elements
// contribute their text content so no prose is silently lost.
func HTMLToMarkdown(rawHTML string) (string, error) {
	// html.Parse is lenient and wraps fragments in html/body; it only
	// fails on reader errors, which strings.Reader never produces, but
	// the error is checked anyway since malformed input policy matters
	// here.
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	var w mdWriter
	w.walk(root)

	out := excessiveBlankLines.ReplaceAllString(w.b.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

// ExtractImageURLs returns the src (or data-src) of every <img> in the
// HTML, in document order. Duplicates are preserved: each occurrence is
// its own image block downstream.
func ExtractImageURLs(rawHTML string) []string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var urls []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if src := imgSrc(n); src != "" {
				urls = append(urls, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return urls
}

func imgSrc(n *html.Node) string {
	src := attr(n, "src")
	if src == "" {
		src = attr(n, "data-src")
	}
	return src
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// mdWriter renders an HTML node tree as markdown. Inline content
// accumulates directly; block elements manage their own surrounding
// blank lines.
type mdWriter struct {
	b strings.Builder

	quoteDepth int
	listStack  []listLevel
}

type listLevel struct {
	ordered bool
	index   int
}

func (w *mdWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		w.element(n)
		return
	}
	// Document and other container nodes: recurse.
	w.children(n)
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *mdWriter) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Iframe:
		return

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		w.blockBreak()
		w.b.WriteString(strings.Repeat("#", level) + " ")
		w.children(n)
		w.newline()

	case atom.P, atom.Div, atom.Figure, atom.Figcaption, atom.Section, atom.Article:
		w.blockBreak()
		w.children(n)
		w.newline()

	case atom.Br:
		w.b.WriteString("\n")
		w.linePrefix()

	case atom.Hr:
		w.blockBreak()
		w.b.WriteString("---")
		w.newline()

	case atom.Blockquote:
		w.blockBreak()
		w.quoteDepth++
		w.linePrefix()
		w.children(n)
		w.quoteDepth--
		w.newline()

	case atom.Pre:
		w.blockBreak()
		w.b.WriteString("```\n")
		w.b.WriteString(strings.TrimRight(textContent(n), "\n"))
		w.b.WriteString("\n```")
		w.newline()

	case atom.Code:
		// Inline only here; code inside <pre> is handled above via
		// textContent, which never reaches this case.
		w.b.WriteString("`" + textContent(n) + "`")

	case atom.Ul, atom.Ol:
		w.blockBreak()
		w.listStack = append(w.listStack, listLevel{ordered: n.DataAtom == atom.Ol})
		w.children(n)
		w.listStack = w.listStack[:len(w.listStack)-1]
		w.newline()

	case atom.Li:
		level := &w.listStack[len(w.listStack)-1]
		level.index++
		if w.b.Len() > 0 && !strings.HasSuffix(w.b.String(), "\n") {
			w.b.WriteString("\n")
		}
		w.linePrefix()
		w.b.WriteString(strings.Repeat("  ", len(w.listStack)-1))
		if level.ordered {
			w.b.WriteString(strconv.Itoa(level.index) + ". ")
		} else {
			w.b.WriteString("- ")
		}
		w.children(n)

	case atom.A:
		href := attr(n, "href")
		if href == "" {
			w.children(n)
			return
		}
		w.b.WriteString("[")
		w.children(n)
		w.b.WriteString("](" + href + ")")

	case atom.Img:
		if src := imgSrc(n); src != "" {
			w.b.WriteString("![" + attr(n, "alt") + "](" + src + ")")
		}

	case atom.Strong, atom.B:
		w.b.WriteString("**")
		w.children(n)
		w.b.WriteString("**")

	case atom.Em, atom.I:
		w.b.WriteString("*")
		w.children(n)
		w.b.WriteString("*")

	case atom.Dl:
		// Conversation posts render as definition lists; flatten each
		// label/phrase pair onto its own line.
		w.blockBreak()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Dt:
				w.b.WriteString("**" + strings.TrimSpace(textContent(c)) + "**: ")
			case atom.Dd:
				w.b.WriteString(strings.TrimSpace(textContent(c)) + "\n")
			}
		}
		w.newline()

	default:
		// Unrecognized elements degrade to their content.
		w.children(n)
	}
}

func (w *mdWriter) text(s string) {
	collapsed := collapseWhitespace(s)
	if collapsed == "" {
		return
	}
	// Drop leading space at the start of a line.
	out := w.b.String()
	if (out == "" || strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "> ")) && strings.HasPrefix(collapsed, " ") {
		collapsed = collapsed[1:]
	}
	w.b.WriteString(collapsed)
}

// blockBreak ensures a blank line before a new block element.
func (w *mdWriter) blockBreak() {
	out := w.b.String()
	if out == "" {
		return
	}
	if !strings.HasSuffix(out, "\n\n") {
		if strings.HasSuffix(out, "\n") {
			w.b.WriteString("\n")
		} else {
			w.b.WriteString("\n\n")
		}
	}
	w.linePrefix()
}

func (w *mdWriter) newline() {
	if !strings.HasSuffix(w.b.String(), "\n") {
		w.b.WriteString("\n")
	}
}

// linePrefix writes the blockquote marker for the current nesting depth.
func (w *mdWriter) linePrefix() {
	for i := 0; i < w.quoteDepth; i++ {
		w.b.WriteString("> ")
	}
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			space = true
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

