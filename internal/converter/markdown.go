package converter

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// markdownParserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to share;
// per-call state lives in the reader passed to Parse.
var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

// MarkdownToBlocks parses markdown into the destination block sequence.
// Top-level markdown nodes map one-to-one onto block kinds; anything
// goldmark produces outside the mapped set degrades to a paragraph.
// Images are lifted out of their surrounding paragraph into standalone
// image blocks, placed immediately after the text they appeared in.
func MarkdownToBlocks(source []byte) []Block {
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var blocks []Block
	for node := document.FirstChild(); node != nil; node = node.NextSibling() {
		blocks = append(blocks, convertNode(source, node)...)
	}
	return blocks
}

func convertNode(source []byte, node ast.Node) []Block {
	switch n := node.(type) {
	case *ast.Heading:
		rich, images := flattenInlines(source, n)
		out := []Block{{Kind: KindHeading, Level: n.Level, Text: rich.Text, Facets: rich.Facets}}
		return append(out, images...)

	case *ast.Paragraph:
		return paragraphBlocks(source, n)

	case *ast.TextBlock:
		return paragraphBlocks(source, n)

	case *ast.FencedCodeBlock:
		return []Block{{
			Kind:     KindCode,
			Language: string(n.Language(source)),
			Text:     rawLines(source, n),
		}}

	case *ast.CodeBlock:
		return []Block{{Kind: KindCode, Text: rawLines(source, n)}}

	case *ast.Blockquote:
		return []Block{quoteBlock(source, n)}

	case *ast.List:
		return []Block{listBlock(source, n)}

	case *ast.ThematicBreak:
		return []Block{{Kind: KindRule}}

	case *ast.HTMLBlock:
		// Leftover raw HTML that survived normalization. Degrade to the
		// literal text rather than dropping it.
		raw := strings.TrimSpace(rawLines(source, n))
		if raw == "" {
			return nil
		}
		return []Block{{Kind: KindParagraph, Text: raw}}

	default:
		// Unrecognized structure: the explicit fallback arm. Flatten
		// whatever inline content it has into a plain paragraph.
		rich, images := flattenInlines(source, node)
		var out []Block
		if strings.TrimSpace(rich.Text) != "" {
			out = append(out, Block{Kind: KindParagraph, Text: rich.Text, Facets: rich.Facets})
		}
		return append(out, images...)
	}
}

func paragraphBlocks(source []byte, node ast.Node) []Block {
	rich, images := flattenInlines(source, node)
	var out []Block
	if strings.TrimSpace(rich.Text) != "" {
		out = append(out, Block{Kind: KindParagraph, Text: rich.Text, Facets: rich.Facets})
	}
	return append(out, images...)
}

// quoteBlock merges a blockquote's paragraphs into one quote block,
// newline-separated, with facet offsets shifted into the merged text.
// Images inside quotes are dropped to their alt text; the destination
// schema has no nested image-in-quote representation.
func quoteBlock(source []byte, quote *ast.Blockquote) Block {
	var b strings.Builder
	var facets []Facet

	for child := quote.FirstChild(); child != nil; child = child.NextSibling() {
		rich, _ := flattenInlines(source, child)
		if strings.TrimSpace(rich.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		base := b.Len()
		for _, f := range rich.Facets {
			f.ByteStart += base
			f.ByteEnd += base
			facets = append(facets, f)
		}
		b.WriteString(rich.Text)
	}

	return Block{Kind: KindQuote, Text: b.String(), Facets: facets}
}

// listBlock flattens a list into one block. Nested sublists contribute
// their items after the parent item, so ordering follows the source.
func listBlock(source []byte, list *ast.List) Block {
	block := Block{Kind: KindList, Ordered: list.IsOrdered()}
	collectListItems(source, list, &block.Items)
	return block
}

func collectListItems(source []byte, list *ast.List, items *[]RichText) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var b strings.Builder
		var facets []Facet
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if nested, ok := child.(*ast.List); ok {
				if b.Len() > 0 || len(facets) > 0 {
					*items = append(*items, RichText{Text: b.String(), Facets: facets})
					b.Reset()
					facets = nil
				}
				collectListItems(source, nested, items)
				continue
			}
			rich, _ := flattenInlines(source, child)
			if strings.TrimSpace(rich.Text) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			base := b.Len()
			for _, f := range rich.Facets {
				f.ByteStart += base
				f.ByteEnd += base
				facets = append(facets, f)
			}
			b.WriteString(rich.Text)
		}
		if b.Len() > 0 || len(facets) > 0 {
			*items = append(*items, RichText{Text: b.String(), Facets: facets})
		}
	}
}

// inlineFlattener accumulates a block's inline content into plaintext
// plus facets with UTF-8 byte offsets. Soft line breaks become spaces so
// hard-wrapped source reflows as one paragraph; hard breaks survive as
// newlines. Images encountered inline are collected separately.
type inlineFlattener struct {
	source []byte
	b      strings.Builder
	facets []Facet
	images []Block
}

func flattenInlines(source []byte, parent ast.Node) (RichText, []Block) {
	f := &inlineFlattener{source: source}
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		f.visit(child)
	}
	return RichText{Text: f.b.String(), Facets: f.facets}, f.images
}

func (f *inlineFlattener) visit(node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		f.b.Write(n.Segment.Value(f.source))
		if n.HardLineBreak() {
			f.b.WriteByte('\n')
		} else if n.SoftLineBreak() {
			f.b.WriteByte(' ')
		}

	case *ast.String:
		f.b.Write(n.Value)

	case *ast.Link:
		start := f.b.Len()
		f.visitChildren(n)
		if end := f.b.Len(); end > start {
			f.facets = append(f.facets, Facet{
				ByteStart: start,
				ByteEnd:   end,
				Kind:      FacetLink,
				URI:       string(n.Destination),
			})
		}

	case *ast.AutoLink:
		url := string(n.URL(f.source))
		start := f.b.Len()
		f.b.WriteString(url)
		f.facets = append(f.facets, Facet{
			ByteStart: start,
			ByteEnd:   f.b.Len(),
			Kind:      FacetLink,
			URI:       url,
		})

	case *ast.Emphasis:
		start := f.b.Len()
		f.visitChildren(n)
		end := f.b.Len()
		if end == start {
			return
		}
		kind := FacetItalic
		if n.Level >= 2 {
			kind = FacetBold
		}
		f.facets = append(f.facets, Facet{ByteStart: start, ByteEnd: end, Kind: kind})

	case *ast.Image:
		f.images = append(f.images, Block{
			Kind:     KindImage,
			ImageURL: string(n.Destination),
			ImageAlt: inlineText(f.source, n),
		})

	default:
		f.visitChildren(node)
	}
}

func (f *inlineFlattener) visitChildren(node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		f.visit(child)
	}
}

// inlineText returns the plain text content of an inline subtree,
// without facets. Used for image alt text.
func inlineText(source []byte, parent ast.Node) string {
	sub := &inlineFlattener{source: source}
	sub.visitChildren(parent)
	return sub.b.String()
}

// rawLines concatenates a block node's source line segments.
func rawLines(source []byte, node ast.Node) string {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(source))
	}
	return strings.TrimRight(b.String(), "\n")
}
