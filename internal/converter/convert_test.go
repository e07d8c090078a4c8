package converter

import (
	"reflect"
	"testing"
)

func TestHTMLToMarkdown(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "paragraphs",
			html: "<p>First paragraph.</p><p>Second paragraph.</p>",
			want: "First paragraph.\n\nSecond paragraph.",
		},
		{
			name: "heading and text",
			html: "<h2>Section</h2><p>Body text.</p>",
			want: "## Section\n\nBody text.",
		},
		{
			name: "inline link",
			html: `<p>See <a href="https://example.com">the site</a> for more.</p>`,
			want: "See [the site](https://example.com) for more.",
		},
		{
			name: "emphasis",
			html: "<p><strong>bold</strong> and <em>italic</em></p>",
			want: "**bold** and *italic*",
		},
		{
			name: "blockquote",
			html: "<blockquote>Quoted words.</blockquote>",
			want: "> Quoted words.",
		},
		{
			name: "preformatted code",
			html: "<pre>x := 1\ny := 2</pre>",
			want: "```\nx := 1\ny := 2\n```",
		},
		{
			name: "unordered list",
			html: "<ul><li>one</li><li>two</li></ul>",
			want: "- one\n- two",
		},
		{
			name: "ordered list",
			html: "<ol><li>first</li><li>second</li></ol>",
			want: "1. first\n2. second",
		},
		{
			name: "image",
			html: `<p><img src="https://example.com/a.jpg" alt="photo"></p>`,
			want: "![photo](https://example.com/a.jpg)",
		},
		{
			name: "horizontal rule",
			html: "<p>above</p><hr><p>below</p>",
			want: "above\n\n---\n\nbelow",
		},
		{
			name: "script and style dropped",
			html: "<p>kept</p><script>alert(1)</script><style>p{}</style>",
			want: "kept",
		},
		{
			name: "whitespace collapsed",
			html: "<p>spread   over\n   lines</p>",
			want: "spread over lines",
		},
		{
			name: "unknown elements degrade to content",
			html: "<center>centered text</center>",
			want: "centered text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToMarkdown(tt.html)
			if err != nil {
				t.Fatalf("HTMLToMarkdown() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HTMLToMarkdown() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractImageURLs(t *testing.T) {
	html := `<p><img src="https://a.example/1.jpg"></p>` +
		`<img data-src="https://a.example/2.png">` +
		`<img src="https://a.example/1.jpg">`
	got := ExtractImageURLs(html)
	want := []string{
		"https://a.example/1.jpg",
		"https://a.example/2.png",
		"https://a.example/1.jpg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractImageURLs() = %v, want %v", got, want)
	}
}

func TestMarkdownToBlocks(t *testing.T) {
	blocks := MarkdownToBlocks([]byte("# Title\n\nHello *there* friend.\n\n```go\nx := 1\n```\n\n---\n"))

	if len(blocks) != 4 {
		t.Fatalf("got %d blocks, want 4: %+v", len(blocks), blocks)
	}

	if blocks[0].Kind != KindHeading || blocks[0].Level != 1 || blocks[0].Text != "Title" {
		t.Errorf("heading block = %+v", blocks[0])
	}
	if blocks[1].Kind != KindParagraph || blocks[1].Text != "Hello there friend." {
		t.Errorf("paragraph block = %+v", blocks[1])
	}
	if len(blocks[1].Facets) != 1 || blocks[1].Facets[0].Kind != FacetItalic {
		t.Errorf("paragraph facets = %+v", blocks[1].Facets)
	}
	if blocks[2].Kind != KindCode || blocks[2].Language != "go" || blocks[2].Text != "x := 1" {
		t.Errorf("code block = %+v", blocks[2])
	}
	if blocks[3].Kind != KindRule {
		t.Errorf("rule block = %+v", blocks[3])
	}
}

func TestMarkdownLinkFacetOffsets(t *testing.T) {
	// Facet offsets are byte offsets, so multi-byte text before a link
	// must shift them accordingly.
	blocks := MarkdownToBlocks([]byte("héllo [link](https://example.com)"))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	facets := blocks[0].Facets
	if len(facets) != 1 {
		t.Fatalf("got %d facets, want 1", len(facets))
	}
	f := facets[0]
	if f.Kind != FacetLink || f.URI != "https://example.com" {
		t.Errorf("facet = %+v", f)
	}
	// "héllo " is 7 bytes (é is 2).
	if f.ByteStart != 7 || f.ByteEnd != 11 {
		t.Errorf("facet range = [%d, %d), want [7, 11)", f.ByteStart, f.ByteEnd)
	}
	if blocks[0].Text[f.ByteStart:f.ByteEnd] != "link" {
		t.Errorf("facet covers %q, want %q", blocks[0].Text[f.ByteStart:f.ByteEnd], "link")
	}
}

func TestMarkdownImageLifting(t *testing.T) {
	blocks := MarkdownToBlocks([]byte("before ![alt text](https://example.com/i.jpg) after"))
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2: %+v", len(blocks), blocks)
	}
	if blocks[0].Kind != KindParagraph {
		t.Errorf("first block kind = %v", blocks[0].Kind)
	}
	if blocks[1].Kind != KindImage || blocks[1].ImageURL != "https://example.com/i.jpg" || blocks[1].ImageAlt != "alt text" {
		t.Errorf("image block = %+v", blocks[1])
	}
}

func TestMarkdownLists(t *testing.T) {
	blocks := MarkdownToBlocks([]byte("- one\n- two with [x](https://x.example)\n"))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	block := blocks[0]
	if block.Kind != KindList || block.Ordered {
		t.Errorf("list block = %+v", block)
	}
	if len(block.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(block.Items))
	}
	if block.Items[0].Text != "one" {
		t.Errorf("item 0 = %+v", block.Items[0])
	}
	if len(block.Items[1].Facets) != 1 || block.Items[1].Facets[0].Kind != FacetLink {
		t.Errorf("item 1 facets = %+v", block.Items[1].Facets)
	}
}

func TestMarkdownBlockquoteMerging(t *testing.T) {
	blocks := MarkdownToBlocks([]byte("> first line\n>\n> second *styled* line\n"))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1: %+v", len(blocks), blocks)
	}
	block := blocks[0]
	if block.Kind != KindQuote {
		t.Fatalf("kind = %v, want quote", block.Kind)
	}
	if block.Text != "first line\nsecond styled line" {
		t.Errorf("quote text = %q", block.Text)
	}
	if len(block.Facets) != 1 {
		t.Fatalf("got %d facets, want 1", len(block.Facets))
	}
	f := block.Facets[0]
	if block.Text[f.ByteStart:f.ByteEnd] != "styled" {
		t.Errorf("facet covers %q, want %q", block.Text[f.ByteStart:f.ByteEnd], "styled")
	}
}

func TestConvertDeterministic(t *testing.T) {
	html := `<h1>Post</h1><p>Some <a href="https://example.com">linked</a> text.</p><p><img src="https://example.com/x.jpg"></p>`

	first, err := Convert(html)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Convert(html)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("conversion is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestDropLeadingTitle(t *testing.T) {
	tests := []struct {
		name      string
		markdown  string
		title     string
		wantDrops bool
	}{
		{"matching title dropped", "# My Post\n\nbody", "My Post", true},
		{"different title kept", "# Other Heading\n\nbody", "My Post", false},
		{"non-heading first block kept", "My Post\n\nbody", "My Post", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ConvertMarkdown(tt.markdown)
			before := len(doc.Blocks)
			doc.DropLeadingTitle(tt.title)
			dropped := len(doc.Blocks) == before-1
			if dropped != tt.wantDrops {
				t.Errorf("dropped = %v, want %v (blocks: %+v)", dropped, tt.wantDrops, doc.Blocks)
			}
		})
	}
}

func TestDegradeImage(t *testing.T) {
	doc := ConvertMarkdown("![a photo](https://example.com/gone.jpg)")
	unresolved := doc.UnresolvedImages()
	if len(unresolved) != 1 {
		t.Fatalf("got %d unresolved images, want 1", len(unresolved))
	}

	doc.DegradeImage(unresolved[0])

	block := doc.Blocks[unresolved[0]]
	if block.Kind != KindParagraph {
		t.Fatalf("degraded kind = %v, want paragraph", block.Kind)
	}
	if len(block.Facets) != 1 || block.Facets[0].Kind != FacetLink || block.Facets[0].URI != "https://example.com/gone.jpg" {
		t.Errorf("degraded facets = %+v", block.Facets)
	}
	if len(doc.UnresolvedImages()) != 0 {
		t.Errorf("image still unresolved after degrade")
	}
}
