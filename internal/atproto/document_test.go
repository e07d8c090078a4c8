package atproto

import (
	"testing"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/converter"
)

func testMeta() DocumentMeta {
	return DocumentMeta{
		DID:         "did:plc:abc123",
		Title:       "Test Post",
		Publication: "at://did:plc:abc123/pub.leaflet.publication/self",
		PublishedAt: time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC),
	}
}

func blockPayload(t *testing.T, wrapped map[string]any) map[string]any {
	t.Helper()
	if wrapped["$type"] != "pub.leaflet.pages.linearDocument#block" {
		t.Fatalf("wrapper $type = %v", wrapped["$type"])
	}
	inner, ok := wrapped["block"].(map[string]any)
	if !ok {
		t.Fatalf("block payload missing: %v", wrapped)
	}
	return inner
}

func recordBlocks(t *testing.T, record map[string]any) []map[string]any {
	t.Helper()
	pages, ok := record["pages"].([]map[string]any)
	if !ok || len(pages) != 1 {
		t.Fatalf("pages = %v", record["pages"])
	}
	if pages[0]["$type"] != "pub.leaflet.pages.linearDocument" {
		t.Fatalf("page $type = %v", pages[0]["$type"])
	}
	blocks, ok := pages[0]["blocks"].([]map[string]any)
	if !ok {
		t.Fatalf("blocks = %v", pages[0]["blocks"])
	}
	return blocks
}

func TestBuildDocumentRecord(t *testing.T) {
	doc := &converter.Document{Blocks: []converter.Block{
		{Kind: converter.KindHeading, Text: "Greetings", Level: 2},
		{Kind: converter.KindParagraph, Text: "Visit here now", Facets: []converter.Facet{
			{ByteStart: 6, ByteEnd: 10, Kind: converter.FacetLink, URI: "https://example.com"},
		}},
		{Kind: converter.KindQuote, Text: "Quoted."},
		{Kind: converter.KindCode, Text: "fmt.Println(1)", Language: "go"},
		{Kind: converter.KindRule},
		{Kind: converter.KindImage, ImageAlt: "a cat",
			Blob: &converter.BlobRef{CID: "bafyimg", MimeType: "image/jpeg", Size: 1234}},
	}}

	record, err := BuildDocumentRecord(testMeta(), doc)
	if err != nil {
		t.Fatal(err)
	}

	if record["$type"] != DocumentCollection {
		t.Errorf("$type = %v", record["$type"])
	}
	if record["author"] != "did:plc:abc123" || record["title"] != "Test Post" {
		t.Errorf("metadata = %v / %v", record["author"], record["title"])
	}
	if record["publishedAt"] != "2017-07-14T02:40:00.000Z" {
		t.Errorf("publishedAt = %v", record["publishedAt"])
	}

	blocks := recordBlocks(t, record)
	if len(blocks) != 6 {
		t.Fatalf("got %d blocks, want 6", len(blocks))
	}

	header := blockPayload(t, blocks[0])
	if header["$type"] != "pub.leaflet.blocks.header" || header["level"] != 2 {
		t.Errorf("header = %v", header)
	}

	text := blockPayload(t, blocks[1])
	if text["$type"] != "pub.leaflet.blocks.text" {
		t.Errorf("text = %v", text)
	}
	facets := text["facets"].([]map[string]any)
	if len(facets) != 1 {
		t.Fatalf("facets = %v", facets)
	}
	index := facets[0]["index"].(map[string]any)
	if index["byteStart"] != 6 || index["byteEnd"] != 10 {
		t.Errorf("facet index = %v", index)
	}
	feature := facets[0]["features"].([]map[string]any)[0]
	if feature["$type"] != "pub.leaflet.richtext.facet#link" || feature["uri"] != "https://example.com" {
		t.Errorf("feature = %v", feature)
	}

	if got := blockPayload(t, blocks[2])["$type"]; got != "pub.leaflet.blocks.blockquote" {
		t.Errorf("quote $type = %v", got)
	}

	code := blockPayload(t, blocks[3])
	if code["$type"] != "pub.leaflet.blocks.code" || code["language"] != "go" {
		t.Errorf("code = %v", code)
	}

	if got := blockPayload(t, blocks[4])["$type"]; got != "pub.leaflet.blocks.horizontalRule" {
		t.Errorf("rule $type = %v", got)
	}

	image := blockPayload(t, blocks[5])
	if image["$type"] != "pub.leaflet.blocks.image" || image["alt"] != "a cat" {
		t.Errorf("image = %v", image)
	}
	blob := image["image"].(map[string]any)
	if blob["mimeType"] != "image/jpeg" || blob["ref"].(map[string]any)["$link"] != "bafyimg" {
		t.Errorf("blob = %v", blob)
	}
}

func TestBuildDocumentRecordListBlocks(t *testing.T) {
	doc := &converter.Document{Blocks: []converter.Block{
		{Kind: converter.KindList, Ordered: true, Items: []converter.RichText{
			{Text: "first"},
			{Text: "see docs", Facets: []converter.Facet{
				{ByteStart: 4, ByteEnd: 8, Kind: converter.FacetLink, URI: "https://docs.example"},
			}},
		}},
		{Kind: converter.KindList, Items: []converter.RichText{{Text: "loose"}}},
	}}

	record, err := BuildDocumentRecord(testMeta(), doc)
	if err != nil {
		t.Fatal(err)
	}

	blocks := recordBlocks(t, record)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want one per item", len(blocks))
	}

	first := blockPayload(t, blocks[0])
	if first["plaintext"] != "1. first" {
		t.Errorf("ordered item = %q", first["plaintext"])
	}

	second := blockPayload(t, blocks[1])
	if second["plaintext"] != "2. see docs" {
		t.Errorf("ordered item = %q", second["plaintext"])
	}
	// Facet offsets shift by the rendered prefix, so the span still
	// covers "docs" in the prefixed plaintext.
	index := second["facets"].([]map[string]any)[0]["index"].(map[string]any)
	if index["byteStart"] != 4+len("2. ") || index["byteEnd"] != 8+len("2. ") {
		t.Errorf("facet index = %v", index)
	}

	bullet := blockPayload(t, blocks[2])
	if bullet["plaintext"] != "• loose" {
		t.Errorf("unordered item = %q", bullet["plaintext"])
	}
}

func TestBuildDocumentRecordEmptyPost(t *testing.T) {
	record, err := BuildDocumentRecord(testMeta(), &converter.Document{})
	if err != nil {
		t.Fatal(err)
	}
	blocks := recordBlocks(t, record)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks", len(blocks))
	}
	if got := blockPayload(t, blocks[0])["plaintext"]; got != "(Empty post)" {
		t.Errorf("placeholder = %q", got)
	}
}

func TestBuildDocumentRecordRejectsUnresolvedImages(t *testing.T) {
	doc := &converter.Document{Blocks: []converter.Block{
		{Kind: converter.KindImage, ImageURL: "https://media.example/1.jpg"},
	}}
	if _, err := BuildDocumentRecord(testMeta(), doc); err == nil {
		t.Fatal("expected an error for an image block without a blob")
	}
}
