// Package converter transforms a source post's raw HTML into the
// destination's typed block sequence. Conversion is a pure function of
// the input markup: no network access, no side effects, and the same
// input always produces an identical block sequence.
//
// The conversion runs in two stages, mirroring the archive format the
// importer writes to disk: HTML is first normalized to markdown, then
// the markdown is parsed into blocks via a goldmark AST walk.
package converter

import "fmt"

// BlockKind is the closed set of destination block variants. Markup that
// maps to none of these degrades to KindParagraph rather than being
// dropped.
type BlockKind string

const (
	KindHeading   BlockKind = "heading"
	KindParagraph BlockKind = "paragraph"
	KindCode      BlockKind = "code"
	KindQuote     BlockKind = "quote"
	KindList      BlockKind = "list"
	KindRule      BlockKind = "rule"
	KindImage     BlockKind = "image"
)

// FacetKind tags an inline formatting span.
type FacetKind string

const (
	FacetLink   FacetKind = "link"
	FacetBold   FacetKind = "bold"
	FacetItalic FacetKind = "italic"
)

// Facet is an inline formatting span over a block's plaintext.
// Offsets are UTF-8 byte positions, the destination protocol's
// rich-text convention.
type Facet struct {
	ByteStart int
	ByteEnd   int
	Kind      FacetKind
	URI       string // FacetLink only
}

// RichText is plaintext plus its inline facets. Used for list items,
// which carry their own formatting independent of the parent block.
type RichText struct {
	Text   string
	Facets []Facet
}

// BlobRef is the opaque handle returned after uploading binary media.
// It replaces the external URL on an image block before publish.
type BlobRef struct {
	CID      string
	MimeType string
	Size     int64
}

// Block is one structural unit of the converted document.
type Block struct {
	Kind BlockKind

	// Heading, paragraph, quote, code.
	Text   string
	Facets []Facet

	Level    int    // KindHeading: 1-6
	Language string // KindCode, may be empty

	Ordered bool       // KindList
	Items   []RichText // KindList, in source order

	// KindImage. ImageURL is the original external URL; Blob is attached
	// by the media uploader and must be non-nil before publish.
	ImageURL string
	ImageAlt string
	Blob     *BlobRef
}

// Document is the converted, destination-schema representation of one
// post. Blocks preserve source reading order. MediaURLs lists the image
// URLs referenced by image blocks, in block order.
type Document struct {
	Blocks    []Block
	MediaURLs []string
}

// UnresolvedImages returns the indexes of image blocks that still
// reference an external URL instead of an uploaded blob.
func (d *Document) UnresolvedImages() []int {
	var idx []int
	for i, b := range d.Blocks {
		if b.Kind == KindImage && b.Blob == nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// DegradeImage rewrites the image block at index i into a link-fallback
// paragraph pointing at the original URL. Used when an image cannot be
// fetched or uploaded; the post still publishes without it.
func (d *Document) DegradeImage(i int) error {
	if i < 0 || i >= len(d.Blocks) || d.Blocks[i].Kind != KindImage {
		return fmt.Errorf("block %d is not an image block", i)
	}
	url := d.Blocks[i].ImageURL
	label := d.Blocks[i].ImageAlt
	if label == "" {
		label = "image"
	}
	d.Blocks[i] = Block{
		Kind: KindParagraph,
		Text: label,
		Facets: []Facet{{
			ByteStart: 0,
			ByteEnd:   len(label),
			Kind:      FacetLink,
			URI:       url,
		}},
	}
	return nil
}
