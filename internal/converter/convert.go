package converter

import (
	"fmt"
	"strings"
)

// MalformedSourceError indicates a post body that could not be parsed at
// all. It fails the single post, never the batch.
type MalformedSourceError struct {
	Err error
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("malformed source markup: %v", e.Err)
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}

// Convert transforms a post's raw HTML body into the destination block
// sequence. Pure and deterministic: identical input yields an identical
// Document on every call.
func Convert(rawHTML string) (*Document, error) {
	markdown, err := HTMLToMarkdown(rawHTML)
	if err != nil {
		return nil, &MalformedSourceError{Err: err}
	}
	return ConvertMarkdown(markdown), nil
}

// ConvertMarkdown builds a Document from already-normalized markdown.
// Used directly when publishing from an on-disk archive.
func ConvertMarkdown(markdown string) *Document {
	doc := &Document{Blocks: MarkdownToBlocks([]byte(markdown))}
	for _, block := range doc.Blocks {
		if block.Kind == KindImage {
			doc.MediaURLs = append(doc.MediaURLs, block.ImageURL)
		}
	}
	return doc
}

// DropLeadingTitle removes the document's first block when it is a
// heading whose text matches the post title. The title is carried on the
// destination record itself; repeating it as the first block doubles it
// in the rendered page.
func (d *Document) DropLeadingTitle(title string) {
	if len(d.Blocks) == 0 || d.Blocks[0].Kind != KindHeading {
		return
	}
	if strings.TrimSpace(d.Blocks[0].Text) == strings.TrimSpace(title) {
		d.Blocks = d.Blocks[1:]
	}
}
