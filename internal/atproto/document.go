package atproto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/converter"
)

// DocumentMeta is the record-level metadata attached to a converted
// document at publish time.
type DocumentMeta struct {
	DID         string
	Title       string
	Description string
	Publication string // at:// URI of the destination publication
	PublishedAt time.Time
}

// BuildDocumentRecord assembles the destination document record from a
// converted block sequence. Returns an error if any image block still
// references an external URL: publishing unresolved placeholders would
// embed links the destination cannot render.
func BuildDocumentRecord(meta DocumentMeta, doc *converter.Document) (map[string]any, error) {
	if unresolved := doc.UnresolvedImages(); len(unresolved) > 0 {
		return nil, fmt.Errorf("document has %d image blocks without uploaded blobs", len(unresolved))
	}

	blocks := make([]map[string]any, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		blocks = append(blocks, wireBlocks(block)...)
	}
	if len(blocks) == 0 {
		blocks = append(blocks, wrapBlock(map[string]any{
			"$type":     "pub.leaflet.blocks.text",
			"plaintext": "(Empty post)",
			"facets":    []any{},
		}))
	}

	publishedAt := meta.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	return map[string]any{
		"$type":       DocumentCollection,
		"author":      meta.DID,
		"title":       meta.Title,
		"description": meta.Description,
		"publication": meta.Publication,
		"publishedAt": publishedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		"pages": []map[string]any{
			{
				"$type":  "pub.leaflet.pages.linearDocument",
				"id":     "page-1",
				"blocks": blocks,
			},
		},
	}, nil
}

// wireBlocks converts one block into its wire representation. Most kinds
// map one-to-one; lists expand into one text block per item, which is
// how the destination renders bullets without a native list lexicon,
// preserving item order.
func wireBlocks(block converter.Block) []map[string]any {
	switch block.Kind {
	case converter.KindHeading:
		return []map[string]any{wrapBlock(map[string]any{
			"$type":     "pub.leaflet.blocks.header",
			"plaintext": block.Text,
			"level":     block.Level,
			"facets":    wireFacets(block.Facets, 0),
		})}

	case converter.KindParagraph:
		return []map[string]any{wrapBlock(map[string]any{
			"$type":     "pub.leaflet.blocks.text",
			"plaintext": block.Text,
			"facets":    wireFacets(block.Facets, 0),
		})}

	case converter.KindQuote:
		return []map[string]any{wrapBlock(map[string]any{
			"$type":     "pub.leaflet.blocks.blockquote",
			"plaintext": block.Text,
			"facets":    wireFacets(block.Facets, 0),
		})}

	case converter.KindCode:
		wire := map[string]any{
			"$type":     "pub.leaflet.blocks.code",
			"plaintext": block.Text,
		}
		if block.Language != "" {
			wire["language"] = block.Language
		}
		return []map[string]any{wrapBlock(wire)}

	case converter.KindRule:
		return []map[string]any{wrapBlock(map[string]any{
			"$type": "pub.leaflet.blocks.horizontalRule",
		})}

	case converter.KindList:
		out := make([]map[string]any, 0, len(block.Items))
		for i, item := range block.Items {
			prefix := "• "
			if block.Ordered {
				prefix = strconv.Itoa(i+1) + ". "
			}
			out = append(out, wrapBlock(map[string]any{
				"$type":     "pub.leaflet.blocks.text",
				"plaintext": prefix + item.Text,
				"facets":    wireFacets(item.Facets, len(prefix)),
			}))
		}
		return out

	case converter.KindImage:
		return []map[string]any{wrapBlock(map[string]any{
			"$type": "pub.leaflet.blocks.image",
			"image": map[string]any{
				"$type":    "blob",
				"ref":      map[string]any{"$link": block.Blob.CID},
				"mimeType": block.Blob.MimeType,
				"size":     block.Blob.Size,
			},
			"alt": block.ImageAlt,
		})}

	default:
		// Closed variant; unreachable unless a new kind is added without
		// a wire mapping. Degrade to text so content is never dropped.
		return []map[string]any{wrapBlock(map[string]any{
			"$type":     "pub.leaflet.blocks.text",
			"plaintext": block.Text,
			"facets":    []any{},
		})}
	}
}

func wrapBlock(inner map[string]any) map[string]any {
	return map[string]any{
		"$type": "pub.leaflet.pages.linearDocument#block",
		"block": inner,
	}
}

// wireFacets converts facets to the wire format, shifting byte offsets
// by shift (used when a rendering prefix is prepended to the plaintext,
// e.g. list bullets).
func wireFacets(facets []converter.Facet, shift int) []map[string]any {
	out := make([]map[string]any, 0, len(facets))
	for _, f := range facets {
		var feature map[string]any
		switch f.Kind {
		case converter.FacetLink:
			feature = map[string]any{
				"$type": "pub.leaflet.richtext.facet#link",
				"uri":   f.URI,
			}
		case converter.FacetBold:
			feature = map[string]any{"$type": "pub.leaflet.richtext.facet#bold"}
		case converter.FacetItalic:
			feature = map[string]any{"$type": "pub.leaflet.richtext.facet#italic"}
		default:
			continue
		}
		out = append(out, map[string]any{
			"index": map[string]any{
				"byteStart": f.ByteStart + shift,
				"byteEnd":   f.ByteEnd + shift,
			},
			"features": []map[string]any{feature},
		})
	}
	return out
}
