package archive

import (
	"context"
	"fmt"

	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// Reader serves a previously written archive through the same paged
// interface as the live readers. The whole archive is one page; post
// bodies are the stored markdown.
type Reader struct {
	index *Index
	posts []Post
}

func NewReader(root string) (*Reader, error) {
	index, posts, err := Load(root)
	if err != nil {
		return nil, fmt.Errorf("load archive at %s: %w", root, err)
	}
	return &Reader{index: index, posts: posts}, nil
}

// Blog returns the source blog the archive was fetched from.
func (r *Reader) Blog() string {
	return r.index.Blog
}

func (r *Reader) FetchPage(_ context.Context, offset int) (*tumblr.Page, error) {
	page := &tumblr.Page{Offset: offset, Total: len(r.posts)}
	if offset > 0 {
		return page, nil
	}
	for _, p := range r.posts {
		page.Posts = append(page.Posts, tumblr.Post{
			ID:          p.Meta.SourceID,
			URL:         p.Meta.SourceURL,
			Title:       p.Meta.Title,
			Type:        p.Meta.Type,
			PublishedAt: p.Meta.PublishedAt,
			Body:        p.Markdown,
			MediaURLs:   p.Meta.MediaURLs,
			Tags:        p.Meta.Tags,
		})
	}
	return page, nil
}
