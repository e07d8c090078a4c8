package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/relay"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// Reader fetches posts from an RSS 2.0 feed. It satisfies the same
// paged interface as the Tumblr reader but a feed is a single page:
// any non-zero offset yields an empty page.
type Reader struct {
	fetcher relay.Fetcher
	feedURL string
}

func NewReader(fetcher relay.Fetcher, feedURL string) *Reader {
	return &Reader{fetcher: fetcher, feedURL: feedURL}
}

type feed struct {
	Channel struct {
		Title string `xml:"title"`
		Items []item `xml:"item"`
	} `xml:"channel"`
}

type item struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Description string   `xml:"description"`
	Categories  []string `xml:"category"`
}

func (r *Reader) FetchPage(ctx context.Context, offset int) (*tumblr.Page, error) {
	body, _, err := r.fetcher.Fetch(ctx, r.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", r.feedURL, err)
	}

	var doc feed
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", r.feedURL, err)
	}

	total := len(doc.Channel.Items)
	page := &tumblr.Page{Offset: offset, Total: total}
	if offset > 0 {
		return page, nil
	}

	for _, it := range doc.Channel.Items {
		id := it.GUID
		if id == "" {
			id = it.Link
		}
		page.Posts = append(page.Posts, tumblr.Post{
			ID:          id,
			URL:         it.Link,
			Title:       it.Title,
			Type:        "rss",
			PublishedAt: parsePubDate(it.PubDate),
			Body:        it.Description,
			MediaURLs:   converter.ExtractImageURLs(it.Description),
			Tags:        it.Categories,
		})
	}
	return page, nil
}

func parsePubDate(value string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
