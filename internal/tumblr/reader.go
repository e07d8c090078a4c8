package tumblr

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/relay"
)

const (
	// Max page size accepted by the v1 API.
	PostsPerRequest = 50
)

var jsonpPattern = regexp.MustCompile(`(?s)^\s*var tumblr_api_read = (.+);\s*$`)

// Page is one page of the source feed. Offset is the cursor value the
// page was fetched at; Total is the blog-wide post count, which lets the
// caller know when pagination is exhausted.
type Page struct {
	Offset int
	Total  int
	Posts  []Post
}

// Reader paginates a Tumblr blog's v1 API feed through the relay
// capability. It is restartable: FetchPage takes an explicit offset so
// a resumed run picks up at its persisted cursor.
type Reader struct {
	fetcher relay.Fetcher
	blog    string
}

// NewReader creates a reader for the given blog domain
// (e.g. "blog.example.net").
func NewReader(fetcher relay.Fetcher, blog string) *Reader {
	return &Reader{fetcher: fetcher, blog: blog}
}

// Blog returns the source blog domain.
func (r *Reader) Blog() string {
	return r.blog
}

// FetchPage fetches one page of posts starting at offset. A network or
// parse failure fails only this page fetch; the orchestrator decides
// whether to retry.
func (r *Reader) FetchPage(ctx context.Context, offset int) (*Page, error) {
	target := fmt.Sprintf("https://%s/api/read/json?num=%d&start=%d", r.blog, PostsPerRequest, offset)

	body, _, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch posts %d-%d: %w", offset, offset+PostsPerRequest, err)
	}

	resp, err := parseJSONP(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed page at offset %d: %w", offset, err)
	}

	page := &Page{
		Offset: offset,
		Total:  resp.PostsTotal,
		Posts:  make([]Post, 0, len(resp.Posts)),
	}
	for _, raw := range resp.Posts {
		page.Posts = append(page.Posts, normalizePost(raw))
	}
	return page, nil
}

// parseJSONP unwraps the v1 API's `var tumblr_api_read = {...};` wrapper.
func parseJSONP(body []byte) (*apiResponse, error) {
	match := jsonpPattern.FindSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("response is not a tumblr_api_read JSONP payload")
	}
	var resp apiResponse
	if err := json.Unmarshal(match[1], &resp); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &resp, nil
}

// normalizePost flattens the per-type field variants into a single HTML
// body, mirroring how each type renders on the source platform.
func normalizePost(raw apiPost) Post {
	title, body := postContent(raw)

	if title == "" && raw.Slug != "" {
		title = titleFromSlug(raw.Slug)
	}

	url := raw.URLWithSlug
	if url == "" {
		url = raw.URL
	}

	post := Post{
		ID:          raw.ID.String(),
		URL:         url,
		Title:       title,
		Type:        raw.Type,
		PublishedAt: postTime(raw),
		Body:        body,
		Tags:        raw.Tags,
	}
	post.MediaURLs = converter.ExtractImageURLs(body)
	return post
}

func postContent(raw apiPost) (title, body string) {
	switch raw.Type {
	case "regular", "":
		return raw.RegularTitle, raw.RegularBody

	case "quote":
		body = fmt.Sprintf("<blockquote>%s</blockquote>\n<p>— %s</p>", raw.QuoteText, raw.QuoteSource)
		return "", body

	case "link":
		title = raw.LinkText
		if title == "" {
			title = raw.LinkURL
		}
		body = fmt.Sprintf("<p><a href=%q>%s</a></p>\n%s", raw.LinkURL, html.EscapeString(title), raw.LinkDescription)
		return title, body

	case "photo":
		var b strings.Builder
		if len(raw.Photos) > 0 {
			for _, photo := range raw.Photos {
				b.WriteString(fmt.Sprintf("<figure><img src=%q /></figure>\n", photoURL(photo.PhotoURL1280, photo.PhotoURL500)))
			}
		} else if u := photoURL(raw.PhotoURL1280, raw.PhotoURL500); u != "" {
			b.WriteString(fmt.Sprintf("<figure><img src=%q /></figure>\n", u))
		}
		b.WriteString(raw.PhotoCaption)
		return "", b.String()

	case "video":
		return "", raw.VideoPlayer + "\n" + raw.VideoCaption

	case "audio":
		return "", raw.AudioPlayer + "\n" + raw.AudioCaption

	case "conversation":
		var b strings.Builder
		b.WriteString("<dl>\n")
		for _, line := range raw.Conversation {
			b.WriteString(fmt.Sprintf("<dt>%s</dt><dd>%s</dd>\n",
				html.EscapeString(line.Label), html.EscapeString(line.Phrase)))
		}
		b.WriteString("</dl>")
		return raw.ConversationTitle, b.String()

	default:
		// Unknown type: fall back to the regular fields rather than
		// dropping the post.
		return raw.RegularTitle, raw.RegularBody
	}
}

func photoURL(large, small string) string {
	if large != "" {
		return large
	}
	return small
}

func postTime(raw apiPost) time.Time {
	if raw.UnixTimestamp > 0 {
		return time.Unix(raw.UnixTimestamp, 0).UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05 MST", raw.DateGMT); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func titleFromSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
