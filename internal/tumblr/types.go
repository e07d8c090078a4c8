package tumblr

import (
	"encoding/json"
	"time"
)

// Post is one unit fetched from the source blog, normalized across the
// v1 API's post types. Body is raw HTML; MediaURLs lists embedded image
// URLs in document order.
type Post struct {
	ID          string
	URL         string
	Title       string
	Type        string
	PublishedAt time.Time
	Body        string
	MediaURLs   []string
	Tags        []string
}

// apiResponse mirrors the payload inside the v1 JSONP wrapper. The API
// uses hyphenated keys and represents most scalars as strings.
type apiResponse struct {
	PostsStart int       `json:"posts-start"`
	PostsTotal int       `json:"posts-total"`
	Posts      []apiPost `json:"posts"`
}

type apiPost struct {
	ID            json.Number `json:"id"`
	URL           string      `json:"url"`
	URLWithSlug   string      `json:"url-with-slug"`
	Slug          string      `json:"slug"`
	Type          string      `json:"type"`
	UnixTimestamp int64       `json:"unix-timestamp"`
	DateGMT       string      `json:"date-gmt"`
	Tags          []string    `json:"tags"`

	RegularTitle string `json:"regular-title"`
	RegularBody  string `json:"regular-body"`

	QuoteText   string `json:"quote-text"`
	QuoteSource string `json:"quote-source"`

	LinkText        string `json:"link-text"`
	LinkURL         string `json:"link-url"`
	LinkDescription string `json:"link-description"`

	PhotoCaption string     `json:"photo-caption"`
	PhotoURL1280 string     `json:"photo-url-1280"`
	PhotoURL500  string     `json:"photo-url-500"`
	Photos       []apiPhoto `json:"photos"`

	VideoCaption string `json:"video-caption"`
	VideoPlayer  string `json:"video-player"`

	AudioCaption string `json:"audio-caption"`
	AudioPlayer  string `json:"audio-player"`

	ConversationTitle string            `json:"conversation-title"`
	Conversation      []apiConversation `json:"conversation"`
}

type apiPhoto struct {
	PhotoURL1280 string `json:"photo-url-1280"`
	PhotoURL500  string `json:"photo-url-500"`
}

type apiConversation struct {
	Label  string `json:"label"`
	Phrase string `json:"phrase"`
}
