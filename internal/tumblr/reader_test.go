package tumblr

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeFetcher returns canned responses keyed by requested URL.
type fakeFetcher struct {
	responses map[string]string
	requests  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) ([]byte, string, error) {
	f.requests = append(f.requests, target)
	body, ok := f.responses[target]
	if !ok {
		return nil, "", fmt.Errorf("unexpected request: %s", target)
	}
	return []byte(body), "application/json", nil
}

func jsonp(payload string) string {
	return "var tumblr_api_read = " + payload + ";"
}

func TestFetchPage(t *testing.T) {
	payload := jsonp(`{
		"posts-start": 0,
		"posts-total": 2,
		"posts": [
			{
				"id": 101,
				"url": "https://blog.example.net/post/101",
				"url-with-slug": "https://blog.example.net/post/101/first-post",
				"slug": "first-post",
				"type": "regular",
				"unix-timestamp": 1500000000,
				"regular-title": "First Post",
				"regular-body": "<p>Hello <img src=\"https://media.example/1.jpg\"></p>",
				"tags": ["intro", "hello"]
			},
			{
				"id": "102",
				"url": "https://blog.example.net/post/102",
				"type": "quote",
				"unix-timestamp": 1500000100,
				"quote-text": "To be concise.",
				"quote-source": "Somebody"
			}
		]
	}`)

	fetcher := &fakeFetcher{responses: map[string]string{
		"https://blog.example.net/api/read/json?num=50&start=0": payload,
	}}
	reader := NewReader(fetcher, "blog.example.net")

	page, err := reader.FetchPage(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}

	if page.Total != 2 || len(page.Posts) != 2 {
		t.Fatalf("page = total %d, %d posts; want 2, 2", page.Total, len(page.Posts))
	}

	first := page.Posts[0]
	if first.ID != "101" {
		t.Errorf("ID = %q, want 101", first.ID)
	}
	if first.URL != "https://blog.example.net/post/101/first-post" {
		t.Errorf("URL = %q, want the slugged variant", first.URL)
	}
	if first.Title != "First Post" {
		t.Errorf("Title = %q", first.Title)
	}
	if !first.PublishedAt.Equal(time.Unix(1500000000, 0)) {
		t.Errorf("PublishedAt = %v", first.PublishedAt)
	}
	if len(first.MediaURLs) != 1 || first.MediaURLs[0] != "https://media.example/1.jpg" {
		t.Errorf("MediaURLs = %v", first.MediaURLs)
	}
	if len(first.Tags) != 2 {
		t.Errorf("Tags = %v", first.Tags)
	}

	quote := page.Posts[1]
	if quote.ID != "102" {
		t.Errorf("quote ID = %q", quote.ID)
	}
	if !strings.Contains(quote.Body, "<blockquote>To be concise.</blockquote>") {
		t.Errorf("quote body = %q", quote.Body)
	}
	if !strings.Contains(quote.Body, "Somebody") {
		t.Errorf("quote body missing source: %q", quote.Body)
	}
}

func TestFetchPagePassesOffset(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://blog.example.net/api/read/json?num=50&start=150": jsonp(`{"posts-total": 200, "posts": []}`),
	}}
	reader := NewReader(fetcher, "blog.example.net")

	page, err := reader.FetchPage(context.Background(), 150)
	if err != nil {
		t.Fatal(err)
	}
	if page.Offset != 150 || page.Total != 200 || len(page.Posts) != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestFetchPageRejectsNonJSONP(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://blog.example.net/api/read/json?num=50&start=0": `{"plain": "json"}`,
	}}
	reader := NewReader(fetcher, "blog.example.net")

	if _, err := reader.FetchPage(context.Background(), 0); err == nil {
		t.Fatal("expected an error for a non-JSONP response")
	}
}

func TestNormalizePostTypes(t *testing.T) {
	tests := []struct {
		name      string
		post      apiPost
		wantIn    []string
		wantTitle string
	}{
		{
			name: "photo with photos array",
			post: apiPost{
				ID:   "1",
				Type: "photo",
				Photos: []apiPhoto{
					{PhotoURL1280: "https://media.example/a-1280.jpg"},
					{PhotoURL500: "https://media.example/b-500.jpg"},
				},
				PhotoCaption: "<p>two shots</p>",
			},
			wantIn: []string{
				"https://media.example/a-1280.jpg",
				"https://media.example/b-500.jpg",
				"two shots",
			},
		},
		{
			name: "photo with single url prefers large",
			post: apiPost{
				ID:           "2",
				Type:         "photo",
				PhotoURL1280: "https://media.example/large.jpg",
				PhotoURL500:  "https://media.example/small.jpg",
			},
			wantIn: []string{"https://media.example/large.jpg"},
		},
		{
			name: "link",
			post: apiPost{
				ID:              "3",
				Type:            "link",
				LinkText:        "A site",
				LinkURL:         "https://example.com",
				LinkDescription: "<p>worth reading</p>",
			},
			wantIn:    []string{`<a href="https://example.com">A site</a>`, "worth reading"},
			wantTitle: "A site",
		},
		{
			name: "conversation",
			post: apiPost{
				ID:   "4",
				Type: "conversation",
				Conversation: []apiConversation{
					{Label: "Alice:", Phrase: "hi"},
					{Label: "Bob:", Phrase: "hello"},
				},
			},
			wantIn: []string{"<dt>Alice:</dt><dd>hi</dd>", "<dt>Bob:</dt><dd>hello</dd>"},
		},
		{
			name: "video",
			post: apiPost{
				ID:           "5",
				Type:         "video",
				VideoPlayer:  "<iframe src=\"https://video.example/embed\"></iframe>",
				VideoCaption: "<p>clip</p>",
			},
			wantIn: []string{"clip"},
		},
		{
			name: "unknown type falls back to regular fields",
			post: apiPost{
				ID:           "6",
				Type:         "answer",
				RegularTitle: "Q and A",
				RegularBody:  "<p>the answer</p>",
			},
			wantIn:    []string{"the answer"},
			wantTitle: "Q and A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := normalizePost(tt.post)
			for _, fragment := range tt.wantIn {
				if !strings.Contains(post.Body, fragment) {
					t.Errorf("body %q missing %q", post.Body, fragment)
				}
			}
			if tt.wantTitle != "" && post.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", post.Title, tt.wantTitle)
			}
		})
	}
}

func TestTitleFromSlug(t *testing.T) {
	post := normalizePost(apiPost{ID: "7", Type: "regular", Slug: "my-great-post"})
	if post.Title != "My Great Post" {
		t.Errorf("title = %q, want %q", post.Title, "My Great Post")
	}
}

func TestPostTimeFallsBackToDateGMT(t *testing.T) {
	post := normalizePost(apiPost{ID: "8", Type: "regular", DateGMT: "2016-03-01 18:30:00 GMT"})
	want := time.Date(2016, 3, 1, 18, 30, 0, 0, time.UTC)
	if !post.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", post.PublishedAt, want)
	}
}
