package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

const (
	postFilename     = "post.md"
	metadataFilename = "metadata.json"
	indexFilename    = "index.json"
)

// Metadata is the sidecar written next to each archived post's markdown.
type Metadata struct {
	SourceID    string    `json:"source_id"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	PublishedAt time.Time `json:"published_at"`
	Tags        []string  `json:"tags,omitempty"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
}

// IndexEntry points at one archived post directory.
type IndexEntry struct {
	Dir         string    `json:"dir"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// Index is the blog-level listing written at the archive root.
type Index struct {
	Blog      string       `json:"blog"`
	FetchedAt time.Time    `json:"fetched_at"`
	Posts     []IndexEntry `json:"posts"`
}

// Post is one archived post loaded back from disk.
type Post struct {
	Meta     Metadata
	Markdown string
}

// Writer persists fetched posts as a local markdown archive: one
// directory per post named by date and slug, plus a blog-level index.
type Writer struct {
	root string
	blog string

	entries []IndexEntry
	seen    map[string]int
}

func NewWriter(root, blog string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Writer{root: root, blog: blog, seen: make(map[string]int)}, nil
}

// Write converts the post body to markdown and stores it with its
// metadata sidecar. The directory name is deterministic per post so
// re-running an import overwrites in place.
func (w *Writer) Write(post *tumblr.Post) error {
	markdown, err := converter.HTMLToMarkdown(post.Body)
	if err != nil {
		return fmt.Errorf("failed to convert post %s: %w", post.ID, err)
	}

	dir := w.dirName(post)
	path := filepath.Join(w.root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(path, postFilename), []byte(markdown+"\n"), 0o644); err != nil {
		return err
	}

	meta := Metadata{
		SourceID:    post.ID,
		SourceURL:   post.URL,
		Title:       post.Title,
		Type:        post.Type,
		PublishedAt: post.PublishedAt,
		Tags:        post.Tags,
		MediaURLs:   post.MediaURLs,
	}
	if err := writeJSON(filepath.Join(path, metadataFilename), meta); err != nil {
		return err
	}

	w.entries = append(w.entries, IndexEntry{
		Dir:         dir,
		SourceID:    post.ID,
		Title:       post.Title,
		PublishedAt: post.PublishedAt,
	})
	return nil
}

// Finish writes the blog-level index listing every archived post in
// publication order.
func (w *Writer) Finish() error {
	sort.Slice(w.entries, func(i, j int) bool {
		return w.entries[i].PublishedAt.Before(w.entries[j].PublishedAt)
	})
	index := Index{
		Blog:      w.blog,
		FetchedAt: time.Now(),
		Posts:     w.entries,
	}
	return writeJSON(filepath.Join(w.root, indexFilename), index)
}

func (w *Writer) dirName(post *tumblr.Post) string {
	date := post.PublishedAt.Format("2006-01-02")
	slug := Slugify(post.Title)
	if slug == "" {
		slug = post.ID
	}
	dir := date + "-" + slug
	// Distinct posts can share a date and title; suffix repeats.
	w.seen[dir]++
	if n := w.seen[dir]; n > 1 {
		dir = fmt.Sprintf("%s-%d", dir, n)
	}
	return dir
}

// Load reads an archive back from disk in index order.
func Load(root string) (*Index, []Post, error) {
	var index Index
	if err := readJSON(filepath.Join(root, indexFilename), &index); err != nil {
		return nil, nil, fmt.Errorf("failed to read archive index: %w", err)
	}

	posts := make([]Post, 0, len(index.Posts))
	for _, entry := range index.Posts {
		dir := filepath.Join(root, entry.Dir)

		var meta Metadata
		if err := readJSON(filepath.Join(dir, metadataFilename), &meta); err != nil {
			return nil, nil, fmt.Errorf("failed to read metadata for %s: %w", entry.Dir, err)
		}

		body, err := os.ReadFile(filepath.Join(dir, postFilename))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read markdown for %s: %w", entry.Dir, err)
		}

		posts = append(posts, Post{Meta: meta, Markdown: string(body)})
	}
	return &index, posts, nil
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a title and reduces it to hyphen-separated
// alphanumeric runs, capped at 60 characters.
func Slugify(title string) string {
	slug := slugUnsafe.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
