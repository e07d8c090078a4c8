package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/leaflet-importer/internal/archive"
	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/rss"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// ImportCommand fetches and converts a blog into a local markdown
// archive without publishing anything. The archive can be reviewed,
// edited, and published later with the publish command.
type ImportCommand struct {
	Blog    string
	FeedURL string
	OutDir  string
}

func NewImportCommand() *ImportCommand {
	return &ImportCommand{}
}

func (cmd *ImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.Blog, "blog", cfg.Source.Blog, "Source blog hostname (e.g. example.tumblr.com)")
	fs.StringVar(&cmd.FeedURL, "feed", cfg.Source.FeedURL, "RSS feed URL to import instead of the Tumblr API")
	fs.StringVar(&cmd.OutDir, "out", cfg.Archive.Dir, "Output directory for the markdown archive")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fetch a blog and write it as a local markdown archive:\n")
		fmt.Fprintf(os.Stderr, "one directory per post with post.md and metadata.json,\n")
		fmt.Fprintf(os.Stderr, "plus a blog-level index.json.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Blog == "" && cmd.FeedURL == "" {
		return fmt.Errorf("either -blog or -feed is required (or set BLOG / FEED_URL)")
	}
	return nil
}

func (cmd *ImportCommand) Run() error {
	cfg := config.NewConfig()
	fetcher := NewFetcher(cfg)

	var reader migration.SourceReader
	blog := cmd.Blog
	if cmd.FeedURL != "" {
		reader = rss.NewReader(fetcher, cmd.FeedURL)
		if blog == "" {
			blog = cmd.FeedURL
		}
	} else {
		reader = tumblr.NewReader(fetcher, cmd.Blog)
	}

	writer, err := archive.NewWriter(cmd.OutDir, blog)
	if err != nil {
		return err
	}

	ctx := context.Background()
	offset := 0
	written := 0
	for {
		page, err := reader.FetchPage(ctx, offset)
		if err != nil {
			return fmt.Errorf("failed to fetch posts at offset %d: %w", offset, err)
		}
		for i := range page.Posts {
			if err := writer.Write(&page.Posts[i]); err != nil {
				return err
			}
			written++
		}
		offset += len(page.Posts)
		if len(page.Posts) == 0 || offset >= page.Total {
			break
		}
		fmt.Printf("Fetched %d/%d posts...\n", offset, page.Total)
	}

	if err := writer.Finish(); err != nil {
		return fmt.Errorf("failed to write archive index: %w", err)
	}

	fmt.Printf("Archived %d posts to %s\n", written, cmd.OutDir)
	return nil
}
