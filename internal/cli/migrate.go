package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/rss"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// MigrateCommand runs the full migration pipeline from the terminal:
// fetch, convert, upload media, publish. Interrupting with Ctrl-C
// pauses between posts; re-running resumes.
type MigrateCommand struct {
	Blog        string
	FeedURL     string
	Publication string
	DBPath      string
}

func NewMigrateCommand() *MigrateCommand {
	return &MigrateCommand{}
}

func (cmd *MigrateCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.Blog, "blog", cfg.Source.Blog, "Source blog hostname (e.g. example.tumblr.com)")
	fs.StringVar(&cmd.FeedURL, "feed", cfg.Source.FeedURL, "RSS feed URL to migrate instead of the Tumblr API")
	fs.StringVar(&cmd.Publication, "publication", cfg.Leaflet.Publication, "at:// URI of the destination publication")
	fs.StringVar(&cmd.DBPath, "db", cfg.Database.Path, "Path to the migration state database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s migrate [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Migrate a blog to a Leaflet publication.\n\n")
		fmt.Fprintf(os.Stderr, "Credentials come from LEAFLET_HANDLE and LEAFLET_PASSWORD.\n")
		fmt.Fprintf(os.Stderr, "Progress is persisted; interrupt with Ctrl-C and re-run to resume.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s migrate -blog example.tumblr.com -publication at://did:plc:abc/pub.leaflet.publication/xyz\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Blog == "" && cmd.FeedURL == "" {
		return fmt.Errorf("either -blog or -feed is required (or set BLOG / FEED_URL)")
	}
	if cmd.Publication == "" {
		return fmt.Errorf("-publication is required (or set PUBLICATION_URI)")
	}
	return nil
}

func (cmd *MigrateCommand) Run() error {
	cfg := config.NewConfig()

	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := Authenticate(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (%s)\n", pub.Session.Handle, pub.Session.DID)

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

	orchestrator := migration.NewOrchestrator(
		db,
		reader,
		NewUploader(cfg, fetcher, pub),
		pub.Client,
		pub.Session,
		migration.Config{
			Blog:        blog,
			Publication: cmd.Publication,
			AuthorDID:   pub.Session.DID,
			Policy:      RetryPolicyFromConfig(cfg),
		},
	)

	// Ctrl-C pauses between posts; a second Ctrl-C cancels outright.
	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		fmt.Println("\nPausing after the current post (interrupt again to force stop)...")
		orchestrator.RequestPause()
		<-interrupts
		cancel()
	}()

	err = orchestrator.Run(ctx)
	switch {
	case err == nil:
		fmt.Println("Migration complete.")
	case errors.Is(err, migration.ErrRunPaused):
		fmt.Printf("Migration paused: %v\n", err)
		fmt.Println("Re-run the command to resume.")
		return nil
	default:
		return err
	}

	return printReport(db, blog)
}
