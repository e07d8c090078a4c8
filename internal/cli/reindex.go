package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// ReindexCommand re-publishes every already-migrated post of a blog.
// The destination sometimes misses newly written records in its index;
// overwriting them in place nudges it. Doubles the writes, so this is
// explicit and never part of a normal migration.
type ReindexCommand struct {
	Blog        string
	Publication string
	DBPath      string
}

func NewReindexCommand() *ReindexCommand {
	return &ReindexCommand{}
}

func (cmd *ReindexCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.Blog, "blog", cfg.Source.Blog, "Source blog hostname")
	fs.StringVar(&cmd.Publication, "publication", cfg.Leaflet.Publication, "at:// URI of the destination publication")
	fs.StringVar(&cmd.DBPath, "db", cfg.Database.Path, "Path to the migration state database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reindex [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Re-publish already-migrated posts to refresh the destination index.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Blog == "" {
		return fmt.Errorf("-blog is required (or set BLOG)")
	}
	if cmd.Publication == "" {
		return fmt.Errorf("-publication is required (or set PUBLICATION_URI)")
	}
	return nil
}

func (cmd *ReindexCommand) Run() error {
	cfg := config.NewConfig()

	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	pub, err := Authenticate(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (%s)\n", pub.Session.Handle, pub.Session.DID)

	fetcher := NewFetcher(cfg)
	orchestrator := migration.NewOrchestrator(
		db,
		tumblr.NewReader(fetcher, cmd.Blog),
		NewUploader(cfg, fetcher, pub),
		pub.Client,
		pub.Session,
		migration.Config{
			Blog:        cmd.Blog,
			Publication: cmd.Publication,
			AuthorDID:   pub.Session.DID,
			Policy:      RetryPolicyFromConfig(cfg),
		},
	)

	if err := orchestrator.Reindex(ctx); err != nil {
		return err
	}

	return printReport(db, cmd.Blog)
}
