package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/leaflet-importer/internal/archive"
	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/migration"
)

// PublishCommand publishes a previously imported markdown archive.
// The same state ledger and record-key derivation apply, so publishing
// an archive and migrating live produce identical records.
type PublishCommand struct {
	ArchiveDir  string
	Publication string
	DBPath      string
}

func NewPublishCommand() *PublishCommand {
	return &PublishCommand{}
}

func (cmd *PublishCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.ArchiveDir, "archive", cfg.Archive.Dir, "Path to the markdown archive to publish")
	fs.StringVar(&cmd.Publication, "publication", cfg.Leaflet.Publication, "at:// URI of the destination publication")
	fs.StringVar(&cmd.DBPath, "db", cfg.Database.Path, "Path to the migration state database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s publish [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publish a markdown archive created by the import command.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Publication == "" {
		return fmt.Errorf("-publication is required (or set PUBLICATION_URI)")
	}
	return nil
}

func (cmd *PublishCommand) Run() error {
	cfg := config.NewConfig()

	reader, err := archive.NewReader(cmd.ArchiveDir)
	if err != nil {
		return err
	}

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

	orchestrator := migration.NewOrchestrator(
		db,
		reader,
		NewUploader(cfg, fetcher, pub),
		pub.Client,
		pub.Session,
		migration.Config{
			Blog:        reader.Blog(),
			Publication: cmd.Publication,
			AuthorDID:   pub.Session.DID,
			Policy:      RetryPolicyFromConfig(cfg),
			Convert: func(body string) (*converter.Document, error) {
				return converter.ConvertMarkdown(body), nil
			},
		},
	)

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
		fmt.Println("Publish complete.")
	case errors.Is(err, migration.ErrRunPaused):
		fmt.Printf("Publish paused: %v\n", err)
		fmt.Println("Re-run the command to resume.")
		return nil
	default:
		return err
	}

	return printReport(db, reader.Blog())
}
