package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mrlokans/leaflet-importer/internal/atproto"
	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/entities"
)

const auditPageSize = 100

// AuditCommand compares the local ledger against the destination
// repository: every succeeded post must have its record present, and
// records the ledger never claimed are reported as orphans (left over
// from older tooling or deleted posts). With -prune, orphans are
// deleted from the repository.
type AuditCommand struct {
	Blog   string
	DBPath string
	Prune  bool
}

func NewAuditCommand() *AuditCommand {
	return &AuditCommand{}
}

func (cmd *AuditCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.Blog, "blog", cfg.Source.Blog, "Source blog the run belongs to")
	fs.StringVar(&cmd.DBPath, "db", cfg.Database.Path, "Path to the migration state database")
	fs.BoolVar(&cmd.Prune, "prune", false, "Delete destination records the ledger does not claim")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s audit [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Check the destination repository against the migration ledger.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Blog == "" {
		return fmt.Errorf("-blog is required (or set BLOG)")
	}
	return nil
}

func (cmd *AuditCommand) Run() error {
	cfg := config.NewConfig()

	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Blog)
	if err != nil {
		return fmt.Errorf("no migration run found for %s: %w", cmd.Blog, err)
	}
	succeeded, err := db.GetPostsByStatus(run.ID, entities.PostStatusSucceeded)
	if err != nil {
		return err
	}

	claimed := make(map[string]string, len(succeeded)) // rkey -> source URL
	for _, post := range succeeded {
		if post.RecordKey != "" {
			claimed[post.RecordKey] = post.SourceURL
		}
	}

	ctx := context.Background()
	pub, err := Authenticate(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (%s)\n", pub.Session.Handle, pub.Session.DID)

	var orphans []string
	seen := make(map[string]bool, len(claimed))
	cursor := ""
	for {
		records, next, err := pub.Client.ListRecords(ctx, pub.Session, atproto.DocumentCollection, cursor, auditPageSize)
		if err != nil {
			return fmt.Errorf("failed to list destination records: %w", err)
		}
		for _, record := range records {
			rkey := record.URI[strings.LastIndex(record.URI, "/")+1:]
			if _, ok := claimed[rkey]; ok {
				seen[rkey] = true
			} else {
				orphans = append(orphans, rkey)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	// A key absent from the listing may just be index lag; confirm with
	// a direct lookup before reporting it missing.
	var missing []string
	for rkey, sourceURL := range claimed {
		if seen[rkey] {
			continue
		}
		record, err := pub.Client.GetRecord(ctx, pub.Session, atproto.DocumentCollection, rkey)
		if err != nil {
			return fmt.Errorf("failed to check record %s: %w", rkey, err)
		}
		if record == nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", rkey, sourceURL))
		}
	}

	fmt.Printf("\nAudit for %s\n", cmd.Blog)
	fmt.Printf("  Ledger records:      %d\n", len(claimed))
	fmt.Printf("  Missing at PDS:      %d\n", len(missing))
	fmt.Printf("  Orphans at PDS:      %d\n", len(orphans))

	for _, m := range missing {
		fmt.Printf("  missing: %s\n", m)
	}

	if len(missing) > 0 {
		fmt.Printf("\nRe-publish missing records with the reindex command.\n")
	}

	if cmd.Prune && len(orphans) > 0 {
		for _, rkey := range orphans {
			if err := pub.Client.DeleteRecord(ctx, pub.Session, atproto.DocumentCollection, rkey); err != nil {
				return fmt.Errorf("failed to delete orphan %s: %w", rkey, err)
			}
			fmt.Printf("  deleted orphan %s\n", rkey)
		}
	} else {
		for _, rkey := range orphans {
			fmt.Printf("  orphan: %s\n", rkey)
		}
	}

	return nil
}
