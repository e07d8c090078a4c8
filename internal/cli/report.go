package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/migration"
)

// ReportCommand prints the run report for a blog from persisted state.
type ReportCommand struct {
	Blog   string
	DBPath string
}

func NewReportCommand() *ReportCommand {
	return &ReportCommand{}
}

func (cmd *ReportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.Blog, "blog", cfg.Source.Blog, "Source blog the run belongs to")
	fs.StringVar(&cmd.DBPath, "db", cfg.Database.Path, "Path to the migration state database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s report [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Print the migration report for a blog.\n\n")
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

func (cmd *ReportCommand) Run() error {
	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return printReport(db, cmd.Blog)
}

func printReport(db *database.Database, blog string) error {
	report, err := migration.BuildReport(db, blog)
	if err != nil {
		return err
	}

	fmt.Printf("\nMigration report for %s\n", report.Blog)
	fmt.Printf("  Status:    %s\n", report.Status)
	if report.Error != "" {
		fmt.Printf("  Stopped:   %s\n", report.Error)
	}
	fmt.Printf("  Total:     %d\n", report.TotalPosts)
	fmt.Printf("  Succeeded: %d\n", report.Succeeded)
	fmt.Printf("  Failed:    %d\n", report.Failed)
	fmt.Printf("  Pending:   %d\n", report.Pending)

	if len(report.Failures) > 0 {
		fmt.Printf("\nFailed posts:\n")
		for _, f := range report.Failures {
			fmt.Printf("  - %s (%s)\n    %s\n", f.SourceURL, f.SourceID, f.Reason)
		}
	}

	if len(report.Degraded) > 0 {
		fmt.Printf("\nPosts published with degraded images:\n")
		for _, d := range report.Degraded {
			fmt.Printf("  - %s\n", d.SourceURL)
			for _, note := range d.Notes {
				fmt.Printf("      %s\n", note)
			}
		}
	}

	return nil
}
