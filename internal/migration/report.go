package migration

import (
	"fmt"
	"strings"

	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/entities"
)

// PostFailure describes one post that ended in the failed state.
type PostFailure struct {
	SourceID  string `json:"source_id"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title,omitempty"`
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
}

// DegradedPost lists the image fallbacks applied to a post that
// otherwise published successfully.
type DegradedPost struct {
	SourceURL string   `json:"source_url"`
	RecordURI string   `json:"record_uri"`
	Notes     []string `json:"notes"`
}

// RunReport is the operator-facing summary of a migration run.
type RunReport struct {
	Blog       string             `json:"blog"`
	Status     entities.RunStatus `json:"status"`
	Error      string             `json:"error,omitempty"`
	TotalPosts int                `json:"total_posts"`
	Succeeded  int64              `json:"succeeded"`
	Failed     int64              `json:"failed"`
	Pending    int64              `json:"pending"`
	Failures   []PostFailure      `json:"failures,omitempty"`
	Degraded   []DegradedPost     `json:"degraded,omitempty"`
}

// BuildReport assembles the report for a blog's run from the ledger.
func BuildReport(db *database.Database, blog string) (*RunReport, error) {
	run, err := db.GetRun(blog)
	if err != nil {
		return nil, fmt.Errorf("no migration run found for %s: %w", blog, err)
	}

	counts, err := db.CountByStatus(run.ID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Blog:       run.Blog,
		Status:     run.Status,
		Error:      run.Error,
		TotalPosts: run.TotalPosts,
		Succeeded:  counts[entities.PostStatusSucceeded],
		Failed:     counts[entities.PostStatusFailed],
	}
	for status, n := range counts {
		if !status.Terminal() {
			report.Pending += n
		}
	}

	failed, err := db.GetPostsByStatus(run.ID, entities.PostStatusFailed)
	if err != nil {
		return nil, err
	}
	for _, post := range failed {
		report.Failures = append(report.Failures, PostFailure{
			SourceID:  post.SourceID,
			SourceURL: post.SourceURL,
			Title:     post.Title,
			Reason:    post.Reason,
			Attempts:  post.Attempts,
		})
	}

	succeeded, err := db.GetPostsByStatus(run.ID, entities.PostStatusSucceeded)
	if err != nil {
		return nil, err
	}
	for _, post := range succeeded {
		if post.DegradedImages == "" {
			continue
		}
		report.Degraded = append(report.Degraded, DegradedPost{
			SourceURL: post.SourceURL,
			RecordURI: post.RecordURI,
			Notes:     strings.Split(post.DegradedImages, "\n"),
		})
	}

	return report, nil
}
