package migration

import (
	"context"
	"fmt"
	"log"

	"github.com/mrlokans/leaflet-importer/internal/entities"
)

// Reindex re-publishes every already-succeeded post of the blog's run.
// The record keys are already persisted, so each pass overwrites the
// same records in place. Useful after converter fixes: re-running the
// pipeline updates content without creating duplicates.
func (o *Orchestrator) Reindex(ctx context.Context) error {
	registerActive(o.blog, o)
	defer unregisterActive(o.blog)

	run, err := o.db.GetRun(o.blog)
	if err != nil {
		return fmt.Errorf("no migration run found for %s: %w", o.blog, err)
	}

	posts, err := o.db.GetPostsByStatus(run.ID, entities.PostStatusSucceeded)
	if err != nil {
		return err
	}
	log.Printf("Reindexing %d published posts for %s", len(posts), o.blog)

	for i := range posts {
		if err := o.checkpoint(ctx, run); err != nil {
			return err
		}
		post := &posts[i]
		// Reset attempts so the regular retry budget applies per pass.
		post.Attempts = 0
		run.Succeeded--
		if err := o.processPost(ctx, run, post); err != nil {
			return o.stopRun(run, err)
		}
	}

	if err := o.db.UpdateRun(run); err != nil {
		return err
	}
	log.Printf("Reindex for %s finished", o.blog)
	return nil
}
