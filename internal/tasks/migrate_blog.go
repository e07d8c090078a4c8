package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/leaflet-importer/internal/migration"
)

// MigrateBlogTask runs (or resumes) a full blog migration in the
// background. Reindex re-publishes already-migrated posts instead.
type MigrateBlogTask struct {
	Blog    string `json:"blog"`
	Reindex bool   `json:"reindex"`
}

// Config returns the queue configuration for migration tasks. A single
// worker and one attempt: the orchestrator owns its retry policy, and a
// paused run is resumed by a fresh task, not a queue retry.
func (t MigrateBlogTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "migrate_blog",
		MaxAttempts: 1,
		Backoff:     1 * time.Minute,
		Timeout:     2 * time.Hour,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// OrchestratorFactory builds a ready-to-run orchestrator for a blog.
// Construction happens per task so each run authenticates freshly.
type OrchestratorFactory func(ctx context.Context, blog string) (*migration.Orchestrator, error)

// MigrateBlogProcessor creates the processor for migration tasks.
func MigrateBlogProcessor(factory OrchestratorFactory) backlite.QueueProcessor[MigrateBlogTask] {
	return func(ctx context.Context, task MigrateBlogTask) error {
		if factory == nil {
			return fmt.Errorf("orchestrator factory not configured")
		}

		orchestrator, err := factory(ctx, task.Blog)
		if err != nil {
			return fmt.Errorf("set up migration for %s: %w", task.Blog, err)
		}

		if task.Reindex {
			err = orchestrator.Reindex(ctx)
		} else {
			err = orchestrator.Run(ctx)
		}

		switch {
		case err == nil:
			log.Printf("[TASK] Migration for %s finished", task.Blog)
			return nil
		case errors.Is(err, migration.ErrRunPaused):
			// Paused is a clean stop, not a task failure.
			log.Printf("[TASK] Migration for %s paused: %v", task.Blog, err)
			return nil
		default:
			return fmt.Errorf("migrate %s: %w", task.Blog, err)
		}
	}
}

// NewMigrateBlogQueue creates a backlite queue for migration tasks.
func NewMigrateBlogQueue(factory OrchestratorFactory) backlite.Queue {
	return backlite.NewQueue(MigrateBlogProcessor(factory))
}
