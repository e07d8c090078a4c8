package http

import (
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/scheduler"
	"github.com/mrlokans/leaflet-importer/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	Database   *database.Database
	TaskClient *tasks.Client
	Scheduler  *scheduler.MigrationSyncScheduler

	// DefaultBlog is used when a request does not name a blog.
	DefaultBlog string

	Version string
}
