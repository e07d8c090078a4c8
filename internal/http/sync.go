package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/leaflet-importer/internal/scheduler"
)

// SyncController exposes the incremental re-sync scheduler.
type SyncController struct {
	scheduler *scheduler.MigrationSyncScheduler
}

func NewSyncController(s *scheduler.MigrationSyncScheduler) *SyncController {
	return &SyncController{scheduler: s}
}

// Status handles GET /api/sync
func (sc *SyncController) Status(c *gin.Context) {
	resp := gin.H{
		"running": sc.scheduler.IsRunning(),
	}
	if next := sc.scheduler.GetNextRunTime(); next != nil {
		resp["next_run"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// RunNow handles POST /api/sync/run
func (sc *SyncController) RunNow(c *gin.Context) {
	if err := sc.scheduler.RunNow(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync enqueued"})
}
