package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/entities"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/tasks"
)

// MigrationsController handles migration lifecycle endpoints. Starting
// and resuming enqueue background tasks; pausing signals the in-flight
// run directly.
type MigrationsController struct {
	db          *database.Database
	taskClient  *tasks.Client
	defaultBlog string
}

func NewMigrationsController(db *database.Database, taskClient *tasks.Client, defaultBlog string) *MigrationsController {
	return &MigrationsController{
		db:          db,
		taskClient:  taskClient,
		defaultBlog: defaultBlog,
	}
}

type StartMigrationRequest struct {
	Blog    string `json:"blog"`
	Reindex bool   `json:"reindex"`
}

// Start handles POST /api/migrations
func (mc *MigrationsController) Start(c *gin.Context) {
	var req StartMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	blog := req.Blog
	if blog == "" {
		blog = mc.defaultBlog
	}
	if blog == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blog is required"})
		return
	}
	if mc.taskClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is disabled"})
		return
	}
	if _, active := migration.Active(blog); active {
		c.JSON(http.StatusConflict, gin.H{"error": "migration already running for " + blog})
		return
	}

	ids, err := mc.taskClient.Add(tasks.MigrateBlogTask{Blog: blog, Reindex: req.Reindex}).Save()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue migration: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "migration enqueued",
		"blog":    blog,
		"task_id": firstOrEmpty(ids),
	})
}

// Status handles GET /api/migrations/:blog
func (mc *MigrationsController) Status(c *gin.Context) {
	blog := c.Param("blog")

	run, err := mc.db.GetRun(blog)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no migration run for " + blog})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts, err := mc.db.CountByStatus(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	_, active := migration.Active(blog)
	c.JSON(http.StatusOK, gin.H{
		"run":    run,
		"counts": counts,
		"active": active,
	})
}

// Report handles GET /api/migrations/:blog/report
func (mc *MigrationsController) Report(c *gin.Context) {
	blog := c.Param("blog")

	report, err := migration.BuildReport(mc.db, blog)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, report)
}

// Pause handles POST /api/migrations/:blog/pause
// The run stops after the post currently in flight.
func (mc *MigrationsController) Pause(c *gin.Context) {
	blog := c.Param("blog")

	orchestrator, active := migration.Active(blog)
	if !active {
		c.JSON(http.StatusConflict, gin.H{"error": "no migration running for " + blog})
		return
	}

	orchestrator.RequestPause()
	c.JSON(http.StatusAccepted, gin.H{"message": "pause requested", "blog": blog})
}

// Resume handles POST /api/migrations/:blog/resume
func (mc *MigrationsController) Resume(c *gin.Context) {
	blog := c.Param("blog")

	run, err := mc.db.GetRun(blog)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no migration run for " + blog})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run.Status == entities.RunStatusAborted {
		c.JSON(http.StatusConflict, gin.H{
			"error": "run was aborted and needs operator attention: " + run.Error,
		})
		return
	}
	if _, active := migration.Active(blog); active {
		c.JSON(http.StatusConflict, gin.H{"error": "migration already running for " + blog})
		return
	}
	if mc.taskClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is disabled"})
		return
	}

	ids, err := mc.taskClient.Add(tasks.MigrateBlogTask{Blog: blog}).Save()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue migration: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "migration resumed",
		"blog":    blog,
		"task_id": firstOrEmpty(ids),
	})
}

func firstOrEmpty(ids []string) string {
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}
