package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	healthController := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/api/health", healthController.Status)

	migrationsController := NewMigrationsController(cfg.Database, cfg.TaskClient, cfg.DefaultBlog)
	router.POST("/api/migrations", migrationsController.Start)
	router.GET("/api/migrations/:blog", migrationsController.Status)
	router.GET("/api/migrations/:blog/report", migrationsController.Report)
	router.POST("/api/migrations/:blog/pause", migrationsController.Pause)
	router.POST("/api/migrations/:blog/resume", migrationsController.Resume)

	if cfg.Scheduler != nil {
		syncController := NewSyncController(cfg.Scheduler)
		router.GET("/api/sync", syncController.Status)
		router.POST("/api/sync/run", syncController.RunNow)
	}

	return router
}
