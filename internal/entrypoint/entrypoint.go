package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/leaflet-importer/internal/cli"
	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/database"
	http_controllers "github.com/mrlokans/leaflet-importer/internal/http"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/rss"
	"github.com/mrlokans/leaflet-importer/internal/scheduler"
	"github.com/mrlokans/leaflet-importer/internal/tasks"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background workers before the HTTP listener
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Leaflet Importer v%s", version)

	if cfg.Leaflet.Handle == "" || cfg.Leaflet.Password == "" {
		log.Printf("WARNING: LEAFLET_HANDLE / LEAFLET_PASSWORD are not set. Migrations will fail to authenticate until they are.")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Task queue runs migrations in the background
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewMigrateBlogQueue(orchestratorFactory(cfg, db)),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Incremental re-sync scheduler
	var syncScheduler *scheduler.MigrationSyncScheduler
	if cfg.Sync.Enabled && taskClient != nil {
		syncScheduler = scheduler.NewMigrationSyncScheduler(taskClient, cfg.Source.Blog, cfg.Sync.Schedule)
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start sync scheduler: %v", err)
		}
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:    db,
		TaskClient:  taskClient,
		Scheduler:   syncScheduler,
		DefaultBlog: cfg.Source.Blog,
		Version:     version,
	})

	onShutdown := func(ctx context.Context) {
		if syncScheduler != nil {
			syncScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}

// orchestratorFactory builds an orchestrator per background task. Each
// task authenticates freshly so a long-idle queue never runs on an
// expired session.
func orchestratorFactory(cfg *config.Config, db *database.Database) tasks.OrchestratorFactory {
	return func(ctx context.Context, blog string) (*migration.Orchestrator, error) {
		pub, err := cli.Authenticate(ctx, cfg)
		if err != nil {
			return nil, err
		}

		fetcher := cli.NewFetcher(cfg)

		var reader migration.SourceReader
		if cfg.Source.FeedURL != "" && (blog == cfg.Source.FeedURL || blog == cfg.Source.Blog) {
			reader = rss.NewReader(fetcher, cfg.Source.FeedURL)
		} else {
			reader = tumblr.NewReader(fetcher, blog)
		}

		return migration.NewOrchestrator(
			db,
			reader,
			cli.NewUploader(cfg, fetcher, pub),
			pub.Client,
			pub.Session,
			migration.Config{
				Blog:        blog,
				Publication: cfg.Leaflet.Publication,
				AuthorDID:   pub.Session.DID,
				Policy:      cli.RetryPolicyFromConfig(cfg),
			},
		), nil
	}
}
