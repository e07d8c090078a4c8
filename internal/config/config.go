package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Source
		Leaflet
		Relay
		Database
		Migration
		Sync
		Tasks
		Archive
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Source struct {
		Blog    string // Tumblr blog hostname, e.g. "example.tumblr.com"
		FeedURL string // Optional RSS feed URL used instead of the Tumblr API
	}
	Leaflet struct {
		Handle      string // AT Protocol handle of the publishing account
		Password    string // App password; read from env, never persisted
		Publication string // at:// URI of the destination publication
		Entryway    string // Service used for handle resolution
		PDSURL      string // Explicit PDS URL; resolved from the handle if empty
	}
	Relay struct {
		URL          string
		AllowedHosts []string
	}
	Database struct {
		Path string
	}
	Migration struct {
		MaxAttempts      int
		InitialDelay     time.Duration
		MaxDelay         time.Duration
		RateLimitWait    time.Duration
		MediaConcurrency int
	}
	Sync struct {
		Enabled  bool
		Schedule string // Cron format: "0 */6 * * *" = every 6 hours
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Archive struct {
		Dir string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("archive_dir", "./archive")

	v.SetDefault("leaflet_entryway", "https://bsky.social")
	v.SetDefault("leaflet_pds_url", "")
	v.SetDefault("relay_url", "")
	v.SetDefault("relay_allowed_hosts", "")

	// Migration retry/backoff defaults
	v.SetDefault("migration_max_attempts", 3)
	v.SetDefault("migration_initial_delay", "1s")
	v.SetDefault("migration_max_delay", "30s")
	v.SetDefault("migration_rate_limit_wait", "60s")
	v.SetDefault("migration_media_concurrency", 4)

	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "0 */6 * * *") // Every 6 hours

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	// Must outlast the 2h migration task timeout.
	v.SetDefault("task_release_after", "3h")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Source: Source{
			Blog:    v.GetString("BLOG"),
			FeedURL: v.GetString("FEED_URL"),
		},
		Leaflet: Leaflet{
			Handle:      v.GetString("LEAFLET_HANDLE"),
			Password:    v.GetString("LEAFLET_PASSWORD"),
			Publication: v.GetString("PUBLICATION_URI"),
			Entryway:    v.GetString("LEAFLET_ENTRYWAY"),
			PDSURL:      v.GetString("LEAFLET_PDS_URL"),
		},
		Relay: Relay{
			URL:          v.GetString("RELAY_URL"),
			AllowedHosts: splitHosts(v.GetString("RELAY_ALLOWED_HOSTS")),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Migration: Migration{
			MaxAttempts:      v.GetInt("MIGRATION_MAX_ATTEMPTS"),
			InitialDelay:     v.GetDuration("MIGRATION_INITIAL_DELAY"),
			MaxDelay:         v.GetDuration("MIGRATION_MAX_DELAY"),
			RateLimitWait:    v.GetDuration("MIGRATION_RATE_LIMIT_WAIT"),
			MediaConcurrency: v.GetInt("MIGRATION_MEDIA_CONCURRENCY"),
		},
		Sync: Sync{
			Enabled:  v.GetBool("SYNC_ENABLED"),
			Schedule: v.GetString("SYNC_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Archive: Archive{
			Dir: v.GetString("ARCHIVE_DIR"),
		},
	}
}

func splitHosts(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			hosts = append(hosts, p)
		}
	}
	return hosts
}
