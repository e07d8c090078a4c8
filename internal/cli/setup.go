package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/atproto"
	"github.com/mrlokans/leaflet-importer/internal/config"
	"github.com/mrlokans/leaflet-importer/internal/media"
	"github.com/mrlokans/leaflet-importer/internal/migration"
	"github.com/mrlokans/leaflet-importer/internal/relay"
)

// Publisher bundles the authenticated publishing dependencies a command
// needs: the PDS client and the session obtained for this invocation.
type Publisher struct {
	Client  *atproto.Client
	Session *atproto.Session
}

// Authenticate resolves the configured handle to its PDS and opens a
// session. The app password is consumed here and goes nowhere else.
func Authenticate(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	if cfg.Leaflet.Handle == "" {
		return nil, fmt.Errorf("LEAFLET_HANDLE is not set")
	}
	if cfg.Leaflet.Password == "" {
		return nil, fmt.Errorf("LEAFLET_PASSWORD is not set")
	}

	pds := cfg.Leaflet.PDSURL
	if pds == "" {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		_, resolved, err := atproto.ResolveHandle(ctx, httpClient, cfg.Leaflet.Entryway, cfg.Leaflet.Handle)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve handle %s: %w", cfg.Leaflet.Handle, err)
		}
		pds = resolved
	}

	client := atproto.NewClient(pds)
	session, err := client.CreateSession(ctx, cfg.Leaflet.Handle, cfg.Leaflet.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate as %s: %w", cfg.Leaflet.Handle, err)
	}

	return &Publisher{Client: client, Session: session}, nil
}

// NewFetcher builds the relay fetcher from config.
func NewFetcher(cfg *config.Config) relay.Fetcher {
	return relay.NewClient(cfg.Relay.URL, cfg.Relay.AllowedHosts)
}

// NewUploader builds the media uploader from config.
func NewUploader(cfg *config.Config, fetcher relay.Fetcher, pub *Publisher) *media.Uploader {
	return media.NewUploader(fetcher, pub.Client).WithConcurrency(cfg.Migration.MediaConcurrency)
}

// RetryPolicyFromConfig maps the config knobs onto the orchestrator's
// retry policy, falling back to defaults for unset values.
func RetryPolicyFromConfig(cfg *config.Config) migration.RetryPolicy {
	policy := migration.DefaultRetryPolicy()
	if cfg.Migration.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Migration.MaxAttempts
	}
	if cfg.Migration.InitialDelay > 0 {
		policy.InitialDelay = cfg.Migration.InitialDelay
	}
	if cfg.Migration.MaxDelay > 0 {
		policy.MaxDelay = cfg.Migration.MaxDelay
	}
	if cfg.Migration.RateLimitWait > 0 {
		policy.RateLimitWait = cfg.Migration.RateLimitWait
	}
	return policy
}
