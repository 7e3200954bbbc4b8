package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/inboxops/autotag/internal/panels"
	"github.com/inboxops/autotag/internal/store"
	"github.com/inboxops/autotag/pkg/alerts"
	"github.com/inboxops/autotag/pkg/registry"
)

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newRegistryClient builds the panel registry API client from config.
func newRegistryClient() registry.Client {
	return registry.NewClient(
		cfg.Registry.BaseURL,
		cfg.Registry.Secret,
		registry.WithTimeout(time.Duration(cfg.Registry.TimeoutSecs)*time.Second),
	)
}

// newDirectory wires the TTL-cached panel directory over the registry,
// persisting each good fetch through the store.
func newDirectory(st store.Store) *panels.Directory {
	fetcher := panels.NewRegistryFetcher(newRegistryClient())
	return panels.NewDirectory(fetcher, cfg.Registry.CacheTTL(), panels.WithSnapshotStore(st))
}

// newAlerter builds the alert client, or nil when no endpoint is
// configured.
func newAlerter() alerts.Client {
	if cfg.Alerts.URL == "" {
		return nil
	}
	return alerts.NewClient(
		cfg.Alerts.URL,
		cfg.Alerts.Secret,
		alerts.WithRateLimit(cfg.Alerts.RatePerSec, cfg.Alerts.Burst),
	)
}
