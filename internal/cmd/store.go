package cmd

import (
	"context"
	"fmt"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/config"
	"github.com/karmalens/karmalens/internal/core/engine"
	"github.com/karmalens/karmalens/internal/core/reddit"
	"github.com/karmalens/karmalens/internal/core/store"
	"github.com/karmalens/karmalens/internal/observability"
)

// appRuntime bundles the components a command needs. Close releases the store.
type appRuntime struct {
	Config    *config.Config
	Store     *store.Store
	Log       *collectlog.Log
	Client    reddit.Client
	Collector *engine.Collector
}

func (r *appRuntime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openRuntime loads configuration and opens the store. When withClient is
// set it also builds the Reddit client and the collector.
func openRuntime(ctx context.Context, withClient bool) (*appRuntime, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := collectlog.New(cfg.Collection.LogCapacity)
	log.Sink = observability.Logger()

	rt := &appRuntime{
		Config: cfg,
		Store:  db,
		Log:    log,
	}
	if !withClient {
		return rt, nil
	}

	client, err := newRedditClient(cfg.Reddit, rt.Log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rt.Client = client
	rt.Collector = newCollector(cfg.Collection, client, db, rt.Log)
	return rt, nil
}

func newRedditClient(cfg config.RedditConfig, log *collectlog.Log) (reddit.Client, error) {
	return reddit.New(reddit.Options{
		Mode:         cfg.Mode,
		UserAgent:    cfg.UserAgent,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout,
		BaseURL:      cfg.BaseURL,
		OAuthBaseURL: cfg.OAuthBaseURL,
		TokenURL:     cfg.TokenURL,
		RateLimit: engine.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			RetryAfter:  cfg.RateLimit.RetryAfter,
		},
		Retry: engine.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		},
		Fallback: reddit.FallbackOptions{
			Enabled:             cfg.Fallback.Enabled,
			Endpoints:           cfg.Fallback.Endpoints,
			RequestsPerSecond:   cfg.Fallback.RequestsPerSecond,
			Burst:               cfg.Fallback.Burst,
			AssumeExistsOnBlock: cfg.Fallback.AssumeExistsOnBlock,
		},
		Log: log,
	})
}

func newCollector(cfg config.CollectionConfig, client reddit.Client, db *store.Store, log *collectlog.Log) *engine.Collector {
	return &engine.Collector{
		Client:          client,
		Users:           db,
		Snapshots:       db,
		Runs:            db,
		Log:             log,
		BatchSize:       cfg.BatchSize,
		BatchDelay:      cfg.BatchDelay,
		FreshnessWindow: cfg.FreshnessWindow,
	}
}
