package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"whale-futures/config"
	"whale-futures/internal/blob"
	"whale-futures/internal/cache"
	"whale-futures/internal/settings"
	"whale-futures/observability"
	"whale-futures/repository"
	"whale-futures/services"
)

// BuildDependencies creates the services described by cfg. Optional
// backends that fail to start are logged and left out so the dashboard
// still runs; only the credential store and the configured summarizer are
// fatal.
func BuildDependencies(ctx context.Context, cfg *config.Config) (Dependencies, error) {
	keys, err := settings.NewStore(cfg.Settings.Dir, cfg.Settings.Passphrase, cfg.Settings.InternalAPIKey)
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to open settings: %w", err)
	}

	deps := Dependencies{
		Keys:   keys,
		Checks: make(map[string]HealthCheck),
	}
	timeout := cfg.UpstreamTimeout()

	deps.Orders = services.NewOrdersService(cfg.Upstream.OrdersAPI, timeout, keys)
	deps.Traders = services.NewTradersService(services.TradersConfig{
		ProxyBase: cfg.Upstream.ProxyBase,
		BaseURL:   cfg.Upstream.TradersBaseURL,
		Interval:  cfg.Traders.Interval,
		Limit:     cfg.Traders.Limit,
		Page:      cfg.Traders.Page,
		Timeout:   timeout,
	}, keys)

	var secondary services.PriceSource
	if cfg.HasAlpaca() {
		secondary = services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	} else {
		observability.Info("Alpaca credentials not set, fallback prices disabled")
	}

	var priceCache services.PriceCache
	if cfg.HasRedis() {
		rdb, err := connectWithRetry(ctx, "redis", func() (*redis.Client, error) {
			return cache.NewClient(ctx, cache.ClientConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		})
		if err != nil {
			observability.WithError(err).Warn("price cache unavailable, continuing without it")
		} else {
			priceCache = cache.NewPriceCache(rdb, "", cfg.Redis.TTL)
			deps.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			deps.Closers = append(deps.Closers, func() { _ = rdb.Close() })
		}
	}
	deps.Prices = services.NewFallbackPriceSource(
		services.NewPricesService(cfg.Upstream.PricesAPI, timeout, keys), secondary, priceCache)

	remote := services.NewSummaryService(services.SummaryConfig{
		CSVEndpoint:    cfg.Upstream.AIAPI,
		OrdersEndpoint: cfg.Upstream.OrdersAIAPI,
	}, keys)
	deps.OrdersSummarizer = remote

	switch cfg.Summary.Provider {
	case config.SummaryProviderBedrock:
		bedrock, err := services.NewBedrockService(ctx, cfg)
		if err != nil {
			return Dependencies{}, fmt.Errorf("failed to initialize Bedrock: %w", err)
		}
		deps.Summarizer = bedrock
	case config.SummaryProviderOpenAI:
		openai, err := services.NewOpenAIService(cfg)
		if err != nil {
			return Dependencies{}, fmt.Errorf("failed to initialize OpenAI: %w", err)
		}
		deps.Summarizer = openai
	default:
		deps.Summarizer = remote
	}

	if cfg.HasDatabase() {
		repo, err := connectWithRetry(ctx, "postgres", func() (*repository.Repository, error) {
			return repository.NewRepository(ctx, cfg.Database.URL)
		})
		if err != nil {
			observability.WithError(err).Warn("database unavailable, summary history disabled")
		} else {
			deps.Repo = repo
		}
	}

	if cfg.HasArchive() {
		archive, err := blob.NewArchive(ctx, blob.ArchiveConfig{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Prefix:    cfg.Archive.Prefix,
		})
		if err != nil {
			observability.WithError(err).Warn("snapshot archive unavailable")
		} else {
			deps.Archive = archive
		}
	}

	return deps, nil
}

// startupRetry paces reconnects to optional backends that are still coming
// up alongside the dashboard
var startupRetry = services.DefaultRetryConfig

func connectWithRetry[T any](ctx context.Context, name string, connect func() (T, error)) (T, error) {
	var conn T
	err := services.WithRetry(ctx, startupRetry, func() error {
		c, err := connect()
		if err != nil {
			observability.Debug("backend connect failed", "backend", name, "error", err)
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}
