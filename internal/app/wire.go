package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/polyoracle/internal/blob/s3"
	"github.com/alanyoungcy/polyoracle/internal/cache/redis"
	"github.com/alanyoungcy/polyoracle/internal/classifier"
	"github.com/alanyoungcy/polyoracle/internal/config"
	"github.com/alanyoungcy/polyoracle/internal/crypto"
	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/evidence"
	"github.com/alanyoungcy/polyoracle/internal/fetcher"
	"github.com/alanyoungcy/polyoracle/internal/inference"
	"github.com/alanyoungcy/polyoracle/internal/notify"
	"github.com/alanyoungcy/polyoracle/internal/parser"
	"github.com/alanyoungcy/polyoracle/internal/pipeline"
	"github.com/alanyoungcy/polyoracle/internal/platform/kalshi"
	"github.com/alanyoungcy/polyoracle/internal/platform/polymarket"
	"github.com/alanyoungcy/polyoracle/internal/resolution"
	"github.com/alanyoungcy/polyoracle/internal/server/handler"
	"github.com/alanyoungcy/polyoracle/internal/server/ws"
	"github.com/alanyoungcy/polyoracle/internal/service"
	"github.com/alanyoungcy/polyoracle/internal/store/postgres"
	"github.com/alanyoungcy/polyoracle/internal/store/sqlite"
)

// Dependencies bundles everything the commands need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Service  *service.ResolutionService

	// Optional sinks; nil when not configured.
	Store       domain.ResolutionStore
	Audit       domain.AuditStore
	RateLimiter domain.RateLimiter
	Bus         domain.SignalBus
	Archiver    *s3blob.Archiver
	Signer      *crypto.Signer
	Notifier    *notify.Notifier

	Hub    *ws.Hub
	Health map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(step string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", step, err)
	}

	deps := &Dependencies{Health: map[string]handler.HealthCheck{}}
	svcDeps := service.Deps{}

	// --- Result store ---
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		pool := pgClient.Pool()
		deps.Store = postgres.NewResolutionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Store = db.Resolutions()
		deps.Audit = db.Audit()
		deps.Health["sqlite"] = db.Ping

	default:
		logger.WarnContext(ctx, "result store disabled; results are not persisted")
	}

	// --- Redis: locks, result cache, shared rate limits, event bus ---
	var cache domain.ResultCache
	var locks domain.LockManager
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		cache = redis.NewResultCache(redisClient, cfg.Pipeline.ResultCacheTTL.Duration)
		locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	}

	// --- S3 evidence archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), s3Client.Prefix())
		deps.Health["s3"] = s3Client.Health
		svcDeps.Archiver = deps.Archiver
		svcDeps.Archives = deps.Archiver
	}

	// --- Oracle attestation key ---
	signer, err := buildSigner(cfg.Oracle)
	switch {
	case errors.Is(err, crypto.ErrNoKey):
		logger.WarnContext(ctx, "no oracle key configured; results will not be attested")
	case err != nil:
		return fail("oracle key", err)
	default:
		deps.Signer = signer
		svcDeps.Signer = signer
		logger.InfoContext(ctx, "oracle attestation enabled",
			slog.String("signer", signer.Address().Hex()),
			slog.Int64("chain_id", cfg.Oracle.ChainID),
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Market venues ---
	sources, err := buildSources(cfg)
	if err != nil {
		return fail("market sources", err)
	}

	// --- Pipeline ---
	deps.Pipeline = buildPipeline(cfg, deps.RateLimiter, logger)

	signerAddr := ""
	if deps.Signer != nil {
		signerAddr = deps.Signer.Address().Hex()
	}
	deps.Hub = ws.NewHub(logger, ws.Config{Signer: signerAddr, StartedAt: time.Now().UTC()})

	svcDeps.Pipeline = deps.Pipeline
	svcDeps.Store = deps.Store
	svcDeps.Audit = deps.Audit
	svcDeps.Cache = cache
	svcDeps.Locks = locks
	svcDeps.Bus = deps.Bus
	svcDeps.Notifier = deps.Notifier
	svcDeps.Broadcaster = deps.Hub
	svcDeps.Sources = sources
	deps.Service = service.NewResolutionService(svcDeps, service.Options{
		LockTTL: cfg.Pipeline.LockTTL.Duration,
	}, logger)

	return deps, cleanup, nil
}

func buildSigner(cfg config.OracleConfig) (*crypto.Signer, error) {
	hexKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.PrivateKey,
		EncryptedKeyPath: cfg.EncryptedKeyPath,
		KeyPassword:      cfg.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(hexKey, cfg.ChainID)
}

func buildSources(cfg *config.Config) ([]domain.MarketSource, error) {
	timeout := cfg.Providers.Timeout.Duration
	sources := []domain.MarketSource{
		polymarket.NewGammaClient(cfg.Markets.PolymarketGammaURL, timeout),
	}

	k := kalshi.NewClient(cfg.Markets.KalshiBaseURL, cfg.Markets.KalshiAPIKey, timeout)
	if path := cfg.Markets.KalshiPrivateKeyPath; path != "" {
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read kalshi key: %w", err)
		}
		if err := k.SetRSAPrivateKey(pemBytes); err != nil {
			return nil, err
		}
	}
	return append(sources, k), nil
}

// buildPipeline assembles the inference-backed steps, the fetcher registry
// and the evidence providers. quota may be nil.
func buildPipeline(cfg *config.Config, quota domain.RateLimiter, logger *slog.Logger) *pipeline.Pipeline {
	llm := inference.NewAnthropicClient(inference.AnthropicConfig{
		BaseURL:    cfg.Inference.BaseURL,
		APIKey:     cfg.Inference.APIKey,
		Model:      cfg.Inference.Model,
		MaxTokens:  cfg.Inference.MaxTokens,
		MaxRetries: cfg.Inference.MaxRetries,
		Timeout:    cfg.Inference.Timeout.Duration,
	})

	p := cfg.Providers
	timeout := p.Timeout.Duration

	registry := fetcher.NewRegistry(time.Now, logger)
	registry.Register(fetcher.NewCryptoFetcher(fetcher.CryptoConfig{
		BaseURL:   p.Binance.BaseURL,
		APIKey:    p.Binance.APIKey,
		SecretKey: p.Binance.SecretKey,
		Timeout:   timeout,
	}), domain.StrategyCryptoSpot, domain.StrategyCryptoTWAP)
	registry.Register(fetcher.NewStockFetcher(fetcher.StockConfig{
		BaseURL:   p.AlphaVantage.BaseURL,
		APIKey:    p.AlphaVantage.APIKey,
		PerMinute: p.AlphaVantage.PerMinute,
		Timeout:   timeout,
	}), domain.StrategyStockClose)
	registry.Register(fetcher.NewOnchainFetcher(fetcher.OnchainConfig{
		Endpoints: p.Onchain.RPC,
		Timeout:   timeout,
	}), domain.StrategyOnchainQuery)
	registry.Register(fetcher.NewSportsFetcher(fetcher.SportsConfig{
		BaseURL: p.ESPN.BaseURL,
		Timeout: timeout,
	}), domain.StrategySportsResult)
	registry.Register(fetcher.NewWeatherFetcher(fetcher.WeatherConfig{
		ForecastURL: p.OpenMeteo.ForecastURL,
		ArchiveURL:  p.OpenMeteo.ArchiveURL,
		Timeout:     timeout,
	}), domain.StrategyWeather)
	registry.Register(fetcher.NewEconomicFetcher(fetcher.EconomicConfig{
		BaseURL:   p.FRED.BaseURL,
		APIKey:    p.FRED.APIKey,
		PerMinute: p.FRED.PerMinute,
		Timeout:   timeout,
	}), domain.StrategyEconomicData)

	var providers []evidence.Provider
	if p.GNews.Enabled && p.GNews.APIKey != "" {
		providers = append(providers, evidence.NewGNews(evidence.GNewsConfig{
			BaseURL:     p.GNews.BaseURL,
			APIKey:      p.GNews.APIKey,
			MaxResults:  p.GNews.MaxResults,
			Timeout:     timeout,
			Quota:       quota,
			QuotaLimit:  p.GNews.QuotaLimit,
			QuotaWindow: p.GNews.QuotaWindow.Duration,
		}))
	} else if p.GNews.Enabled {
		logger.Warn("gnews enabled without api_key; provider skipped")
	}
	if p.RSS.Enabled {
		providers = append(providers, evidence.NewGoogleNewsRSS(evidence.GoogleNewsRSSConfig{
			BaseURL:    p.RSS.BaseURL,
			MaxResults: p.RSS.MaxResults,
			Timeout:    timeout,
		}))
	}

	return pipeline.New(pipeline.Components{
		Classifier: classifier.New(llm, logger),
		Parser:     parser.New(llm, logger),
		Fetcher:    registry,
		Resolver:   resolution.NewAgent(logger),
		Planner:    evidence.NewPlanner(llm, logger),
		Gatherer:   evidence.NewGatherer(providers, time.Now, logger),
		Evaluator:  evidence.NewEvaluator(llm, time.Now, logger),
	}, pipeline.Config{BatchConcurrency: cfg.Pipeline.BatchConcurrency}, logger)
}
