package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYORACLE_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus the environment. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYORACLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Log ──
	setStr(&cfg.Log.File, "POLYORACLE_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "POLYORACLE_LOG_MAX_SIZE_MB")

	// ── Inference ──
	setStr(&cfg.Inference.BaseURL, "POLYORACLE_INFERENCE_BASE_URL")
	setStr(&cfg.Inference.APIKey, "ANTHROPIC_API_KEY") // compatibility alias; the prefixed variable below wins
	setStr(&cfg.Inference.APIKey, "POLYORACLE_INFERENCE_API_KEY")
	setStr(&cfg.Inference.Model, "POLYORACLE_INFERENCE_MODEL")
	setInt(&cfg.Inference.MaxTokens, "POLYORACLE_INFERENCE_MAX_TOKENS")
	setInt(&cfg.Inference.MaxRetries, "POLYORACLE_INFERENCE_MAX_RETRIES")
	setDuration(&cfg.Inference.Timeout, "POLYORACLE_INFERENCE_TIMEOUT")

	// ── Providers ──
	setDuration(&cfg.Providers.Timeout, "POLYORACLE_PROVIDERS_TIMEOUT")
	setStr(&cfg.Providers.Binance.BaseURL, "POLYORACLE_BINANCE_BASE_URL")
	setStr(&cfg.Providers.Binance.APIKey, "POLYORACLE_BINANCE_API_KEY")
	setStr(&cfg.Providers.Binance.SecretKey, "POLYORACLE_BINANCE_SECRET_KEY")
	setStr(&cfg.Providers.AlphaVantage.APIKey, "ALPHA_VANTAGE_API_KEY") // compatibility alias
	setStr(&cfg.Providers.AlphaVantage.APIKey, "POLYORACLE_ALPHA_VANTAGE_API_KEY")
	setInt(&cfg.Providers.AlphaVantage.PerMinute, "POLYORACLE_ALPHA_VANTAGE_PER_MINUTE")
	setStr(&cfg.Providers.ESPN.BaseURL, "POLYORACLE_ESPN_BASE_URL")
	setStr(&cfg.Providers.OpenMeteo.ForecastURL, "POLYORACLE_OPEN_METEO_FORECAST_URL")
	setStr(&cfg.Providers.OpenMeteo.ArchiveURL, "POLYORACLE_OPEN_METEO_ARCHIVE_URL")
	setStringMap(&cfg.Providers.Onchain.RPC, "POLYORACLE_ONCHAIN_RPC")
	setStr(&cfg.Providers.FRED.APIKey, "FRED_API_KEY") // compatibility alias
	setStr(&cfg.Providers.FRED.APIKey, "POLYORACLE_FRED_API_KEY")
	setBool(&cfg.Providers.GNews.Enabled, "POLYORACLE_GNEWS_ENABLED")
	setStr(&cfg.Providers.GNews.APIKey, "GNEWS_API_KEY") // compatibility alias
	setStr(&cfg.Providers.GNews.APIKey, "POLYORACLE_GNEWS_API_KEY")
	setInt(&cfg.Providers.GNews.QuotaLimit, "POLYORACLE_GNEWS_QUOTA_LIMIT")
	setDuration(&cfg.Providers.GNews.QuotaWindow, "POLYORACLE_GNEWS_QUOTA_WINDOW")
	setBool(&cfg.Providers.RSS.Enabled, "POLYORACLE_RSS_ENABLED")

	// ── Markets ──
	setStr(&cfg.Markets.PolymarketGammaURL, "POLYORACLE_POLYMARKET_GAMMA_URL")
	setStr(&cfg.Markets.KalshiBaseURL, "POLYORACLE_KALSHI_BASE_URL")
	setStr(&cfg.Markets.KalshiAPIKey, "POLYORACLE_KALSHI_API_KEY")
	setStr(&cfg.Markets.KalshiPrivateKeyPath, "POLYORACLE_KALSHI_PRIVATE_KEY_PATH")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.BatchConcurrency, "POLYORACLE_PIPELINE_BATCH_CONCURRENCY")
	setDuration(&cfg.Pipeline.LockTTL, "POLYORACLE_PIPELINE_LOCK_TTL")
	setDuration(&cfg.Pipeline.ResultCacheTTL, "POLYORACLE_PIPELINE_RESULT_CACHE_TTL")

	// ── Store ──
	setStr(&cfg.Store.Driver, "POLYORACLE_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "POLYORACLE_STORE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "POLYORACLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYORACLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYORACLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYORACLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYORACLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYORACLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYORACLE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYORACLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYORACLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYORACLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYORACLE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYORACLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYORACLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYORACLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYORACLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYORACLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYORACLE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYORACLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYORACLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYORACLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYORACLE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYORACLE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYORACLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYORACLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYORACLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYORACLE_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.PrivateKey, "POLYORACLE_ORACLE_PRIVATE_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "POLYORACLE_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "POLYORACLE_ORACLE_KEY_PASSWORD")
	setInt64(&cfg.Oracle.ChainID, "POLYORACLE_ORACLE_CHAIN_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYORACLE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYORACLE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYORACLE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYORACLE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "POLYORACLE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYORACLE_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.MaxBatchSize, "POLYORACLE_SERVER_MAX_BATCH_SIZE")
	setDuration(&cfg.Server.ResolveTimeout, "POLYORACLE_SERVER_RESOLVE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYORACLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYORACLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYORACLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYORACLE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYORACLE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap merges "name=value,name=value" pairs into dst.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for _, pair := range strings.Split(v, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || value == "" {
			continue
		}
		(*dst)[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
}
