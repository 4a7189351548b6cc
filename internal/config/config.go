// Package config defines the top-level configuration for the resolution
// oracle and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYORACLE_* environment variables.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Inference InferenceConfig `toml:"inference"`
	Providers ProvidersConfig `toml:"providers"`
	Markets   MarketsConfig   `toml:"markets"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Oracle    OracleConfig    `toml:"oracle"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// InferenceConfig holds the structured-inference endpoint.
type InferenceConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Model      string   `toml:"model"`
	MaxTokens  int      `toml:"max_tokens"`
	MaxRetries int      `toml:"max_retries"`
	Timeout    duration `toml:"timeout"`
}

// ProvidersConfig holds every data and evidence provider.
type ProvidersConfig struct {
	Timeout      duration           `toml:"timeout"`
	Binance      BinanceConfig      `toml:"binance"`
	AlphaVantage AlphaVantageConfig `toml:"alpha_vantage"`
	ESPN         ESPNConfig         `toml:"espn"`
	OpenMeteo    OpenMeteoConfig    `toml:"open_meteo"`
	Onchain      OnchainConfig      `toml:"onchain"`
	FRED         FREDConfig         `toml:"fred"`
	GNews        GNewsConfig        `toml:"gnews"`
	RSS          RSSConfig          `toml:"rss"`
}

// BinanceConfig holds Binance spot API parameters.
type BinanceConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

// AlphaVantageConfig holds Alpha Vantage parameters.
type AlphaVantageConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	PerMinute int    `toml:"per_minute"`
}

// ESPNConfig holds the ESPN scoreboard root.
type ESPNConfig struct {
	BaseURL string `toml:"base_url"`
}

// OpenMeteoConfig holds the forecast and archive endpoints.
type OpenMeteoConfig struct {
	ForecastURL string `toml:"forecast_url"`
	ArchiveURL  string `toml:"archive_url"`
}

// OnchainConfig maps chain names to JSON-RPC endpoints. Entries override the
// built-in public endpoints.
type OnchainConfig struct {
	RPC map[string]string `toml:"rpc"`
}

// FREDConfig holds FRED parameters.
type FREDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	PerMinute int    `toml:"per_minute"`
}

// GNewsConfig holds GNews parameters. QuotaLimit requests per QuotaWindow
// are shared across instances through Redis when it is enabled.
type GNewsConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	MaxResults  int      `toml:"max_results"`
	QuotaLimit  int      `toml:"quota_limit"`
	QuotaWindow duration `toml:"quota_window"`
}

// RSSConfig holds the Google News RSS parameters.
type RSSConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	MaxResults int    `toml:"max_results"`
}

// MarketsConfig holds the venues markets can be loaded from by id.
type MarketsConfig struct {
	PolymarketGammaURL   string `toml:"polymarket_gamma_url"`
	KalshiBaseURL        string `toml:"kalshi_base_url"`
	KalshiAPIKey         string `toml:"kalshi_api_key"`
	KalshiPrivateKeyPath string `toml:"kalshi_private_key_path"`
}

// PipelineConfig holds orchestration parameters.
type PipelineConfig struct {
	BatchConcurrency int      `toml:"batch_concurrency"`
	LockTTL          duration `toml:"lock_ttl"`
	ResultCacheTTL   duration `toml:"result_cache_ttl"`
}

// StoreConfig selects the result store backend: "postgres", "sqlite" or
// "none".
type StoreConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the attestation key. Attestation is off when neither
// key source is set.
type OracleConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int64  `toml:"chain_id"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	APIKey         string   `toml:"api_key"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	MaxBatchSize   int      `toml:"max_batch_size"`
	ResolveTimeout duration `toml:"resolve_timeout"`
}

// NotifyConfig holds notification channel credentials. Events selects which
// results notify: "escalate", "pipeline_error", "settle".
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Inference: InferenceConfig{
			BaseURL:    "https://api.anthropic.com",
			Model:      "claude-sonnet-4-5",
			MaxTokens:  2048,
			MaxRetries: 2,
			Timeout:    duration{60 * time.Second},
		},
		Providers: ProvidersConfig{
			Timeout: duration{15 * time.Second},
			Binance: BinanceConfig{
				BaseURL: "https://api.binance.com",
			},
			AlphaVantage: AlphaVantageConfig{
				BaseURL:   "https://www.alphavantage.co",
				PerMinute: 5,
			},
			ESPN: ESPNConfig{
				BaseURL: "https://site.api.espn.com/apis/site/v2/sports",
			},
			OpenMeteo: OpenMeteoConfig{
				ForecastURL: "https://api.open-meteo.com/v1/forecast",
				ArchiveURL:  "https://archive-api.open-meteo.com/v1/archive",
			},
			Onchain: OnchainConfig{
				RPC: map[string]string{},
			},
			FRED: FREDConfig{
				BaseURL:   "https://api.stlouisfed.org",
				PerMinute: 120,
			},
			GNews: GNewsConfig{
				Enabled:     true,
				BaseURL:     "https://gnews.io/api/v4",
				MaxResults:  3,
				QuotaLimit:  100,
				QuotaWindow: duration{24 * time.Hour},
			},
			RSS: RSSConfig{
				Enabled:    true,
				BaseURL:    "https://news.google.com/rss/search",
				MaxResults: 3,
			},
		},
		Markets: MarketsConfig{
			PolymarketGammaURL: "https://gamma-api.polymarket.com",
			KalshiBaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
		},
		Pipeline: PipelineConfig{
			BatchConcurrency: 1,
			LockTTL:          duration{5 * time.Minute},
			ResultCacheTTL:   duration{24 * time.Hour},
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "polyoracle.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyoracle",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyoracle-evidence",
			Prefix:         "resolutions",
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			ChainID: 137,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      60,
			RateWindow:     duration{time.Minute},
			MaxBatchSize:   50,
			ResolveTimeout: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"escalate", "pipeline_error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"none":     true,
}

var validNotifyEvents = map[string]bool{
	"escalate":       true,
	"pipeline_error": true,
	"settle":         true,
	"reject":         true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Inference
	if c.Inference.APIKey == "" {
		errs = append(errs, "inference: api_key must be set")
	}
	if c.Inference.Model == "" {
		errs = append(errs, "inference: model must not be empty")
	}
	if c.Inference.MaxTokens < 1 {
		errs = append(errs, "inference: max_tokens must be >= 1")
	}
	if c.Inference.MaxRetries < 0 {
		errs = append(errs, "inference: max_retries must be >= 0")
	}

	// Providers
	if c.Providers.GNews.Enabled {
		if c.Providers.GNews.QuotaLimit < 0 {
			errs = append(errs, "providers.gnews: quota_limit must be >= 0")
		}
		if c.Providers.GNews.QuotaLimit > 0 && c.Providers.GNews.QuotaWindow.Duration <= 0 {
			errs = append(errs, "providers.gnews: quota_window must be positive when quota_limit is set")
		}
	}

	// Pipeline
	if c.Pipeline.BatchConcurrency < 1 {
		errs = append(errs, "pipeline: batch_concurrency must be >= 1")
	}

	// Store
	driver := strings.ToLower(c.Store.Driver)
	if !validDrivers[driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite, none)", c.Store.Driver))
	}
	if driver == "sqlite" && c.Store.SQLitePath == "" {
		errs = append(errs, "store: sqlite_path must be set for the sqlite driver")
	}

	// Postgres
	if driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Oracle
	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}
	if c.Oracle.ChainID <= 0 {
		errs = append(errs, "oracle: chain_id must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.MaxBatchSize < 1 {
			errs = append(errs, "server: max_batch_size must be >= 1")
		}
	}

	// Notify
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[strings.ToLower(e)] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: escalate, pipeline_error, settle, reject)", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
