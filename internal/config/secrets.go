package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Inference
	redact(&out.Inference.APIKey)

	// Providers
	redact(&out.Providers.Binance.APIKey)
	redact(&out.Providers.Binance.SecretKey)
	redact(&out.Providers.AlphaVantage.APIKey)
	redact(&out.Providers.FRED.APIKey)
	redact(&out.Providers.GNews.APIKey)

	// Markets
	redact(&out.Markets.KalshiAPIKey)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Oracle
	redact(&out.Oracle.PrivateKey)
	redact(&out.Oracle.KeyPassword)

	// Server
	redact(&out.Server.APIKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	// RPC URLs often embed provider API keys in the path.
	if cfg.Providers.Onchain.RPC != nil {
		out.Providers.Onchain.RPC = make(map[string]string, len(cfg.Providers.Onchain.RPC))
		for k, v := range cfg.Providers.Onchain.RPC {
			redact(&v)
			out.Providers.Onchain.RPC[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
