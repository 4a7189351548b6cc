package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("POLYORACLE_INFERENCE_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[inference]
api_key = "sk-file"
timeout = "90s"

[pipeline]
batch_concurrency = 4

[providers.onchain.rpc]
base = "https://base.example/rpc"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sk-file", cfg.Inference.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Inference.Timeout.Duration)
	assert.Equal(t, 4, cfg.Pipeline.BatchConcurrency)
	assert.Equal(t, "https://base.example/rpc", cfg.Providers.Onchain.RPC["base"])
	// untouched sections keep defaults
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, int64(137), cfg.Oracle.ChainID)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("POLYORACLE_INFERENCE_API_KEY", "sk-env")
	t.Setenv("POLYORACLE_PIPELINE_BATCH_CONCURRENCY", "8")
	t.Setenv("POLYORACLE_PIPELINE_LOCK_TTL", "2m")
	t.Setenv("POLYORACLE_NOTIFY_EVENTS", "escalate, settle ,")
	t.Setenv("POLYORACLE_ONCHAIN_RPC", "Ethereum=https://eth.example, bad,polygon=https://poly.example")
	t.Setenv("POLYORACLE_ORACLE_CHAIN_ID", "80002")
	t.Setenv("POLYORACLE_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Inference.APIKey)
	assert.Equal(t, 8, cfg.Pipeline.BatchConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.LockTTL.Duration)
	assert.Equal(t, []string{"escalate", "settle"}, cfg.Notify.Events)
	assert.Equal(t, map[string]string{
		"ethereum": "https://eth.example",
		"polygon":  "https://poly.example",
	}, cfg.Providers.Onchain.RPC)
	assert.Equal(t, int64(80002), cfg.Oracle.ChainID)
	assert.Equal(t, 8000, cfg.Server.Port, "unparseable values are ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Pipeline.BatchConcurrency = 0
	cfg.Store.Driver = "mongo"
	cfg.Oracle.EncryptedKeyPath = "/keys/oracle.json"
	cfg.Notify.Events = []string{"everything"}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `unknown log_level "verbose"`)
	assert.Contains(t, msg, "inference: api_key must be set")
	assert.Contains(t, msg, "batch_concurrency must be >= 1")
	assert.Contains(t, msg, `unknown driver "mongo"`)
	assert.Contains(t, msg, "key_password is required")
	assert.Contains(t, msg, `unknown event "everything"`)
}

func TestValidatePostgresOnlyWhenSelected(t *testing.T) {
	cfg := Defaults()
	cfg.Inference.APIKey = "k"
	cfg.Postgres.Host = ""
	assert.NoError(t, cfg.Validate())

	cfg.Store.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "postgres: host must not be empty")

	cfg.Postgres.DSN = "postgres://u:p@db/polyoracle"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Inference.APIKey = "sk-secret"
	cfg.Oracle.PrivateKey = "0xabc"
	cfg.Postgres.Password = "pw"
	cfg.Providers.Onchain.RPC = map[string]string{"ethereum": "https://eth.example/v2/key"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Inference.APIKey)
	assert.Equal(t, "***", out.Oracle.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Providers.Onchain.RPC["ethereum"])
	assert.Empty(t, out.Server.APIKey, "empty secrets stay empty")

	// original untouched
	assert.Equal(t, "sk-secret", cfg.Inference.APIKey)
	assert.Equal(t, "https://eth.example/v2/key", cfg.Providers.Onchain.RPC["ethereum"])
	out.Notify.Events[0] = "mutated"
	assert.Equal(t, "escalate", cfg.Notify.Events[0])
}
