package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults with key from environment", func(t *testing.T) {
		t.Setenv("ESL_VUSION_SUBSCRIPTION_KEY", "env-key")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "vusion-esl-driver", cfg.App.Name)
		assert.Equal(t, "127.0.0.1", cfg.App.Address)
		assert.Equal(t, 8080, cfg.App.Port)
		assert.Equal(t, "127.0.0.1:8080", cfg.App.ListenAddr())
		assert.Equal(t, "env-key", cfg.Vusion.SubscriptionKey)
		assert.Equal(t, "https://api-us.vusion.io/vlink-pro/v1", cfg.Vusion.BaseURL)
		assert.Equal(t, 60, cfg.Vusion.TimeoutSeconds)
		assert.Equal(t, 999, cfg.Delivery.MaxItemsPerBatch)
		assert.Equal(t, 10<<20, cfg.Delivery.MaxBytesPerBatch)
		assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
		assert.Equal(t, time.Second, cfg.Delivery.RetryDelay)
		assert.Equal(t, 2.0, cfg.Delivery.RetryMultiplier)
		assert.Equal(t, 4, cfg.Delivery.StoreConcurrency)
		assert.Equal(t, 10, cfg.Dispatch.Workers)
		assert.Equal(t, 5*time.Second, cfg.Dispatch.ShutdownGrace)
		assert.Equal(t, "memory", cfg.Idempotency.Backend)
		assert.False(t, cfg.Idempotency.Enabled)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "vusion-esl-driver", cfg.Telemetry.ServiceName)
		assert.Empty(t, cfg.Stores)
		assert.Zero(t, cfg.HTTP.RateLimitRPS)
		assert.Zero(t, cfg.HTTP.RateLimitBurst)
	})

	t.Run("missing subscription key", func(t *testing.T) {
		t.Setenv("ESL_VUSION_SUBSCRIPTION_KEY", "")

		_, err := Load("")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "SubscriptionKey")
	})

	t.Run("reads file and store tables", func(t *testing.T) {
		path := writeConfig(t, `
[app]
address = "0.0.0.0"
port = 9090

[log]
level = "DEBUG"
format = "json"

[vusion]
base_url = "https://api-eu.vusion.io/vlink-pro/v1/"
subscription_key = "file-key"
rate_limit_qps = 5

[http]
rate_limit_rps = 2.5

[delivery]
max_items_per_batch = 500
retry_delay = "250ms"

[idempotency]
enabled = true
backend = "redis"
ttl = "2m"

[[stores]]
source = "RS1"
target = "okimoto_corp_us.waianae_store"

[[stores]]
source = "RS2"
target = "okimoto_corp_us.kailua_store"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9090", cfg.App.ListenAddr())
		assert.False(t, cfg.App.IsLocalhostOnly())
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "https://api-eu.vusion.io/vlink-pro/v1", cfg.Vusion.BaseURL)
		assert.Equal(t, "file-key", cfg.Vusion.SubscriptionKey)
		assert.Equal(t, 5.0, cfg.Vusion.RateLimitQPS)
		assert.Equal(t, 2.5, cfg.HTTP.RateLimitRPS)
		assert.Equal(t, 3, cfg.HTTP.RateLimitBurst)
		assert.Equal(t, 500, cfg.Delivery.MaxItemsPerBatch)
		assert.Equal(t, 250*time.Millisecond, cfg.Delivery.RetryDelay)
		assert.True(t, cfg.Idempotency.Enabled)
		assert.Equal(t, "redis", cfg.Idempotency.Backend)
		assert.Equal(t, 2*time.Minute, cfg.Idempotency.TTL)
		assert.Equal(t, map[string]string{
			"RS1": "okimoto_corp_us.waianae_store",
			"RS2": "okimoto_corp_us.kailua_store",
		}, cfg.StoreTable())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[vusion]
subscription_key = "file-key"
`)
		t.Setenv("ESL_VUSION_SUBSCRIPTION_KEY", "env-key")
		t.Setenv("ESL_APP_PORT", "7070")
		t.Setenv("ESL_STORE_MAP", "RS1=okimoto_corp_us.waianae_store, RS3 = okimoto_corp_us.hauula_store")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "env-key", cfg.Vusion.SubscriptionKey)
		assert.Equal(t, 7070, cfg.App.Port)
		assert.Equal(t, "okimoto_corp_us.hauula_store", cfg.StoreTable()["RS3"])
		assert.Len(t, cfg.Stores, 2)
	})

	t.Run("explicit file that does not exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, `
[vusion]
subscription_key = "key"
base_url = "not a url"

[log]
format = "xml"
`)
		_, err := Load(path)
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "BaseURL")
		assert.Contains(t, err.Error(), "Format")
	})
}

func TestParseStoreMap(t *testing.T) {
	stores, err := parseStoreMap(" RS1=a , ,RS2=b")
	require.NoError(t, err)
	assert.Equal(t, []StoreMapping{{Source: "RS1", Target: "a"}, {Source: "RS2", Target: "b"}}, stores)

	stores, err = parseStoreMap("")
	require.NoError(t, err)
	assert.Empty(t, stores)

	_, err = parseStoreMap("RS1")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = parseStoreMap("=target")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate_DuplicateStore(t *testing.T) {
	cfg := &Config{Vusion: VusionConfig{SubscriptionKey: "k"}}
	cfg.Stores = []StoreMapping{{Source: "RS1", Target: "a"}, {Source: "RS1", Target: "b"}}
	applyDefaults(cfg)

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "RS1")
}

func TestAppConfig_IsLocalhostOnly(t *testing.T) {
	for addr, want := range map[string]bool{
		"":          true,
		"localhost": true,
		"LOCALHOST": true,
		"127.0.0.1": true,
		"::1":       true,
		"0.0.0.0":   false,
		"10.0.0.5":  false,
	} {
		c := AppConfig{Address: addr, Port: 8080}
		assert.Equal(t, want, c.IsLocalhostOnly(), addr)
	}

	c := AppConfig{Address: "localhost", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", c.ListenAddr())
}
