package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/whistlectl/internal/config"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "whistlectl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath
}

func load(t *testing.T, opts ...config.Option) (*config.Config, error) {
	t.Helper()

	base := []config.Option{config.WithArgs(nil), config.WithDotEnv(false)}
	return config.Load(append(base, opts...)...)
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
username = "owner@example.com"
password = "secret"
refresh = 60000
bindings = "/etc/whistlectl/bindings.yaml"
log_level = "debug"
concurrency = 2
listen = ":8080"

[state]
enabled = true
db_path = "/path/to/state.db"

[redis]
addr = "localhost:6379"
channel = "dogs"
`)

	t.Setenv("WHISTLECTL_CONFIG", configPath)

	cfg, err := load(t)
	require.NoError(t, err)

	username, password := cfg.GetCredentials()
	assert.Equal(t, "owner@example.com", username)
	assert.Equal(t, "secret", password)
	assert.Equal(t, int64(60000), cfg.GetRefresh(), "Expected Refresh 60000")
	assert.Equal(t, "/etc/whistlectl/bindings.yaml", cfg.GetBindingsFile())
	assert.Equal(t, "debug", cfg.GetLogLevel(), "Expected LogLevel debug")
	assert.Equal(t, 2, cfg.GetConcurrency())
	assert.Equal(t, ":8080", cfg.GetListen())
	assert.True(t, cfg.State.Enabled)
	assert.Equal(t, "/path/to/state.db", cfg.State.DBPath)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "dogs", cfg.Redis.Channel)
	assert.Equal(t, config.DefaultRedisPrefix, cfg.Redis.Prefix)
	assert.Equal(t, configPath, cfg.ConfigFile())
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("WHISTLECTL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := load(t)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, int64(config.DefaultRefresh), cfg.Refresh, "Expected default Refresh 900000")
	assert.Equal(t, config.DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.Equal(t, config.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, config.DefaultRequestTimeout, cfg.RequestTimeout)
	assert.False(t, cfg.State.Enabled)
	assert.Equal(t, config.DefaultStateDBPath, cfg.State.DBPath)
	assert.Empty(t, cfg.Listen)
	assert.Empty(t, cfg.Username)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("WHISTLECTL_CONFIG", configPath)

	_, err := load(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("WHISTLECTL_CONFIG", configPath)

	_, err := load(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestInvalidRefresh(t *testing.T) {
	configPath := writeConfig(t, `
refresh = 0
`)

	_, err := load(t, config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
username = "file@example.com"
`)
	t.Setenv("WHISTLECTL_USERNAME", "env@example.com")
	t.Setenv("WHISTLECTL_REDIS_ADDR", "redis:6379")

	cfg, err := load(t, config.WithConfigFile(configPath))
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.Username)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("WHISTLECTL_CONFIG", "")

	cfg, err := config.Load(
		config.WithDotEnv(false),
		config.WithArgs([]string{"--log-level", "debug", "--refresh", "5000"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.Equal(t, int64(5000), cfg.Refresh)
}

func TestWatchRequiresFile(t *testing.T) {
	t.Setenv("WHISTLECTL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := load(t)
	require.NoError(t, err)

	err = cfg.Watch(t.Context(), func(*config.Config) {})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWatchConfig))
}

func TestLogLevelNamesMatchLogger(t *testing.T) {
	t.Setenv("WHISTLECTL_CONFIG", "")

	for _, level := range []string{"debug", "info", "warn", "warning", "error", "WARN"} {
		cfg, err := load(t, config.WithArgs([]string{"--log-level", level}))
		require.NoError(t, err, level)

		_, err = logger.ParseLevel(cfg.LogLevel)
		assert.NoError(t, err, level)
	}

	_, err := load(t, config.WithArgs([]string{"--log-level", "verbose"}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}
