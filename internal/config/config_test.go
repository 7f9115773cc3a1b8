package config

import (
	"os"
	"path/filepath"
	"testing"

	env "github.com/Netflix/go-env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, DeviceBrowser, cfg.Device.Mode)
	assert.Equal(t, 18, cfg.Calculator.CandleLightingMinutes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `listen: ":9000"
log_level: LOUD
store:
  driver: SQLite
  path: /tmp/prefs.db
device:
  mode: teleport
feed:
  days: 5000
basic_auth:
  username: gabbai
  password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/prefs.db", cfg.Store.Path)
	assert.Equal(t, DeviceBrowser, cfg.Device.Mode)
	assert.Equal(t, 366, cfg.Feed.Days)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSeconds)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "gabbai", cfg.BasicAuth.Username)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(env.EnvSet{
		"LUACH_LISTEN":                  "0.0.0.0:80",
		"LUACH_STORE_DRIVER":            "sqlite",
		"LUACH_DEVICE_MODE":             "static",
		"LUACH_DEVICE_LATITUDE":         "31.7683",
		"LUACH_CANDLE_LIGHTING_MINUTES": "40",
		"LUACH_ZIPCODES_API_KEY":        "k",
		"LUACH_BASIC_AUTH_USERNAME":     "u",
		"LUACH_BASIC_AUTH_PASSWORD":     "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:80", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, DeviceStatic, cfg.Device.Mode)
	assert.Equal(t, 31.7683, cfg.Device.Latitude)
	assert.Equal(t, 40, cfg.Calculator.CandleLightingMinutes)
	assert.Equal(t, "k", cfg.Geocode.ZipCodesAPIKey)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "p", cfg.BasicAuth.Password)

	// Unset variables leave file values alone.
	assert.Equal(t, "./var/luach-prefs.json", cfg.Store.Path)

	assert.Error(t, cfg.ApplyEnv(env.EnvSet{"LUACH_FEED_DAYS": "many"}))
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Setenv("LUACH_LISTEN", "127.0.0.1:9999")
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Listen)

	// The override is not persisted.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "9999")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Catalog.URL = "https://example.com/zmanim.json"
	cfg.Feed.Rule = "FREQ=WEEKLY;BYDAY=FR"
	require.NoError(t, cfg.Save(path))

	again, err := readOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
