package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

// NOTE: the YAML file is created with defaults on first run and always
// written with 0600 permissions. LUACH_* environment variables override
// whatever the file says but are never written back.

// Device location modes.
const (
	DeviceBrowser  = "browser"
	DeviceStatic   = "static"
	DeviceDisabled = "disabled"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StoreConfig selects where preferences are persisted.
type StoreConfig struct {
	// Driver is "file" (JSON document), "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver" env:"LUACH_STORE_DRIVER"`
	Path   string `yaml:"path" json:"path" env:"LUACH_STORE_PATH"`
}

// GeocodeConfig configures zip code and reverse lookups.
type GeocodeConfig struct {
	// ZipTable is a JSON or GeoNames TSV file consulted before any
	// network provider. Optional.
	ZipTable string `yaml:"zip_table" json:"zip_table" env:"LUACH_ZIP_TABLE"`
	// NominatimURL overrides the public OpenStreetMap endpoint.
	NominatimURL string `yaml:"nominatim_url" json:"nominatim_url" env:"LUACH_NOMINATIM_URL"`
	// ZipCodesAPIKey enables the zip-codes.com provider.
	ZipCodesAPIKey string `yaml:"zipcodes_api_key" json:"-" env:"LUACH_ZIPCODES_API_KEY"`
	// GeoNamesUsername enables the GeoNames provider.
	GeoNamesUsername string `yaml:"geonames_username" json:"geonames_username" env:"LUACH_GEONAMES_USERNAME"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" json:"timeout_seconds" env:"LUACH_GEOCODE_TIMEOUT_SECONDS"`
}

// DeviceConfig selects where "use my location" gets its fix.
type DeviceConfig struct {
	// Mode is "browser" (fix pushed by the page), "static" or "disabled".
	Mode      string  `yaml:"mode" json:"mode" env:"LUACH_DEVICE_MODE"`
	Latitude  float64 `yaml:"latitude" json:"latitude" env:"LUACH_DEVICE_LATITUDE"`
	Longitude float64 `yaml:"longitude" json:"longitude" env:"LUACH_DEVICE_LONGITUDE"`
}

// CalculatorConfig tunes the built-in calculator.
type CalculatorConfig struct {
	// CandleLightingMinutes before sunset. Jerusalem custom is 40.
	CandleLightingMinutes int `yaml:"candle_lighting_minutes" json:"candle_lighting_minutes" env:"LUACH_CANDLE_LIGHTING_MINUTES"`
}

// CatalogConfig points at an optional remote zmanim list.
type CatalogConfig struct {
	URL      string `yaml:"url" json:"url" env:"LUACH_CATALOG_URL"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir" env:"LUACH_CATALOG_CACHE_DIR"`
}

// FeedConfig shapes the iCalendar feed.
type FeedConfig struct {
	Days int `yaml:"days" json:"days" env:"LUACH_FEED_DAYS"`
	// Rule is an optional RRULE narrowing the days, e.g. FREQ=WEEKLY;BYDAY=FR.
	Rule string `yaml:"rule" json:"rule" env:"LUACH_FEED_RULE"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen" env:"LUACH_LISTEN"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"LUACH_LOG_LEVEL"`

	Store      StoreConfig      `yaml:"store" json:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" json:"geocode"`
	Device     DeviceConfig     `yaml:"device" json:"device"`
	Calculator CalculatorConfig `yaml:"calculator" json:"calculator"`
	Catalog    CatalogConfig    `yaml:"catalog" json:"catalog"`
	Feed       FeedConfig       `yaml:"feed" json:"feed"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Store: StoreConfig{
			Driver: "file",
			Path:   "./var/luach-prefs.json",
		},
		Geocode: GeocodeConfig{
			TimeoutSeconds: 10,
		},
		Device: DeviceConfig{
			Mode: DeviceBrowser,
		},
		Calculator: CalculatorConfig{
			CandleLightingMinutes: 18,
		},
		Catalog: CatalogConfig{
			CacheDir: "./var/catalog-cache",
		},
		Feed: FeedConfig{
			Days: 7,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}

	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.Path == "" && c.Store.Driver != "memory" {
		c.Store.Path = def.Store.Path
	}

	if c.Geocode.TimeoutSeconds <= 0 {
		c.Geocode.TimeoutSeconds = def.Geocode.TimeoutSeconds
	}

	switch strings.ToLower(c.Device.Mode) {
	case DeviceBrowser, DeviceStatic, DeviceDisabled:
		c.Device.Mode = strings.ToLower(c.Device.Mode)
	default:
		// Unknown value; the browser mode works on any board with a page open.
		c.Device.Mode = DeviceBrowser
	}

	if c.Calculator.CandleLightingMinutes <= 0 {
		c.Calculator.CandleLightingMinutes = def.Calculator.CandleLightingMinutes
	}
	if c.Catalog.CacheDir == "" {
		c.Catalog.CacheDir = def.Catalog.CacheDir
	}
	if c.Feed.Days <= 0 {
		c.Feed.Days = def.Feed.Days
	}
	if c.Feed.Days > 366 {
		c.Feed.Days = 366
	}
}

// ApplyEnv overrides fields from the given environment set.
func (c *Config) ApplyEnv(es env.EnvSet) error {
	if err := env.Unmarshal(es, c); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if user, pass := es["LUACH_BASIC_AUTH_USERNAME"], es["LUACH_BASIC_AUTH_PASSWORD"]; user != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written (0600, parent
//     directory 0700) and returned.
//   - Otherwise the YAML is decoded.
//   - Environment overrides are applied and defaults normalized either way.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := readOrCreate(path)
	if cfg == nil {
		return nil, err
	}

	es, envErr := env.EnvironToEnvSet(os.Environ())
	if envErr != nil {
		return cfg, envErr
	}
	if envErr := cfg.ApplyEnv(es); envErr != nil {
		return cfg, envErr
	}
	cfg.Normalize()
	return cfg, err
}

func readOrCreate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename, with 0600
// permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".luachboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
