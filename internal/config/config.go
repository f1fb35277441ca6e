// Package config loads the formwizard CLI configuration from YAML and builds
// the zap logger it describes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreHTTP   = "http"
	StoreSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the CLI configuration.
type Config struct {
	Store       StoreConfig   `yaml:"store"`
	AssetBase   string        `yaml:"assetBase"`
	Strict      bool          `yaml:"strict"`
	Definitions string        `yaml:"definitions"`
	OpenAPI     string        `yaml:"openapi"`
	Snapshots   string        `yaml:"snapshots"`
	RefData     RefDataConfig `yaml:"refdata"`
	Server      ServerConfig  `yaml:"server"`
	Logging     LoggingConfig `yaml:"logging"`
}

// StoreConfig selects the entity store submissions go to.
type StoreConfig struct {
	Kind    string            `yaml:"kind"`
	URL     string            `yaml:"url"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers"`
	Timeout string            `yaml:"timeout"`
}

// RefDataConfig controls reference data loading and caching.
type RefDataConfig struct {
	File string `yaml:"file"`
	TTL  string `yaml:"ttl"`
}

// ServerConfig is used by the serve command.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	MaxUpload int64  `yaml:"maxUpload"`
}

// LoggingConfig picks the zap preset and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Kind:    StoreMemory,
			Timeout: "15s",
		},
		RefData: RefDataConfig{TTL: "10m"},
		Server:  ServerConfig{Addr: ":8080", MaxUpload: 32 << 20},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment variables FORMWIZARD_STORE_URL, FORMWIZARD_STORE_KIND and
// FORMWIZARD_LOG_LEVEL override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FORMWIZARD_STORE_URL"); v != "" {
		c.Store.URL = v
		if c.Store.Kind == StoreMemory {
			c.Store.Kind = StoreHTTP
		}
	}
	if v := getenv("FORMWIZARD_STORE_KIND"); v != "" {
		c.Store.Kind = v
	}
	if v := getenv("FORMWIZARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var problems []string
	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	switch c.Store.Kind {
	case StoreMemory:
	case StoreHTTP:
		if c.Store.URL == "" {
			problems = append(problems, "store.url is required for the http store")
		}
	case StoreSQLite:
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite store")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.kind %q is not one of memory, http, sqlite", c.Store.Kind))
	}
	if _, err := parseDuration(c.Store.Timeout); err != nil {
		problems = append(problems, "store.timeout: "+err.Error())
	}
	if _, err := parseDuration(c.RefData.TTL); err != nil {
		problems = append(problems, "refdata.ttl: "+err.Error())
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logging.level %q is not a zap level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not console or json", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// StoreTimeout returns the HTTP store timeout, or zero for none.
func (c *Config) StoreTimeout() time.Duration {
	d, _ := parseDuration(c.Store.Timeout)
	return d
}

// LocalDB returns the SQLite file holding snapshots and imported reference
// data: the store itself for the sqlite kind, otherwise the snapshots path.
// An empty result means no local database.
func (c *Config) LocalDB() string {
	if c.Store.Kind == StoreSQLite {
		return c.Store.Path
	}
	return c.Snapshots
}

// RefDataTTL returns the reference data cache lifetime.
func (c *Config) RefDataTTL() time.Duration {
	d, _ := parseDuration(c.RefData.TTL)
	return d
}

// Logger builds a zap logger: the development preset for console output,
// the production preset for json.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	if c.Logging.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}
	return logger, nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
