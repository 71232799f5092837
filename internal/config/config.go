// Package config loads service configuration from an optional YAML file,
// an optional .env file and the process environment, in increasing precedence.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"flagroutes/internal/flags"
	"flagroutes/internal/logging"
	"flagroutes/internal/store"
	"flagroutes/internal/webhooks"
)

type Config struct {
	Port      string          `yaml:"port"`
	Database  Database        `yaml:"database"`
	Redis     Redis           `yaml:"redis"`
	RateLimit RateLimit       `yaml:"rateLimit"`
	Log       logging.Config  `yaml:"log"`
	Flags     flags.Options   `yaml:"flags"`
	Webhooks  webhooks.Config `yaml:"webhooks"`
}

type Database struct {
	// Driver is postgres, mysql or sqlite; detected from URL when empty.
	Driver string `yaml:"driver"`
	// URL empty selects the in-memory store.
	URL string `yaml:"url"`
	// Migrate installs the owned tables at startup.
	Migrate bool `yaml:"migrate"`
}

type Redis struct {
	// URL empty selects the in-process event broker.
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		Port:      "8080",
		Database:  Database{Migrate: true},
		Redis:     Redis{Prefix: "flagroutes:"},
		RateLimit: RateLimit{RPS: 20, Burst: 40},
		Log:       logging.DefaultConfig(),
		Flags:     flags.DefaultOptions(),
		Webhooks:  webhooks.Config{MaxAttempts: 5, QueueSize: 1024},
	}
}

// Load reads path (skipped when empty), then .env if present, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	// Missing .env is fine; variables may come from the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("DB_DRIVER", &c.Database.Driver)
	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_PREFIX", &c.Redis.Prefix)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("WEBHOOK_SECRET", &c.Webhooks.Secret)

	if v := getenv("WEBHOOK_URLS"); v != "" {
		c.Webhooks.URLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Webhooks.URLs = append(c.Webhooks.URLs, u)
			}
		}
	}
	if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "WEBHOOK_MAX_ATTEMPTS")
		}
		c.Webhooks.MaxAttempts = n
	}
	if v := getenv("WEBHOOK_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "WEBHOOK_QUEUE_SIZE")
		}
		c.Webhooks.QueueSize = n
	}

	if v := getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "DB_MIGRATE")
		}
		c.Database.Migrate = b
	}
	if v := getenv("FLAGS_ADDON_QUANTITIES_ADDITIVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "FLAGS_ADDON_QUANTITIES_ADDITIVE")
		}
		c.Flags.AddonQuantitiesAdditive = b
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "RATE_RPS")
		}
		c.RateLimit.RPS = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "RATE_BURST")
		}
		c.RateLimit.Burst = n
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Errorf("port %q is not a number", c.Port)
	}
	if c.Database.Driver != "" {
		if _, ok := store.ParseDialect(c.Database.Driver); !ok {
			return errors.Errorf("unsupported database driver %q", c.Database.Driver)
		}
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit must not be negative")
	}
	for _, u := range c.Webhooks.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return errors.Errorf("webhook url %q must be http or https", u)
		}
	}
	return nil
}

// Dialect resolves the configured or detected SQL dialect.
func (d Database) Dialect() store.Dialect {
	if dl, ok := store.ParseDialect(d.Driver); ok {
		return dl
	}
	return store.DetectDialect(d.URL)
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }
