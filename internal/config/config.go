// Package config loads service configuration from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"hiberry/internal/model"
	"hiberry/internal/planner"
)

// Environments accepted in APP_ENVIRONMENT.
var Environments = []string{"local", "development", "qa", "uat", "prod"}

type Config struct {
	Environment string         `yaml:"environment"`
	Port        string         `yaml:"port"`
	Database    DatabaseConfig `yaml:"database"`
	RedisURL    string         `yaml:"redis_url"`
	Auth        AuthConfig     `yaml:"auth"`
	Log         LogConfig      `yaml:"log"`
	Geocoder    GeocoderConfig `yaml:"geocoder"`
	Planner     PlannerConfig  `yaml:"planner"`
	Shopify     ShopifyConfig  `yaml:"shopify"`
}

type DatabaseConfig struct {
	// Driver is "pgx" or "sqlite3"; empty URL selects the in-memory store.
	Driver  string `yaml:"driver"`
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type AuthConfig struct {
	// Mode is "dev", "hmac" or "none".
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmac_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GeocoderConfig struct {
	// Provider is "static" or "nominatim". Empty picks static in the local
	// environment and nominatim elsewhere.
	Provider     string `yaml:"provider"`
	URL          string `yaml:"url"`
	UserAgent    string `yaml:"user_agent"`
	CountryCodes string `yaml:"country_codes"`
}

// ShopifyConfig enables the storefront order webhook when WebhookSecret is
// set.
type ShopifyConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

type PlannerConfig struct {
	Origin         model.Coordinate `yaml:"origin"`
	Depot          model.Coordinate `yaml:"depot"`
	ShiftCapacity  int              `yaml:"shift_capacity"`
	WindowCapacity int              `yaml:"window_capacity"`
	DayCapacity    int              `yaml:"day_capacity"`
	ExactMaxStops  int              `yaml:"exact_max_stops"`
	TwoOptPasses   int              `yaml:"two_opt_passes"`
	Parallelism    int              `yaml:"parallelism"`
}

// Default is the configuration with nothing set.
func Default() Config {
	r := planner.DefaultRules()
	return Config{
		Environment: "local",
		Port:        "8080",
		Database:    DatabaseConfig{Driver: "pgx", Migrate: true},
		Auth:        AuthConfig{Mode: "dev"},
		Log:         LogConfig{Level: "info", Format: "json"},
		Planner: PlannerConfig{
			Origin:         r.Origin,
			Depot:          r.Depot,
			ShiftCapacity:  r.ShiftCapacity,
			WindowCapacity: r.WindowCapacity,
			DayCapacity:    r.DayCapacity,
			ExactMaxStops:  r.ExactMaxStops,
			TwoOptPasses:   r.TwoOptPasses,
			Parallelism:    len(planner.Drivers),
		},
	}
}

// Load reads path (skipped when empty) on top of Default, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("APP_ENVIRONMENT", &c.Environment)
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("REDIS_URL", &c.RedisURL)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("GEOCODER_PROVIDER", &c.Geocoder.Provider)
	str("GEOCODER_URL", &c.Geocoder.URL)
	str("SHOPIFY_WEBHOOK_SECRET", &c.Shopify.WebhookSecret)
	if v, ok := lookup("DB_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_MIGRATE: %w", err)
		}
		c.Database.Migrate = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if !validEnvironment(c.Environment) {
		errs = append(errs, fmt.Errorf("environment %q is not one of %s", c.Environment, strings.Join(Environments, "|")))
	}
	switch c.Auth.Mode {
	case "dev", "none":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth mode hmac requires AUTH_HMAC_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Auth.Mode))
	}
	switch c.Geocoder.Provider {
	case "", "static", "nominatim":
	default:
		errs = append(errs, fmt.Errorf("unknown geocoder provider %q", c.Geocoder.Provider))
	}
	switch c.Database.Driver {
	case "pgx", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	p := c.Planner
	if p.ShiftCapacity <= 0 || p.WindowCapacity < p.ShiftCapacity || p.DayCapacity < p.WindowCapacity {
		errs = append(errs, fmt.Errorf("planner capacities must satisfy 0 < shift <= window <= day, got %d/%d/%d", p.ShiftCapacity, p.WindowCapacity, p.DayCapacity))
	}
	if p.ExactMaxStops < 0 || p.ExactMaxStops > planner.MaxExactStops {
		errs = append(errs, fmt.Errorf("planner exact_max_stops must be within 0..%d", planner.MaxExactStops))
	}
	if p.TwoOptPasses < 0 {
		errs = append(errs, errors.New("planner two_opt_passes must not be negative"))
	}
	return errors.Join(errs...)
}

func validEnvironment(env string) bool {
	for _, e := range Environments {
		if e == env {
			return true
		}
	}
	return false
}

// GeocoderProvider resolves the empty provider for the environment.
func (c Config) GeocoderProvider() string {
	if c.Geocoder.Provider != "" {
		return c.Geocoder.Provider
	}
	if c.Environment == "local" {
		return "static"
	}
	return "nominatim"
}

// Rules turns the planner section into assignment rules.
func (c Config) Rules() planner.Rules {
	r := planner.DefaultRules()
	p := c.Planner
	r.Origin = p.Origin
	r.Depot = p.Depot
	r.ShiftCapacity = p.ShiftCapacity
	r.WindowCapacity = p.WindowCapacity
	r.DayCapacity = p.DayCapacity
	r.ExactMaxStops = p.ExactMaxStops
	r.TwoOptPasses = p.TwoOptPasses
	return r
}
