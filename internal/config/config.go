package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"omrzen/internal/app"
	"omrzen/internal/domain"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"required,numeric"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=pretty json"`
	} `yaml:"log"`
	Storage struct {
		Backend string `yaml:"backend" validate:"oneof=memory sqlite redis postgres"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		Prefix   string `yaml:"prefix"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Test TestSettings `yaml:"test"`
}

// TestSettings bounds and prefills test configurations.
type TestSettings struct {
	MinQuestions int    `yaml:"minQuestions" validate:"gte=1"`
	MaxQuestions int    `yaml:"maxQuestions" validate:"gtefield=MinQuestions"`
	MaxMinutes   int    `yaml:"maxMinutes" validate:"gte=1"`
	TickInterval string `yaml:"tickInterval"`
	Defaults     struct {
		QuestionCount int     `yaml:"questionCount"`
		PositiveMarks float64 `yaml:"positiveMarks"`
		NegativeMarks float64 `yaml:"negativeMarks"`
		TimeInMinutes int     `yaml:"timeInMinutes"`
	} `yaml:"defaults"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "pretty"
	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.Path = "omrzen.db"
	cfg.Redis.Prefix = "omrzen"
	cfg.Redis.TTL = "720h"

	b := app.DefaultBounds()
	cfg.Test.MinQuestions = b.MinQuestions
	cfg.Test.MaxQuestions = b.MaxQuestions
	cfg.Test.MaxMinutes = b.MaxMinutes
	cfg.Test.TickInterval = "1s"
	cfg.Test.Defaults.QuestionCount = 10
	cfg.Test.Defaults.PositiveMarks = 4
	cfg.Test.Defaults.NegativeMarks = 1
	cfg.Test.Defaults.TimeInMinutes = 30
	return cfg
}

// Load reads YAML config from path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"PORT", &cfg.Server.Port},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"STORAGE_BACKEND", &cfg.Storage.Backend},
		{"STORAGE_PATH", &cfg.Storage.Path},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"POSTGRES_URL", &cfg.Postgres.URL},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks struct tags and cross-field requirements.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("invalid config: redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("invalid config: postgres.url is required for the postgres backend")
		}
	}
	if err := app.NewSessionStore(nil, c.Bounds()).ValidateConfiguration(c.DefaultTest()); err != nil {
		return fmt.Errorf("invalid config: test.defaults: %w", err)
	}
	return nil
}

// Bounds converts the test settings for the session store.
func (c Config) Bounds() app.Bounds {
	return app.Bounds{
		MinQuestions: c.Test.MinQuestions,
		MaxQuestions: c.Test.MaxQuestions,
		MaxMinutes:   c.Test.MaxMinutes,
	}
}

// DefaultTest is the configuration offered when the user does not pick one.
func (c Config) DefaultTest() domain.TestConfiguration {
	d := c.Test.Defaults
	return domain.TestConfiguration{
		QuestionCount: d.QuestionCount,
		PositiveMarks: d.PositiveMarks,
		NegativeMarks: d.NegativeMarks,
		TimeInMinutes: d.TimeInMinutes,
	}
}

// DurationOr parses a duration string or returns the fallback if empty or malformed.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
