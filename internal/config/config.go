package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/rectify-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig            `yaml:"store" mapstructure:"store"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Engine     EngineConfig           `yaml:"engine" mapstructure:"engine"`
	Astro      AstroConfig            `yaml:"astro" mapstructure:"astro"`
	Resilience resilience.GuardConfig `yaml:"resilience" mapstructure:"resilience"`
	Rectify    RectifyConfig          `yaml:"rectify" mapstructure:"rectify"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// EngineConfig holds engine-wide settings that are not part of a
// rectification profile.
type EngineConfig struct {
	// SaveRuns persists every run to the store.
	SaveRuns bool `yaml:"save_runs" mapstructure:"save_runs"`
	// Guard wraps evaluator calls with retries and circuit breakers.
	Guard bool `yaml:"guard" mapstructure:"guard"`
}

// AstroConfig selects and tunes the astronomical backend.
type AstroConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	CacheSize     int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLMins  int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// RectifyConfig picks the default profile and an optional overrides file.
type RectifyConfig struct {
	Profile       string `yaml:"profile" mapstructure:"profile"`
	OverridesPath string `yaml:"overrides_path" mapstructure:"overrides_path"`
}

// MonitoringConfig configures run health checks and alert delivery.
type MonitoringConfig struct {
	// Enabled starts the background checker with the server.
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// MinAvgConfidence alerts when complete runs average below it.
	MinAvgConfidence float64 `yaml:"min_avg_confidence" mapstructure:"min_avg_confidence"`
	// MinRuns is the sample size below which no rate alert fires.
	MinRuns int `yaml:"min_runs" mapstructure:"min_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "rectify.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 60)
	v.SetDefault("engine.save_runs", false)
	v.SetDefault("engine.guard", true)
	v.SetDefault("astro.provider", "approx")
	v.SetDefault("astro.base_url", "")
	v.SetDefault("astro.api_key", "")
	v.SetDefault("astro.timeout_secs", 10)
	v.SetDefault("astro.rate_per_second", 10.0)
	v.SetDefault("astro.burst", 5)
	v.SetDefault("astro.cache_size", 10_000)
	v.SetDefault("astro.cache_ttl_mins", 60)
	v.SetDefault("resilience.timeout_ms", 0)
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 50)
	v.SetDefault("resilience.max_backoff_ms", 1000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.2)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown_secs", 30)
	v.SetDefault("rectify.profile", "balanced")
	v.SetDefault("rectify.overrides_path", "")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_avg_confidence", 50.0)
	v.SetDefault("monitoring.min_runs", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "run",
// "serve" or "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run", "serve", "store":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Astro.Provider {
	case "approx":
	case "http":
		if c.Astro.BaseURL == "" {
			problems = append(problems, "astro.base_url is required for the http provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("astro.provider must be approx or http, got %q", c.Astro.Provider))
	}
	if c.Astro.RatePerSecond < 0 {
		problems = append(problems, "astro.rate_per_second must be >= 0")
	}
	if c.Astro.CacheSize < 0 {
		problems = append(problems, "astro.cache_size must be >= 0")
	}

	if mode == "store" || c.Engine.SaveRuns {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required")
			}
		default:
			problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if mode == "serve" && c.Monitoring.Enabled {
		if c.Monitoring.LookbackWindowHours <= 0 {
			problems = append(problems, "monitoring.lookback_window_hours must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
		if c.Monitoring.MinAvgConfidence < 0 || c.Monitoring.MinAvgConfidence > 100 {
			problems = append(problems, "monitoring.min_avg_confidence must be between 0 and 100")
		}
	}

	if c.Resilience.MaxAttempts < 0 || c.Resilience.FailureThreshold < 0 {
		problems = append(problems, "resilience.max_attempts and resilience.failure_threshold must be >= 0")
	}
	if c.Resilience.JitterFraction < 0 || c.Resilience.JitterFraction > 1 {
		problems = append(problems, "resilience.jitter_fraction must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
