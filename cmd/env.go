package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/methods"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/resilience"
	"github.com/sells-group/rectify-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "rectify.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies the schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initProvider builds the ephemeris chain: backend, then rate limiting for
// remote backends, then the snapshot cache.
func initProvider() (astro.Provider, error) {
	var p astro.Provider
	switch cfg.Astro.Provider {
	case "", "approx":
		p = astro.NewApproxProvider()
	case "http":
		if cfg.Astro.BaseURL == "" {
			return nil, eris.New("astro.base_url is required for the http provider (RECTIFY_ASTRO_BASE_URL)")
		}
		p = astro.NewHTTPProvider(astro.HTTPOptions{
			BaseURL: cfg.Astro.BaseURL,
			APIKey:  cfg.Astro.APIKey,
			Timeout: time.Duration(cfg.Astro.TimeoutSecs) * time.Second,
		})
		if cfg.Astro.RatePerSecond > 0 {
			p = astro.NewLimitedProvider(p, cfg.Astro.RatePerSecond, cfg.Astro.Burst)
		}
	default:
		return nil, eris.Errorf("unsupported astro provider: %s", cfg.Astro.Provider)
	}

	if cfg.Astro.CacheSize > 0 {
		p = astro.NewCachedProvider(p, cfg.Astro.CacheSize, time.Duration(cfg.Astro.CacheTTLMins)*time.Minute)
	}
	return p, nil
}

// highPrecision reports whether the configured backend is a full ephemeris.
func highPrecision() bool {
	return cfg.Astro.Provider == "http"
}

// initEngine wires the reference methods over the configured provider.
func initEngine() (*rectify.Engine, error) {
	provider, err := initProvider()
	if err != nil {
		return nil, err
	}
	reg, err := methods.Default(provider, nil)
	if err != nil {
		return nil, eris.Wrap(err, "register methods")
	}

	var opts []rectify.Option
	if cfg.Engine.Guard {
		opts = append(opts, rectify.WithGuard(resilience.NewGuard(cfg.Resilience)))
	}

	zap.L().Debug("engine ready",
		zap.String("provider", cfg.Astro.Provider),
		zap.Strings("methods", reg.Names()),
		zap.Bool("guard", cfg.Engine.Guard),
	)
	return rectify.NewEngine(reg, opts...), nil
}

// loadConfiguration resolves profile and overrides for a run over birth.
// Flag values win over the config file.
func loadConfiguration(profile, overridesPath string, birth *model.BirthData) (rectify.Configuration, rectify.ValidationResult, error) {
	if profile == "" {
		profile = cfg.Rectify.Profile
	}
	if overridesPath == "" {
		overridesPath = cfg.Rectify.OverridesPath
	}

	var overrides *rectify.Overrides
	if overridesPath != "" {
		o, err := rectify.LoadOverrides(overridesPath)
		if err != nil {
			return rectify.Configuration{}, rectify.ValidationResult{}, err
		}
		overrides = o
	}
	overrides = overrides.WithCapabilities(rectify.RuntimeCapabilities(birth, highPrecision()))

	return rectify.CreateConfiguration(overrides, rectify.Profile(profile))
}
