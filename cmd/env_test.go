package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/config"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/resilience"
)

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitProvider(t *testing.T) {
	tests := []struct {
		name    string
		astro   config.AstroConfig
		want    any
		wantErr string
	}{
		{name: "approx uncached", astro: config.AstroConfig{Provider: "approx"}, want: &astro.ApproxProvider{}},
		{name: "empty means approx", astro: config.AstroConfig{}, want: &astro.ApproxProvider{}},
		{name: "approx cached", astro: config.AstroConfig{Provider: "approx", CacheSize: 100, CacheTTLMins: 5}, want: &astro.CachedProvider{}},
		{name: "http uncached", astro: config.AstroConfig{Provider: "http", BaseURL: "http://ephemeris.local"}, want: &astro.HTTPProvider{}},
		{name: "http limited", astro: config.AstroConfig{Provider: "http", BaseURL: "http://ephemeris.local", RatePerSecond: 5, Burst: 1}, want: &astro.LimitedProvider{}},
		{name: "http needs base url", astro: config.AstroConfig{Provider: "http"}, wantErr: "base_url is required"},
		{name: "unknown", astro: config.AstroConfig{Provider: "swiss"}, wantErr: "unsupported astro provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfig(t, &config.Config{Astro: tt.astro})
			p, err := initProvider()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestHighPrecision(t *testing.T) {
	withConfig(t, &config.Config{Astro: config.AstroConfig{Provider: "http"}})
	assert.True(t, highPrecision())
	cfg.Astro.Provider = "approx"
	assert.False(t, highPrecision())
}

func TestInitEngine(t *testing.T) {
	withConfig(t, &config.Config{
		Astro:      config.AstroConfig{Provider: "approx"},
		Engine:     config.EngineConfig{Guard: true},
		Resilience: resilience.GuardConfig{MaxAttempts: 2, FailureThreshold: 5},
	})
	engine, err := initEngine()
	require.NoError(t, err)
	assert.NotNil(t, engine)

	cfg.Astro.Provider = "swiss"
	_, err = initEngine()
	assert.Error(t, err)
}

func TestInitStore(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "runs.db"),
	}})
	st, err := openStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg.Store.Driver = "mongo"
	_, err = openStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestLoadConfiguration(t *testing.T) {
	withConfig(t, &config.Config{
		Astro:   config.AstroConfig{Provider: "approx"},
		Rectify: config.RectifyConfig{Profile: "balanced"},
	})

	t.Run("profile from config", func(t *testing.T) {
		rcfg, report, err := loadConfiguration("", "", testBirth())
		require.NoError(t, err)
		assert.True(t, report.IsValid)
		assert.Equal(t, rectify.ProfileBalanced, rcfg.Profile)
		assert.Equal(t, 49, rcfg.Algorithm.CandidateCount())
	})

	t.Run("flag wins over config", func(t *testing.T) {
		rcfg, _, err := loadConfiguration("relaxed", "", testBirth())
		require.NoError(t, err)
		assert.Equal(t, rectify.ProfileRelaxed, rcfg.Profile)
	})

	t.Run("overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overrides.yaml")
		require.NoError(t, os.WriteFile(path, []byte("weights:\n  A: 0.6\n  B: 0.4\nreplace_weights: true\n"), 0o600))
		rcfg, _, err := loadConfiguration("", path, testBirth())
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"A": 0.6, "B": 0.4}, rcfg.Weights)
	})

	t.Run("missing overrides file", func(t *testing.T) {
		_, _, err := loadConfiguration("", filepath.Join(t.TempDir(), "none.yaml"), testBirth())
		assert.Error(t, err)
	})

	t.Run("enhanced without capabilities", func(t *testing.T) {
		_, report, err := loadConfiguration("enhanced", "", testBirth())
		require.Error(t, err)
		assert.ErrorIs(t, err, rectify.ErrConfiguration)
		rules := make([]string, 0, len(report.Errors))
		for _, v := range report.Errors {
			rules = append(rules, v.Rule)
		}
		assert.Contains(t, rules, rectify.RuleMissingCapability)
	})

	t.Run("enhanced with events and full ephemeris", func(t *testing.T) {
		cfg.Astro.Provider = "http"
		t.Cleanup(func() { cfg.Astro.Provider = "approx" })

		birth := testBirth()
		birth.Events = []model.LifeEvent{{Kind: "marriage", Date: testEstimate.AddDate(28, 0, 0)}}
		rcfg, report, err := loadConfiguration("enhanced", "", birth)
		require.NoError(t, err, "errors: %v", report.Errors)
		assert.Equal(t, 13, rcfg.Algorithm.CandidateCount())
	})
}
