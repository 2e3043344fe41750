package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuhunt/listing-engine/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
marketplace:
  base_url: https://api.market.example.com
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":8085", cfg.Server.Address)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 200, cfg.Revalidation.PerModelCap)
	assert.Equal(t, 60*time.Second, cfg.Revalidation.DefaultTimeout)
	assert.Equal(t, 30*time.Second, cfg.Revalidation.ThrottleTTL)
	assert.Equal(t, 50, cfg.Marketplace.PageSize)
	assert.True(t, cfg.Cleanup.Enabled)
	assert.Equal(t, "45 3 * * *", cfg.Cleanup.Schedule)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  address: ":9000"
marketplace:
  base_url: https://api.market.example.com
  page_size: 25
revalidation:
  default_timeout: 2m
  per_model_cap: 500
redis:
  enabled: false
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 25, cfg.Marketplace.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Revalidation.DefaultTimeout)
	assert.Equal(t, 500, cfg.Revalidation.PerModelCap)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("ENGINE_MARKETPLACE_BASE_URL", "https://env.market.example.com")

	path := writeConfig(t, `
marketplace:
  base_url: https://file.market.example.com
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://env.market.example.com", cfg.Marketplace.BaseURL)
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
debug: true
`)

	_, err := config.Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "marketplace.base_url")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Database: config.DatabaseConfig{
				Host:     "localhost",
				Database: "listing_engine",
			},
			Marketplace: config.MarketplaceConfig{
				BaseURL:  "https://api.market.example.com",
				PageSize: 50,
			},
			Revalidation: config.RevalidationConfig{
				DefaultTimeout: time.Minute,
				PerModelCap:    200,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*config.Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *config.Config) { c.Database.Host = "" },
			wantErr: "database.host",
		},
		{
			name:    "missing database name",
			mutate:  func(c *config.Config) { c.Database.Database = "" },
			wantErr: "database.database",
		},
		{
			name:    "zero per-model cap",
			mutate:  func(c *config.Config) { c.Revalidation.PerModelCap = 0 },
			wantErr: "per_model_cap",
		},
		{
			name:    "zero run budget",
			mutate:  func(c *config.Config) { c.Revalidation.DefaultTimeout = 0 },
			wantErr: "default_timeout",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *config.Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
