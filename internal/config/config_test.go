package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("ENVIRONMENT", "docker")
	t.Setenv("SESSION_SECRET", "test-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Form.SeatsMin)
	assert.Equal(t, 4, cfg.Form.SeatsMax)
	assert.Equal(t, 4, cfg.Form.SeatsDefault)
	assert.Equal(t, 10, cfg.Ranking.GamesLimit)
	assert.Equal(t, "memory", cfg.Audit.Driver)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: development
ranking:
  base_url: http://ranking.internal:5000/
  timeout: 3s
form:
  seats_min: 2
  seats_max: 6
  seats_default: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("ENVIRONMENT", "docker")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("GAMES_LIMIT", "25")
	t.Setenv("RANKING_TIMEOUT", "7s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://ranking.internal:5000", cfg.Ranking.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Ranking.Timeout)
	assert.Equal(t, 6, cfg.Form.SeatsMax)
	assert.Equal(t, 25, cfg.Ranking.GamesLimit)
	assert.Equal(t, "docker", cfg.Environment)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"inverted seat range", func(c *Config) { c.Form.SeatsMin, c.Form.SeatsMax = 4, 2 }, true},
		{"default outside range", func(c *Config) { c.Form.SeatsDefault = 9 }, true},
		{"postgres without dsn", func(c *Config) { c.Audit.Driver = "postgres" }, true},
		{"unknown driver", func(c *Config) { c.Audit.Driver = "mongo" }, true},
		{"production without secret", func(c *Config) { c.Environment = "production" }, true},
		{"unknown session store", func(c *Config) { c.Session.Store = "disk" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInvalidEnvNumber(t *testing.T) {
	t.Setenv("ENVIRONMENT", "docker")
	t.Setenv("SEATS_MAX", "four")

	_, err := Load("")
	assert.Error(t, err)
}
