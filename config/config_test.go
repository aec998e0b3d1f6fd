package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadSettings_Defaults tests the built-in defaults with no config file
func TestLoadSettings_Defaults(t *testing.T) {
	cfg, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Review.Workers)
	assert.True(t, cfg.Review.StrictSecurity)
	assert.Equal(t, "cireview-jobs.db", cfg.Jobs.DatabaseFile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.SAP.Configured())
}

// TestLoadSettings_FromFile tests loading a YAML configuration file
func TestLoadSettings_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  debug: true
sap:
  base_url: https://tenant.example.com/api/v1
  auth_url: https://tenant.authentication.example.com
  client_id: sb-client
  client_secret: secret-value
review:
  workers: 2
  strict_security: false
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.True(t, cfg.SAP.Configured())
	assert.Equal(t, "sb-client", cfg.SAP.ClientID)
	assert.Equal(t, 2, cfg.Review.Workers)
	assert.False(t, cfg.Review.StrictSecurity)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// TestLoadSettings_EnvOverride tests that environment variables win over files
func TestLoadSettings_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("CIREVIEW_SERVER_PORT", "7070")

	cfg, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

// TestValidateSettings tests validation failures
func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "BadPort",
			mutate:  func(c *Settings) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "ZeroWorkers",
			mutate:  func(c *Settings) { c.Review.Workers = 0 },
			wantErr: "workers must be at least 1",
		},
		{
			name:    "PartialTenant",
			mutate:  func(c *Settings) { c.SAP.BaseURL = "https://tenant.example.com" },
			wantErr: "incomplete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Settings{}
			cfg.Server.Port = 8095
			cfg.Review.Workers = 4
			tt.mutate(cfg)

			err := ValidateSettings(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
