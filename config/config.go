// Package config provides configuration management for the CI Review service.
//
// This package handles loading configuration from multiple sources with proper precedence:
//   - YAML configuration files
//   - Environment variables (configurable prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (set via SetDefaults)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.cireview/config.yaml, /etc/cireview/config.yaml)
//  3. .env files
//  4. Environment variables (configurable prefix, default: CIREVIEW_)
//
// # Usage Example
//
//	cfg, err := config.LoadSettings("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use the prefix and underscores for nested keys:
//   - CIREVIEW_SERVER_PORT=8095
//   - CIREVIEW_SAP_BASE_URL=https://tenant.it-cpi.cfapps.eu10.hana.ondemand.com/api/v1
//   - CIREVIEW_SECURITY_JWT_SECRET=...
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "CIREVIEW"

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8095)
	Port int `mapstructure:"port"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging
	Debug bool `mapstructure:"debug"`
}

// SAPConfig contains the SAP Integration Suite tenant connection settings.
// All four values are needed for tenant access; when they are absent the
// service runs in local-only mode and the tenant endpoints answer 503.
type SAPConfig struct {
	// BaseURL is the tenant API root, e.g.
	// https://tenant.it-cpi.cfapps.eu10.hana.ondemand.com/api/v1
	BaseURL string `mapstructure:"base_url"`

	// AuthURL is the OAuth token service root of the tenant subaccount
	AuthURL string `mapstructure:"auth_url"`

	// ClientID for the OAuth client credentials grant
	ClientID string `mapstructure:"client_id"`

	// ClientSecret for the OAuth client credentials grant
	ClientSecret string `mapstructure:"client_secret"`
}

// Configured reports whether a tenant connection is fully specified.
func (c *SAPConfig) Configured() bool {
	return c.BaseURL != "" && c.AuthURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// ReviewConfig contains review pipeline settings.
type ReviewConfig struct {
	// GuidelinesFile is a YAML policy file; empty means the built-in policy
	GuidelinesFile string `mapstructure:"guidelines_file"`

	// Workers bounds concurrent artifact analysis in batch reviews
	Workers int `mapstructure:"workers"`

	// StrictSecurity fails artifacts that call external services without
	// any detectable authentication
	StrictSecurity bool `mapstructure:"strict_security"`

	// DownloadDir is where tenant artifacts are stored before analysis
	DownloadDir string `mapstructure:"download_dir"`
}

// JobsConfig contains job persistence settings.
type JobsConfig struct {
	// DatabaseFile is the bbolt file backing the job tracker
	DatabaseFile string `mapstructure:"database_file"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTExpiration is the JWT token expiration duration (default: 24h)
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`

	// Users maps usernames to plaintext passwords provisioned at startup
	Users map[string]string `mapstructure:"users"`
}

// Settings is the complete configuration of the CI Review service.
type Settings struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// SAP contains tenant connection settings
	SAP SAPConfig `mapstructure:"sap"`

	// Review contains review pipeline settings
	Review ReviewConfig `mapstructure:"review"`

	// Jobs contains job persistence settings
	Jobs JobsConfig `mapstructure:"jobs"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging"`

	// Security contains API authentication settings
	Security SecurityConfig `mapstructure:"security"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment prefix.
// The prefix is used for environment variables (e.g., "CIREVIEW" -> "CIREVIEW_SERVER_PORT").
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetDefaults sets default configuration values.
// This should be called before Load().
func (l *Loader) SetDefaults(defaults map[string]interface{}) {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// SetConfigDefaults sets the standard service defaults.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8095)
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.debug", false)

	l.v.SetDefault("sap.base_url", "")
	l.v.SetDefault("sap.auth_url", "")
	l.v.SetDefault("sap.client_id", "")
	l.v.SetDefault("sap.client_secret", "")

	l.v.SetDefault("review.guidelines_file", "")
	l.v.SetDefault("review.workers", 4)
	l.v.SetDefault("review.strict_security", true)
	l.v.SetDefault("review.download_dir", "downloads")

	l.v.SetDefault("jobs.database_file", "cireview-jobs.db")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")

	l.v.SetDefault("security.jwt_secret", "")
	l.v.SetDefault("security.jwt_expiration", "24h")
}

// Load reads configuration from file, .env, and environment variables.
// If cfgFile is empty, searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (with prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("$HOME/.cireview")
		l.v.AddConfigPath("/etc/cireview")
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Only fail on non-NotFound errors for explicit file paths
		if cfgFile != "" && !isFileNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if cfgFile == "" {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Merge .env file if present
	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig() // Ignore if .env doesn't exist

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// LoadSettings is a convenience function that loads the service configuration
// with standard defaults and validates it.
func LoadSettings(cfgFile string) (*Settings, error) {
	loader := NewLoader(EnvPrefix)
	loader.SetConfigDefaults()

	cfg := &Settings{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		return nil, err
	}

	if err := ValidateSettings(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ValidateSettings validates the loaded configuration.
func ValidateSettings(cfg *Settings) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Review.Workers < 1 {
		return fmt.Errorf("review workers must be at least 1, got %d", cfg.Review.Workers)
	}

	// A partially specified tenant is a misconfiguration; all-or-nothing.
	sap := &cfg.SAP
	if !sap.Configured() && (sap.BaseURL != "" || sap.AuthURL != "" || sap.ClientID != "" || sap.ClientSecret != "") {
		return fmt.Errorf("sap tenant configuration is incomplete: base_url, auth_url, client_id and client_secret are all required")
	}

	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
