// Package cli provides the command-line interface and HTTP server for the
// CI Review service. The root command starts the review API server; the
// analyze subcommand reviews local artifact files without a server.
//
// The server wires together the complete application lifecycle:
//   - Configuration from files, environment variables and command-line flags
//   - Review pipeline setup with a configurable guidelines policy
//   - SAP Integration Suite tenant access when credentials are configured
//   - JWT-protected REST endpoints with graceful shutdown handling
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (CIREVIEW_ prefix)
//  3. Configuration file values
//  4. Default values
//
// Example Usage:
//
//	# Start the server with a configuration file
//	cireview --config /etc/cireview/config.yaml
//
//	# Start the server against a tenant via flags
//	cireview --port 8095 \
//	  --sap-base-url https://tenant.it-cpi.cfapps.eu10.hana.ondemand.com/api/v1 \
//	  --sap-auth-url https://tenant.authentication.eu10.hana.ondemand.com \
//	  --sap-client-id sb-client --sap-client-secret secret
//
//	# Review local files without a server
//	cireview analyze flow1.zip flow2.xml --output report.md
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cireview.evalgo.org/api"
	"cireview.evalgo.org/common"
	"cireview.evalgo.org/config"
	"cireview.evalgo.org/jobs"
	"cireview.evalgo.org/review"
	"cireview.evalgo.org/sap"
	"cireview.evalgo.org/version"
)

// cfgFile holds the path to the configuration file specified via the
// --config flag. When empty, configuration is discovered in the standard
// locations (see the config package).
var cfgFile string

// RootCmd is the entry point of the cireview binary. Running it without a
// subcommand starts the HTTP API server.
var RootCmd = &cobra.Command{
	Use:   "cireview",
	Short: "review service for SAP Integration Suite artifacts",
	Long: `CI Review Service

An HTTP API server that extracts, analyzes and reviews SAP Cloud
Integration artifacts (IFlows) against a security and design guideline
policy:
- Artifact extraction from designtime archives and bare BPMN definitions
- Security posture detection with parameter resolution
- Guideline evaluation with scoring and pass/warn/fail verdicts
- Asynchronous batch reviews tracked as persistent jobs
- Optional tenant browsing and artifact download via the OData API

Configuration can be provided via command-line flags, environment
variables with the CIREVIEW_ prefix, or YAML configuration files with
automatic precedence handling.`,
	RunE: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cireview/config.yaml)")

	// Server configuration flags
	RootCmd.PersistentFlags().Int("port", 0, "Server port")

	// Tenant configuration flags
	RootCmd.PersistentFlags().String("sap-base-url", "", "SAP Integration Suite API base URL")
	RootCmd.PersistentFlags().String("sap-auth-url", "", "SAP OAuth token service URL")
	RootCmd.PersistentFlags().String("sap-client-id", "", "SAP OAuth client ID")
	RootCmd.PersistentFlags().String("sap-client-secret", "", "SAP OAuth client secret")

	// Review configuration flags
	RootCmd.PersistentFlags().String("guidelines", "", "YAML guidelines policy file")
	RootCmd.PersistentFlags().Int("workers", 0, "Concurrent review workers")
	RootCmd.PersistentFlags().String("download-dir", "", "Directory for downloaded tenant artifacts")

	// Persistence and security flags
	RootCmd.PersistentFlags().String("jobs-db", "", "Job database file")
	RootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret")

	viper.BindPFlag("server.port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("sap.base_url", RootCmd.PersistentFlags().Lookup("sap-base-url"))
	viper.BindPFlag("sap.auth_url", RootCmd.PersistentFlags().Lookup("sap-auth-url"))
	viper.BindPFlag("sap.client_id", RootCmd.PersistentFlags().Lookup("sap-client-id"))
	viper.BindPFlag("sap.client_secret", RootCmd.PersistentFlags().Lookup("sap-client-secret"))
	viper.BindPFlag("review.guidelines_file", RootCmd.PersistentFlags().Lookup("guidelines"))
	viper.BindPFlag("review.workers", RootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("review.download_dir", RootCmd.PersistentFlags().Lookup("download-dir"))
	viper.BindPFlag("jobs.database_file", RootCmd.PersistentFlags().Lookup("jobs-db"))
	viper.BindPFlag("security.jwt_secret", RootCmd.PersistentFlags().Lookup("jwt-secret"))
}

// initConfig points the global viper instance at the configuration file so
// flag values and file values share one precedence chain.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home + "/.cireview")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// loadSettings builds the validated service configuration, applying values
// from the global viper instance (flags, env, discovered file) on top of
// the config package defaults.
func loadSettings() (*config.Settings, error) {
	cfg, err := config.LoadSettings(cfgFile)
	if err != nil {
		return nil, err
	}

	// Flag overrides bound on the global viper instance win over the file.
	if port := viper.GetInt("server.port"); port != 0 {
		cfg.Server.Port = port
	}
	if v := viper.GetString("sap.base_url"); v != "" {
		cfg.SAP.BaseURL = v
	}
	if v := viper.GetString("sap.auth_url"); v != "" {
		cfg.SAP.AuthURL = v
	}
	if v := viper.GetString("sap.client_id"); v != "" {
		cfg.SAP.ClientID = v
	}
	if v := viper.GetString("sap.client_secret"); v != "" {
		cfg.SAP.ClientSecret = v
	}
	if v := viper.GetString("review.guidelines_file"); v != "" {
		cfg.Review.GuidelinesFile = v
	}
	if v := viper.GetInt("review.workers"); v != 0 {
		cfg.Review.Workers = v
	}
	if v := viper.GetString("review.download_dir"); v != "" {
		cfg.Review.DownloadDir = v
	}
	if v := viper.GetString("jobs.database_file"); v != "" {
		cfg.Jobs.DatabaseFile = v
	}
	if v := viper.GetString("security.jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if err := config.ValidateSettings(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPolicy returns the guidelines policy for the configured review setup,
// falling back to the built-in defaults when no file is given.
func loadPolicy(cfg *config.Settings) (review.Guidelines, error) {
	if cfg.Review.GuidelinesFile == "" {
		return review.DefaultGuidelines(), nil
	}
	return review.LoadGuidelines(cfg.Review.GuidelinesFile)
}

// runServer starts the HTTP API server and blocks until SIGINT or SIGTERM.
func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	logLevel := cfg.Logging.Level
	if cfg.Server.Debug {
		logLevel = "debug"
	}
	log := common.ConfigureLogger(common.LoggerConfig{
		Level:      common.LogLevel(logLevel),
		Format:     cfg.Logging.Format,
		TimeFormat: time.RFC3339,
	})
	svcLog := common.ServiceLogger("cireview", version.GetFrameworkVersion())

	policy, err := loadPolicy(cfg)
	if err != nil {
		return fmt.Errorf("failed to load guidelines: %w", err)
	}

	manager, err := jobs.NewManager(cfg.Jobs.DatabaseFile, log)
	if err != nil {
		return fmt.Errorf("failed to open job database: %w", err)
	}
	defer manager.Close()

	reviewer := review.NewReviewer(policy, cfg.Review.Workers, log)
	reviewer.SetStrictSecurity(cfg.Review.StrictSecurity)

	var tenant *sap.Connection
	if cfg.SAP.Configured() {
		tenant, err = sap.NewConnection(sap.Credentials{
			BaseURL:      cfg.SAP.BaseURL,
			AuthURL:      cfg.SAP.AuthURL,
			ClientID:     cfg.SAP.ClientID,
			ClientSecret: cfg.SAP.ClientSecret,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to configure SAP tenant: %w", err)
		}
	} else {
		log.Info("no SAP tenant configured, running in local-only mode")
	}

	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required to run the server")
	}
	credentials, err := api.NewCredentialStore(cfg.Security.Users)
	if err != nil {
		return fmt.Errorf("failed to provision credentials: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handlers := &api.Handlers{
		Reviewer:    reviewer,
		Jobs:        manager,
		SAP:         tenant,
		Tokens:      api.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTExpiration),
		Credentials: credentials,
		Policy:      policy,
		DownloadDir: cfg.Review.DownloadDir,
		Log:         log,
	}
	api.SetupRoutes(e, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		svcLog.WithField("address", addr).Info("Server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	svcLog.Info("Shutting down server...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
