package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/api"
	"github.com/DIG-Network/dig-propagation-server/pkg/api/handlers"
	"github.com/DIG-Network/dig-propagation-server/pkg/config"
	"github.com/DIG-Network/dig-propagation-server/pkg/datalayer"
	"github.com/DIG-Network/dig-propagation-server/pkg/merkle"
	"github.com/DIG-Network/dig-propagation-server/pkg/metrics"
	"github.com/DIG-Network/dig-propagation-server/pkg/noncecache"
	"github.com/DIG-Network/dig-propagation-server/pkg/ownercache"
	"github.com/DIG-Network/dig-propagation-server/pkg/session"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the propagation server",
	Long: `Start the propagation server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/propagationd/config.yaml.

Examples:
  # Start with default config location
  propagationd start

  # Start with custom config file
  propagationd start --config /etc/propagationd/config.yaml

  # Start with environment variable overrides
  DIGNODE_LOGGING_LEVEL=DEBUG propagationd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("propagationd - DIG network propagation server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics before anything that records them
	var propMetrics *metrics.PropagationMetrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		propMetrics = metrics.NewPropagationMetrics()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Storage layout and canonical store tree
	layout := storage.NewLayout(cfg.Storage.Root)
	store, err := storage.NewStore(layout)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("Storage initialized", "root", cfg.Storage.Root)

	// Staging directories left behind by a previous run belong to sessions
	// that no longer exist.
	if err := store.CleanStaleSessions(); err != nil {
		return fmt.Errorf("failed to clean stale sessions: %w", err)
	}

	// Upload session registry and nonce cache
	sessions := session.NewRegistry(layout.SessionsRoot(), cfg.Upload.SessionTTL)
	sessions.OnExpire(func(id string) {
		propMetrics.SessionExpired()
		propMetrics.SessionEnded()
	})
	defer sessions.Close()

	nonces := noncecache.New(cfg.Upload.NonceTTL)
	defer nonces.Close()

	// Datalayer metadata client: remote when an endpoint is configured,
	// otherwise a refusing stub that keeps the fetch surface alive while
	// rejecting uploads that need root history.
	var metadata datalayer.MetadataClient
	if cfg.DataLayer.Endpoint != "" {
		client, err := datalayer.NewHTTPClient(cfg.DataLayer.Endpoint, cfg.DataLayer.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create datalayer client: %w", err)
		}
		metadata = client
		logger.Info("Datalayer configured", "endpoint", cfg.DataLayer.Endpoint, "timeout", cfg.DataLayer.Timeout)
	} else {
		metadata = datalayer.NewUnconfigured()
		logger.Warn("No datalayer endpoint configured; uploads will be refused")
	}

	owners := ownercache.New(metadata, cfg.Upload.OwnerTTL)
	defer owners.Close()

	verifier := merkle.NewVerifier(metadata, merkle.NewLocalTreeValidator())

	if cfg.Admin.Password == "" {
		logger.Warn("Admin password not set; creation of new stores is disabled")
	}

	svc := &handlers.Services{
		Store:           store,
		Sessions:        sessions,
		Nonces:          nonces,
		Owners:          owners,
		Verifier:        verifier,
		Keys:            datalayer.NewEd25519Verifier(),
		Metadata:        metadata,
		Metrics:         propMetrics,
		AdminUsername:   cfg.Admin.Username,
		AdminPassword:   cfg.Admin.Password,
		MaxFileSize:     int64(cfg.Upload.MaxFileSize),
		ExternalTimeout: cfg.DataLayer.Timeout,
	}

	router := api.NewRouter(svc, api.RateLimits{
		UploadStartRequests: cfg.RateLimit.UploadStartRequests,
		UploadStartWindow:   cfg.RateLimit.UploadStartWindow,
		FetchRequests:       cfg.RateLimit.FetchRequests,
		FetchWindow:         cfg.RateLimit.FetchWindow,
	}, Version)

	apiServer := api.NewServer(cfg.Server, router)
	if cfg.Server.TLS.Enabled() {
		logger.Info("API server configured", "port", cfg.Server.Port, "tls", true)
	} else {
		logger.Warn("API server configured without TLS; use a terminating proxy in production",
			"port", cfg.Server.Port)
	}

	// Start servers in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

		// Drain in-flight requests within the configured timeout, then
		// release everything waiting on the context.
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
		cancelShutdown()
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
