package cmd

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/auditlog"
	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core/quota"
	"github.com/pricewise/pricewise/internal/core/retry"
	"github.com/pricewise/pricewise/internal/core/store"
	"github.com/pricewise/pricewise/internal/core/webhook"
	"github.com/pricewise/pricewise/internal/currency"
	errwrap "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/market"
	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/observability"
	"github.com/pricewise/pricewise/internal/payments"
	"github.com/pricewise/pricewise/internal/payments/dodo"
	"github.com/pricewise/pricewise/internal/server"
	"github.com/pricewise/pricewise/internal/server/handlers"
)

var (
	serverPort   int
	serverHost   string
	allowMissing bool
)

// telemetryReady ensures telemetry system and exporter are available
func telemetryReady(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// registerHealthChecks wires the store as a critical check and the
// configuration and telemetry as advisory ones.
func registerHealthChecks(hm *handlers.HealthManager, db *store.Store, missing []string, telemetry bool) {
	hm.RegisterChecker("store", handlers.CheckerFunc(func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store ping failed")
		}
		return nil
	}))
	hm.RegisterAdvisory("config", handlers.CheckerFunc(func(ctx context.Context) error {
		if len(missing) > 0 {
			return errwrap.NewConfigInvalidError("missing required configuration: " + strings.Join(missing, ", "))
		}
		return nil
	}))
	if telemetry {
		hm.RegisterAdvisory("telemetry", handlers.CheckerFunc(telemetryReady))
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP API server with graceful shutdown support.

Startup checks every external collaborator and refuses to start when a
required one (database, LLM API, Dodo Payments key, webhook secret) is not
configured, unless --allow-missing is given.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply)

On shutdown the server stops accepting requests, drains the audit log queue,
closes the database and flushes logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig(ctx, serverOverrides(cmd))
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
		}

		logLevel := cfg.Logging.Level
		if verbose {
			logLevel = "debug"
		}
		observability.InitServerLoggerWith(observability.ServerLogOptions{
			Service:     identity.BinaryName,
			Level:       logLevel,
			Profile:     cfg.Logging.Profile,
			Environment: cfg.Logging.Environment,
			Namespace:   namespace,
		})
		logger := observability.ServerLogger

		services := config.ValidateServices(cfg)
		missing := config.MissingRequired(services)
		for _, service := range services {
			if !service.Configured {
				logger.Debug("Service not configured",
					zap.String("service", service.Name),
					zap.Bool("required", service.Required),
					zap.String("detail", service.Message))
			}
		}
		if len(missing) > 0 {
			if !allowMissing {
				ExitWithCode(logger, foundry.ExitConfigInvalid, "Required services are not configured",
					errwrap.NewConfigInvalidError(strings.Join(missing, ", ")))
			}
			logger.Warn("Starting with required services missing",
				zap.Strings("missing", missing))
		}
		if strings.TrimSpace(cfg.Payments.WebhookSecret) == "" {
			logger.Warn("Webhook signature verification disabled (payments.webhook_secret not set)")
		}

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Failed to open store", err)
		}

		ingestor, err := webhook.NewIngestor(webhook.Config{
			Secret:    cfg.Payments.WebhookSecret,
			Tolerance: cfg.Payments.WebhookTolerance,
		}, db, db)
		if err != nil {
			_ = db.Close()
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Invalid webhook secret", err)
		}

		sink := auditlog.NewSink(db, cfg.Audit.QueueSize, auditlog.WithLogger(logger))
		if err := sink.Start(ctx); err != nil {
			_ = db.Close()
			return errwrap.WrapInternal(ctx, err, "audit sink start failed")
		}

		retryOpts := retryOptions(cfg.Retry)

		dodoClient := dodo.NewClient(cfg.Payments.BaseURL, cfg.Payments.APIKey)
		dodoClient.Timeout = cfg.Payments.Timeout
		paymentService := payments.NewService(cfg.Payments, dodoClient, db,
			payments.WithLogger(logger),
			payments.WithRetry(retryOpts))

		marketClient := market.NewClient(cfg.Market.ScraperURL, cfg.Market.Timeout)
		marketClient.Retry = retryOpts
		marketClient.Retry.OnRetry = func(attempt int, err error) {
			metrics.RecordRetryAttempt("market.scrape", string(retry.Classify(err).Kind))
		}

		tracker := quota.NewTracker(nil)
		tracker.ApplyOverrides(cfg.Quota.Overrides)
		tracker.ApplySafetyMargin(cfg.Quota.Margin)

		rateClient := &http.Client{Timeout: cfg.Currency.Timeout}
		converter := currency.NewConverter(currency.DefaultProviders(rateClient, cfg.Currency.APIKey), tracker,
			currency.WithCacheTTL(cfg.Currency.CacheTTL),
			currency.WithRetry(retryOpts),
			currency.WithLogger(logger))

		api := handlers.NewAPI()
		api.Webhooks = ingestor
		api.Payments = paymentService
		api.Accounts = db
		api.Market = marketClient
		api.Currency = converter
		api.Quotas = tracker
		api.Audit = sink

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("store_driver", db.Driver()),
			zap.Bool("webhook_verification", ingestor.Verifies()),
			zap.Bool("scraper_configured", cfg.Market.ScraperURL != ""))

		hm := handlers.InitHealthManager(versionInfo.Version)
		registerHealthChecks(hm, db, missing, cfg.Metrics.Enabled)

		srv := server.New(cfg.Server, api)
		handlers.SetAppIdentity(identity)
		handlers.SetRuntimeFeatures(db.Driver(), map[string]bool{
			"webhook_verification": ingestor.Verifies(),
			"scraper":              cfg.Market.ScraperURL != "",
			"metrics":              cfg.Metrics.Enabled,
			"payments":             strings.TrimSpace(cfg.Payments.APIKey) != "",
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: server, audit sink, store, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "store close failed")
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := sink.Close(drainCtx); err != nil {
				logger.Warn("Audit log queue not fully drained", zap.Error(err))
			}
			logger.Info("Audit log sink stopped",
				zap.Int64("written", sink.Written()),
				zap.Int64("dropped", sink.Dropped()),
				zap.Int64("failed", sink.Failed()))
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			logger.Info("Config file is valid; restart to apply changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		hm.MarkStarted()
		metrics.SetServerStartTime(time.Now())
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

// serverOverrides turns explicitly set serve flags into a runtime config layer.
func serverOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		overrides["port"] = serverPort
	}
	if len(overrides) == 0 {
		return nil
	}
	return map[string]any{"server": overrides}
}

func retryOptions(cfg config.RetryConfig) retry.Options {
	return retry.Options{
		MaxAttempts:       cfg.MaxAttempts,
		InitialDelay:      cfg.InitialDelay,
		MaxDelay:          cfg.MaxDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 3001, "server port")
	serveCmd.Flags().BoolVar(&allowMissing, "allow-missing", false, "start even when required services are not configured")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
