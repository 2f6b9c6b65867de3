package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgarchive/internal/config"
	"tgarchive/internal/constants"
	"tgarchive/internal/database"
	"tgarchive/internal/retry"
	"tgarchive/internal/service"
	"tgarchive/internal/tracing"
	"tgarchive/pkg/telegram"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tgarchive %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting tgarchive")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.ConfigFromEnv(), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path, cfg.Telegram.AccountID)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	// Connect to the gateway
	client := telegram.NewGatewayClient(telegram.GatewayOptions{
		URL:             cfg.Telegram.GatewayURL,
		Token:           cfg.Telegram.AuthToken,
		CallTimeoutSec:  cfg.Telegram.CallTimeoutSec,
		EventBufferSize: cfg.Telegram.EventBufferSize,
		Logger:          logger,
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warnf("Failed to close gateway connection: %v", err)
		}
	}()

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		return fmt.Errorf("failed to check gateway authorization: %w", err)
	}
	if !authorized {
		return fmt.Errorf("gateway session is not authorized; log the account in first")
	}
	logger.WithField("account", cfg.Telegram.AccountID).Info("Gateway session authorized")

	// Wire services: ingestor -> backfill trigger, listener -> ingestor
	engine := service.NewBackfillEngine(client, db, nil, cfg.Backfill,
		constants.DefaultRetryBaseSec, cfg.Ingest.EventRetryAttempts, logger)
	ingestor := service.NewIngestor(db, engine, cfg.Telegram.AccountID,
		cfg.Media, cfg.Ingest.GapThreshold, logger)
	engine.SetIngestor(ingestor)

	listener := service.NewListener(client, ingestor, cfg.Ingest, constants.DefaultRetryBaseSec, logger)
	scheduler := service.NewDownloadScheduler(client, db, cfg.Downloads,
		cfg.Media, cfg.Telegram.AccountID, logger)

	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	defer listener.Stop()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backfill engine: %w", err)
	}
	defer engine.Stop()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start download scheduler: %w", err)
	}
	defer scheduler.Stop()

	serverErrCh := make(chan error, 1)
	var server *Server
	if cfg.Server.Enabled {
		server = NewServer(cfg.Server, db, logger)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrCh <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown admin server gracefully: %w", err)
		}
	}

	logger.Info("Shutdown completed")
	return nil
}
