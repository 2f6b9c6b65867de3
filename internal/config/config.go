package config

import (
	"encoding/json"
	"fmt"
	"os"
	"tgarchive/internal/constants"
	"tgarchive/internal/models"
	"tgarchive/internal/security"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing Telegram gateway URL"}
	ErrMissingAccountID  = models.ConfigError{Message: "missing account identifier"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir   = models.ConfigError{Message: "missing media base directory"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Telegram.GatewayURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Telegram.AccountID == "" {
		return ErrMissingAccountID
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.BaseDir == "" {
		return ErrMissingMediaDir
	}
	if c.Media.MaxSizeMB < 0 {
		return models.ConfigError{Message: "media maxSizeMb cannot be negative"}
	}

	if c.Telegram.CallTimeoutSec <= 0 {
		c.Telegram.CallTimeoutSec = constants.DefaultGatewayCallTimeoutSec
	}
	if c.Telegram.EventBufferSize <= 0 {
		c.Telegram.EventBufferSize = constants.DefaultEventBufferSize
	}

	if c.Ingest.GapThreshold <= 0 {
		c.Ingest.GapThreshold = constants.DefaultHistoricGapThreshold
	}
	if c.Ingest.EventRetryAttempts <= 0 {
		c.Ingest.EventRetryAttempts = constants.DefaultEventRetryAttempts
	}

	if c.Backfill.Workers <= 0 {
		c.Backfill.Workers = constants.DefaultBackfillWorkers
	}
	if c.Backfill.BatchSize <= 0 {
		c.Backfill.BatchSize = constants.DefaultBackfillBatchSize
	}
	if c.Backfill.TopGapsPerPass <= 0 {
		c.Backfill.TopGapsPerPass = constants.DefaultTopGapsPerPass
	}
	if c.Backfill.GapQueryLimit <= 0 {
		c.Backfill.GapQueryLimit = constants.DefaultGapQueryLimit
	}
	if c.Backfill.IdleSec <= 0 {
		c.Backfill.IdleSec = constants.DefaultBackfillIdleSec
	}

	if c.Downloads.Concurrency <= 0 {
		c.Downloads.Concurrency = constants.DefaultDownloadConcurrency
	}
	if c.Downloads.RecentSlots < 0 {
		c.Downloads.RecentSlots = 0
	}
	if c.Downloads.RecentSlots == 0 {
		c.Downloads.RecentSlots = constants.DefaultRecentLaneSlots
	}
	if c.Downloads.RecentSlots > c.Downloads.Concurrency {
		return models.ConfigError{Message: fmt.Sprintf("recentSlots (%d) cannot exceed concurrency (%d)", c.Downloads.RecentSlots, c.Downloads.Concurrency)}
	}
	if c.Downloads.IdleSec <= 0 {
		c.Downloads.IdleSec = constants.DefaultDownloadIdleSec
	}
	if c.Downloads.StuckMaxAgeMinutes < 0 {
		return models.ConfigError{Message: "stuckMaxAgeMinutes cannot be negative"}
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultAdminPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("TGARCHIVE_GATEWAY_URL"); url != "" {
		c.Telegram.GatewayURL = url
	}

	// SECURITY: the gateway token should come from the environment, not the
	// config file checked into deployment repos
	if token := os.Getenv("TGARCHIVE_GATEWAY_TOKEN"); token != "" {
		c.Telegram.AuthToken = token
	}

	if account := os.Getenv("TGARCHIVE_ACCOUNT_ID"); account != "" {
		c.Telegram.AccountID = account
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		c.Media.BaseDir = dir
	}
	if level := os.Getenv("TGARCHIVE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}
