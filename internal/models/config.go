package models

// Config holds the application configuration
type Config struct {
	Telegram  TelegramConfig `json:"telegram"`
	Database  DatabaseConfig `json:"database"`
	Media     MediaConfig    `json:"media"`
	Ingest    IngestConfig   `json:"ingest"`
	Backfill  BackfillConfig `json:"backfill"`
	Downloads DownloadConfig `json:"downloads"`
	Retry     RetryConfig    `json:"retry"`
	Server    ServerConfig   `json:"server"`
	LogLevel  string         `json:"log_level"`
}

// TelegramConfig holds gateway connection settings
type TelegramConfig struct {
	GatewayURL      string `json:"gateway_url"`
	AuthToken       string `json:"auth_token"`
	AccountID       string `json:"accountId"`
	CallTimeoutSec  int    `json:"callTimeoutSec"`
	EventBufferSize int    `json:"eventBufferSize"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media storage related configurations. MaxSizeMB of zero
// means no size limit.
type MediaConfig struct {
	BaseDir   string `json:"base_dir"`
	MaxSizeMB int64  `json:"maxSizeMb"`
}

// MaxSizeBytes returns the configured size cap in bytes, or zero when unset.
func (m MediaConfig) MaxSizeBytes() int64 {
	return m.MaxSizeMB * 1024 * 1024
}

// IngestConfig tunes the live ingestion pipeline
type IngestConfig struct {
	GapThreshold       int64 `json:"gapThreshold"`
	EventRetryAttempts int   `json:"eventRetryAttempts"`
}

// BackfillConfig tunes the gap backfill engine. The engine runs unless
// explicitly disabled.
type BackfillConfig struct {
	Disabled       bool `json:"disabled"`
	Workers        int  `json:"workers"`
	BatchSize      int  `json:"batchSize"`
	TopGapsPerPass int  `json:"topGapsPerPass"`
	GapQueryLimit  int  `json:"gapQueryLimit"`
	IdleSec        int  `json:"idleSec"`
}

// DownloadConfig tunes the media download scheduler. The scheduler runs
// unless explicitly disabled.
type DownloadConfig struct {
	Disabled           bool `json:"disabled"`
	Concurrency        int  `json:"concurrency"`
	RecentSlots        int  `json:"recentSlots"`
	IdleSec            int  `json:"idleSec"`
	StuckMaxAgeMinutes int  `json:"stuckMaxAgeMinutes"`
}

// RetryConfig holds database retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds the admin HTTP server configuration
type ServerConfig struct {
	Enabled         bool `json:"enabled"`
	Port            int  `json:"port"`
	ReadTimeoutSec  int  `json:"readTimeoutSec"`
	WriteTimeoutSec int  `json:"writeTimeoutSec"`
	IdleTimeoutSec  int  `json:"idleTimeoutSec"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
