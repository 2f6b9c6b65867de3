package constants

// Ingestion defaults
const (
	DefaultHistoricGapThreshold = 10
	DefaultEventRetryAttempts   = 5
	DefaultRetryBaseSec         = 2
)

// Backfill defaults
const (
	DefaultBackfillWorkers   = 50
	DefaultBackfillBatchSize = 200
	DefaultTopGapsPerPass    = 10
	DefaultGapQueryLimit     = 100
	DefaultBackfillIdleSec   = 3
)

// Download scheduler defaults
const (
	DefaultDownloadConcurrency = 8
	DefaultRecentLaneSlots     = 3
	DefaultDownloadIdleSec     = 3
	DefaultStuckMaxAgeMinutes  = 10
	MaxDownloadErrorLength     = 500
)

// Filename sanitization limits
const (
	MaxFilenameLength  = 180
	MaxExtensionLength = 20
)

// Database retry configuration
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
)

// Admin server defaults
const (
	DefaultAdminPort             = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Encryption parameters for optional at-rest text encryption
const (
	EncryptionSalt = "tgarchive-db-encryption-v1"
)

// Gateway client defaults
const (
	DefaultGatewayCallTimeoutSec = 30
	DefaultEventBufferSize       = 256
)
