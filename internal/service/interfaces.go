package service

import (
	"context"

	"tgarchive/internal/models"
)

// Store is the persistence surface the archiver services run against. The
// SQLite implementation lives in internal/database; tests substitute a mock.
type Store interface {
	UpsertChat(ctx context.Context, chat *models.Chat) error
	UpsertSender(ctx context.Context, sender *models.Sender) error
	UpsertMessage(ctx context.Context, msg *models.Message) error
	MarkUnrecoverable(ctx context.Context, chatID, msgID int64, reason string) error
	AppendMessageLog(ctx context.Context, entry *models.MessageLogEntry) error
	ReplaceReactions(ctx context.Context, chatID, msgID int64, reactions []models.Reaction) error
	ReplaceEntities(ctx context.Context, chatID, msgID int64, entities []models.MessageEntity) error
	GetMessage(ctx context.Context, chatID, msgID int64) (*models.Message, error)
	GetMaxMessageID(ctx context.Context, chatID int64) (int64, error)
	GetGaps(ctx context.Context, chatID int64, limit int) ([]models.Gap, error)
	UpdateMessageMediaPath(ctx context.Context, chatID, msgID int64, path string) error

	EnqueueDownload(ctx context.Context, chatID, msgID int64, fileUniqueID *string, fileSize *int64) error
	FetchRecentPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error)
	FetchFIFOPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error)
	MarkDownloadInProgress(ctx context.Context, id int64) (bool, error)
	MarkDownloadDone(ctx context.Context, id int64, filePath string) error
	MarkDownloadFailed(ctx context.Context, id int64, errMsg string) error
	ResetInProgressDownloads(ctx context.Context) (int64, error)
	ResetStuckDownloads(ctx context.Context, maxAgeMinutes int) (int64, error)
	RequeueFailedDownloads(ctx context.Context) (int64, error)
	GetDownloadedPathByUniqueID(ctx context.Context, fileUniqueID string) (string, error)
	GetQueueStats(ctx context.Context) (*models.QueueStats, error)

	IsMediaDownloadEnabled(ctx context.Context, chatID int64) (bool, error)
	SetMediaDownloadEnabled(ctx context.Context, chatID int64, enabled bool) error
}

// GapNotifier receives chat ids whose history needs attention. The backfill
// engine implements it; the ingestor only signals, it never fills gaps itself.
type GapNotifier interface {
	Trigger(chatID int64)
}
