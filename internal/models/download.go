package models

import "time"

// DownloadStatus is the download queue state machine. Done and failed are
// terminal; in_progress rows return to pending only through a startup or
// stuck-row reset.
type DownloadStatus string

const (
	DownloadStatusPending    DownloadStatus = "pending"
	DownloadStatusInProgress DownloadStatus = "in_progress"
	DownloadStatusDone       DownloadStatus = "done"
	DownloadStatusFailed     DownloadStatus = "failed"
)

// DownloadQueueItem is one media download job. Items are unique per
// (ChatID, MsgID, AccountID); re-enqueueing an existing triple is a no-op.
type DownloadQueueItem struct {
	ID           int64          `json:"id"`
	ChatID       int64          `json:"chatId"`
	MsgID        int64          `json:"msgId"`
	AccountID    string         `json:"accountId"`
	Status       DownloadStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	FileUniqueID *string        `json:"fileUniqueId,omitempty"`
	FileSize     *int64         `json:"fileSize,omitempty"`
	FilePath     *string        `json:"filePath,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// QueueStats is a per-status row count snapshot of the download queue.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}
