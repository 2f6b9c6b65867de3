package database

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"tgarchive/internal/constants"
	"tgarchive/internal/models"
)

// EnqueueDownload adds a media job to the queue. Enqueueing an already-known
// (chat, message) pair is a no-op regardless of the existing row's status.
func (d *Database) EnqueueDownload(ctx context.Context, chatID, msgID int64, fileUniqueID *string, fileSize *int64) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, EnqueueDownloadQuery,
			chatID, msgID, d.accountID, fileUniqueID, fileSize,
		)
		return err
	}, "enqueue download")
}

// FetchRecentPending returns pending jobs for the reserved lane: smallest
// known files first, newest entries breaking ties. Chats with media downloads
// disabled are excluded.
func (d *Database) FetchRecentPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	return d.fetchPending(ctx, SelectRecentPendingQuery, limit)
}

// FetchFIFOPending returns pending jobs in arrival order.
func (d *Database) FetchFIFOPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	return d.fetchPending(ctx, SelectFIFOPendingQuery, limit)
}

func (d *Database) fetchPending(ctx context.Context, query string, limit int) ([]*models.DownloadQueueItem, error) {
	rows, err := d.db.QueryContext(ctx, query, d.accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.DownloadQueueItem
	for rows.Next() {
		item, err := scanDownloadItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanDownloadItem(rows *sql.Rows) (*models.DownloadQueueItem, error) {
	var item models.DownloadQueueItem
	var createdAt, updatedAt sql.NullTime
	if err := rows.Scan(
		&item.ID, &item.ChatID, &item.MsgID, &item.AccountID,
		&item.Status, &item.Attempts,
		&item.FileUniqueID, &item.FileSize, &item.FilePath, &item.ErrorMessage,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan download item: %w", err)
	}
	if createdAt.Valid {
		item.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		item.UpdatedAt = updatedAt.Time
	}
	return &item, nil
}

// MarkDownloadInProgress claims a pending job, bumping its attempt counter.
// It reports false when the job was already claimed or finished.
func (d *Database) MarkDownloadInProgress(ctx context.Context, id int64) (bool, error) {
	var claimed bool
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, MarkDownloadInProgressQuery, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n > 0
		return nil
	}, "mark download in progress")
	return claimed, err
}

func (d *Database) MarkDownloadDone(ctx context.Context, id int64, filePath string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, MarkDownloadDoneQuery, filePath, id)
		return err
	}, "mark download done")
}

// MarkDownloadFailed records a terminal failure. The error message is
// truncated on a rune boundary so oversized provider errors cannot bloat the
// queue table or leave invalid UTF-8 behind.
func (d *Database) MarkDownloadFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > constants.MaxDownloadErrorLength {
		cut := constants.MaxDownloadErrorLength
		for cut > 0 && !utf8.RuneStart(errMsg[cut]) {
			cut--
		}
		errMsg = errMsg[:cut]
	}
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, MarkDownloadFailedQuery, errMsg, id)
		return err
	}, "mark download failed")
}

// ResetInProgressDownloads returns every in_progress job to pending. Called
// once at startup; anything in flight when the previous process died was
// never completed.
func (d *Database) ResetInProgressDownloads(ctx context.Context) (int64, error) {
	var count int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, ResetInProgressDownloadsQuery, d.accountID)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	}, "reset in-progress downloads")
	return count, err
}

// RequeueFailedDownloads returns every failed job to pending, clearing its
// recorded error. Attempt counters are kept.
func (d *Database) RequeueFailedDownloads(ctx context.Context) (int64, error) {
	var count int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, RequeueFailedDownloadsQuery, d.accountID)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	}, "requeue failed downloads")
	return count, err
}

// ResetStuckDownloads returns in_progress jobs older than maxAgeMinutes to
// pending.
func (d *Database) ResetStuckDownloads(ctx context.Context, maxAgeMinutes int) (int64, error) {
	var count int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, ResetStuckDownloadsQuery, d.accountID, maxAgeMinutes)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	}, "reset stuck downloads")
	return count, err
}

// GetDownloadedPathByUniqueID returns the stored path of an already completed
// download of the same underlying file, or "" when none exists.
func (d *Database) GetDownloadedPathByUniqueID(ctx context.Context, fileUniqueID string) (string, error) {
	if fileUniqueID == "" {
		return "", nil
	}
	var path string
	err := d.db.QueryRowContext(ctx, SelectDownloadedPathByUniqueIDQuery, fileUniqueID, d.accountID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query downloaded path: %w", err)
	}
	return path, nil
}

// IsMediaDownloadEnabled reports the per-chat media toggle; chats without an
// explicit preference default to enabled.
func (d *Database) IsMediaDownloadEnabled(ctx context.Context, chatID int64) (bool, error) {
	var enabled bool
	err := d.db.QueryRowContext(ctx, SelectMediaDownloadEnabledQuery, chatID, d.accountID).Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("failed to query media download preference: %w", err)
	}
	return enabled, nil
}

func (d *Database) SetMediaDownloadEnabled(ctx context.Context, chatID int64, enabled bool) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertChatPreferenceQuery, chatID, d.accountID, enabled)
		return err
	}, "set media download preference")
}

// GetQueueStats returns per-status job counts.
func (d *Database) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	rows, err := d.db.QueryContext(ctx, SelectQueueStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status models.DownloadStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		switch status {
		case models.DownloadStatusPending:
			stats.Pending = count
		case models.DownloadStatusInProgress:
			stats.InProgress = count
		case models.DownloadStatusDone:
			stats.Done = count
		case models.DownloadStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}
