package database

import (
	"context"
	"database/sql"
	"fmt"

	"tgarchive/internal/models"
)

func (d *Database) UpsertChat(ctx context.Context, chat *models.Chat) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertChatQuery,
			chat.ID, d.accountID, chat.Type,
			chat.Title, chat.Username, chat.FirstName, chat.LastName,
		)
		return err
	}, "upsert chat")
}

func (d *Database) UpsertSender(ctx context.Context, sender *models.Sender) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertSenderQuery,
			sender.ID, d.accountID,
			sender.Username, sender.FirstName, sender.LastName, sender.IsBot,
		)
		return err
	}, "upsert sender")
}

// UpsertMessage inserts or refreshes one archived message. Fields the caller
// left nil keep their stored values.
func (d *Database) UpsertMessage(ctx context.Context, msg *models.Message) error {
	text, err := d.encryptor.EncryptIfEnabled(msg.Text)
	if err != nil {
		return fmt.Errorf("failed to encrypt message text: %w", err)
	}

	var date interface{}
	if !msg.Date.IsZero() {
		date = msg.Date
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertMessageQuery,
			msg.ChatID, msg.MsgID, d.accountID,
			msg.SenderID, date, msg.EditDate, text,
			msg.MediaType, msg.MediaFilePath, msg.MediaFileSize, msg.MediaFileName,
			msg.MediaUniqueID, msg.MimeType, msg.IsForward, msg.ForwardFromID,
			msg.ReplyToMsgID, msg.Views, msg.Forwards, msg.Pinned, msg.Silent, msg.Post,
			msg.TTLPeriod, msg.TopicID, msg.HasLog,
		)
		return err
	}, "upsert message")
}

// MarkUnrecoverable writes a placeholder row for a message id the platform
// confirmed it no longer has. Existing rows are left untouched.
func (d *Database) MarkUnrecoverable(ctx context.Context, chatID, msgID int64, reason string) error {
	text, err := d.encryptor.EncryptIfEnabled(models.UnrecoverableText(reason))
	if err != nil {
		return fmt.Errorf("failed to encrypt placeholder text: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertUnrecoverableQuery,
			chatID, msgID, d.accountID, text, models.MediaTypeUnrecoverable,
		)
		return err
	}, "mark unrecoverable")
}

// AppendMessageLog records one content snapshot and flips the parent
// message's has_log flag. Snapshots are append-only; a duplicate within the
// same timestamp resolution is silently dropped.
func (d *Database) AppendMessageLog(ctx context.Context, entry *models.MessageLogEntry) error {
	text, err := d.encryptor.EncryptIfEnabled(entry.Text)
	if err != nil {
		return fmt.Errorf("failed to encrypt log text: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		if _, err := d.db.ExecContext(ctx, InsertMessageLogQuery,
			entry.PlatformMsgID, entry.ChatID, d.accountID,
			entry.SenderID, text, entry.EditDate,
		); err != nil {
			return err
		}
		_, err := d.db.ExecContext(ctx, UpdateMessageHasLogQuery,
			entry.ChatID, entry.PlatformMsgID, d.accountID,
		)
		return err
	}, "append message log")
}

// ReplaceReactions swaps the full reaction set of a message in one
// transaction.
func (d *Database) ReplaceReactions(ctx context.Context, chatID, msgID int64, reactions []models.Reaction) error {
	return retryableDBOperation(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, DeleteReactionsQuery, chatID, msgID, d.accountID); err != nil {
			return err
		}
		for _, r := range reactions {
			if _, err := tx.ExecContext(ctx, InsertReactionQuery,
				chatID, msgID, d.accountID, r.Emoji, r.Count,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, "replace reactions")
}

// ReplaceEntities swaps the full entity set of a message in one transaction.
func (d *Database) ReplaceEntities(ctx context.Context, chatID, msgID int64, entities []models.MessageEntity) error {
	return retryableDBOperation(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, DeleteEntitiesQuery, chatID, msgID, d.accountID); err != nil {
			return err
		}
		for _, e := range entities {
			if _, err := tx.ExecContext(ctx, InsertEntityQuery,
				chatID, msgID, d.accountID, e.EntityType, e.Offset, e.Length, e.Content,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, "replace entities")
}

func (d *Database) GetMaxMessageID(ctx context.Context, chatID int64) (int64, error) {
	var maxID int64
	err := d.db.QueryRowContext(ctx, SelectMaxMessageIDQuery, chatID, d.accountID).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to query max message id: %w", err)
	}
	return maxID, nil
}

// GetGaps returns the largest runs of missing ids for a chat, biggest first.
func (d *Database) GetGaps(ctx context.Context, chatID int64, limit int) ([]models.Gap, error) {
	rows, err := d.db.QueryContext(ctx, SelectGapsQuery, chatID, d.accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query gaps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gaps []models.Gap
	for rows.Next() {
		var g models.Gap
		if err := rows.Scan(&g.Start, &g.End, &g.Size); err != nil {
			return nil, fmt.Errorf("failed to scan gap: %w", err)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

func (d *Database) GetMessage(ctx context.Context, chatID, msgID int64) (*models.Message, error) {
	var msg models.Message
	var date, editDate, createdAt, updatedAt sql.NullTime
	var text string

	err := d.db.QueryRowContext(ctx, SelectMessageQuery, chatID, msgID, d.accountID).Scan(
		&msg.ChatID, &msg.MsgID, &msg.AccountID,
		&msg.SenderID, &date, &editDate, &text,
		&msg.MediaType, &msg.MediaFilePath, &msg.MediaFileSize, &msg.MediaFileName,
		&msg.MediaUniqueID, &msg.MimeType, &msg.IsForward, &msg.ForwardFromID,
		&msg.ReplyToMsgID, &msg.Views, &msg.Forwards, &msg.Pinned, &msg.Silent, &msg.Post,
		&msg.TTLPeriod, &msg.TopicID, &msg.HasLog, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	decrypted, err := d.encryptor.DecryptIfEnabled(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message text: %w", err)
	}
	msg.Text = decrypted

	if date.Valid {
		msg.Date = date.Time
	}
	if editDate.Valid {
		msg.EditDate = &editDate.Time
	}
	if createdAt.Valid {
		msg.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		msg.UpdatedAt = updatedAt.Time
	}
	return &msg, nil
}

func (d *Database) UpdateMessageMediaPath(ctx context.Context, chatID, msgID int64, path string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpdateMessageMediaPathQuery, path, chatID, msgID, d.accountID)
		return err
	}, "update message media path")
}
