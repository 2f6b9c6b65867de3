package service

import (
	"context"
	"fmt"
	"sync"

	"tgarchive/internal/media"
	"tgarchive/internal/metrics"
	"tgarchive/internal/models"
	"tgarchive/internal/tracing"
	"tgarchive/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// Ingestor turns platform messages into archive rows. It is the single write
// path for live events and historical backfill alike, so both converge on the
// same idempotent persistence behavior.
type Ingestor struct {
	store         Store
	notifier      GapNotifier
	accountID     string
	mediaBaseDir  string
	maxMediaBytes int64
	gapThreshold  int64
	logger        *logrus.Logger

	mu        sync.Mutex
	seenChats map[int64]struct{}
}

func NewIngestor(store Store, notifier GapNotifier, accountID string, mediaCfg models.MediaConfig, gapThreshold int64, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		store:         store,
		notifier:      notifier,
		accountID:     accountID,
		mediaBaseDir:  mediaCfg.BaseDir,
		maxMediaBytes: mediaCfg.MaxSizeBytes(),
		gapThreshold:  gapThreshold,
		logger:        logger,
		seenChats:     make(map[int64]struct{}),
	}
}

// ProcessMessage archives one live message. Before the message row is
// written, the previous per-chat high-water mark is compared against the new
// id; a jump larger than the configured threshold hands the chat to the
// backfill engine without blocking the event path.
func (in *Ingestor) ProcessMessage(ctx context.Context, msg *telegram.Message) error {
	ctx, span := tracing.StartSpan(ctx, "ingestor.process_message")
	defer span.End()

	if err := in.detectGap(ctx, msg); err != nil {
		// Gap detection must never lose the message itself
		in.logger.WithError(err).WithField("chat_id", msg.ChatID).Warn("Gap detection failed")
	}

	if err := in.persist(ctx, msg, true); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	metrics.IncrementCounter("messages_ingested", map[string]string{"source": "live"})
	return nil
}

// ProcessEdit archives an observed edit: the message row is refreshed and a
// new content snapshot is appended to the log.
func (in *Ingestor) ProcessEdit(ctx context.Context, msg *telegram.Message) error {
	ctx, span := tracing.StartSpan(ctx, "ingestor.process_edit")
	defer span.End()

	if err := in.persist(ctx, msg, true); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	metrics.IncrementCounter("messages_ingested", map[string]string{"source": "edit"})
	return nil
}

// ProcessHistorical archives one message fetched by the backfill engine.
// Historical ingestion skips gap detection; the engine already knows where
// the holes are.
func (in *Ingestor) ProcessHistorical(ctx context.Context, msg *telegram.Message) error {
	if err := in.persist(ctx, msg, false); err != nil {
		return err
	}
	metrics.IncrementCounter("messages_ingested", map[string]string{"source": "backfill"})
	return nil
}

func (in *Ingestor) detectGap(ctx context.Context, msg *telegram.Message) error {
	if in.notifier == nil {
		return nil
	}

	prevMax, err := in.store.GetMaxMessageID(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if prevMax == 0 {
		// First message of a new chat is not a gap
		return nil
	}

	if gap := msg.ID - prevMax; gap > in.gapThreshold {
		in.logger.WithFields(logrus.Fields{
			"chat_id":  msg.ChatID,
			"prev_max": prevMax,
			"msg_id":   msg.ID,
			"gap":      gap,
		}).Info("Historic gap detected, scheduling backfill")
		metrics.IncrementCounter("gaps_detected", nil)
		in.notifier.Trigger(msg.ChatID)
	}
	return nil
}

func (in *Ingestor) persist(ctx context.Context, msg *telegram.Message, appendLog bool) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	if msg.Chat != nil {
		if err := in.store.UpsertChat(ctx, chatRecord(msg.Chat, in.accountID)); err != nil {
			return fmt.Errorf("failed to upsert chat: %w", err)
		}
		in.ensureChatMetadata(msg.Chat)
	}

	if msg.Sender != nil {
		if err := in.store.UpsertSender(ctx, senderRecord(msg.Sender, in.accountID)); err != nil {
			return fmt.Errorf("failed to upsert sender: %w", err)
		}
	}

	record := messageRecord(msg, in.accountID, appendLog)
	if err := in.store.UpsertMessage(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	if appendLog {
		entry := &models.MessageLogEntry{
			PlatformMsgID: msg.ID,
			ChatID:        msg.ChatID,
			AccountID:     in.accountID,
			SenderID:      msg.SenderID,
			Text:          msg.Text,
			EditDate:      msg.EditDate,
		}
		if err := in.store.AppendMessageLog(ctx, entry); err != nil {
			return fmt.Errorf("failed to append message log: %w", err)
		}
	}

	if msg.Reactions != nil {
		if err := in.store.ReplaceReactions(ctx, msg.ChatID, msg.ID, reactionRecords(msg, in.accountID)); err != nil {
			return fmt.Errorf("failed to replace reactions: %w", err)
		}
	}
	if msg.Entities != nil {
		if err := in.store.ReplaceEntities(ctx, msg.ChatID, msg.ID, entityRecords(msg, in.accountID)); err != nil {
			return fmt.Errorf("failed to replace entities: %w", err)
		}
	}

	if msg.Media != nil {
		if err := in.enqueueMedia(ctx, msg); err != nil {
			// An enqueue failure must never roll back the archived message
			in.logger.WithError(err).WithFields(logrus.Fields{
				"chat_id": msg.ChatID,
				"msg_id":  msg.ID,
			}).Warn("Failed to enqueue media download")
		}
	}

	return nil
}

func (in *Ingestor) enqueueMedia(ctx context.Context, msg *telegram.Message) error {
	if in.maxMediaBytes > 0 && msg.Media.FileSize != nil && *msg.Media.FileSize > in.maxMediaBytes {
		in.logger.WithFields(logrus.Fields{
			"chat_id":   msg.ChatID,
			"msg_id":    msg.ID,
			"file_size": *msg.Media.FileSize,
		}).Debug("Media exceeds size limit, skipping download")
		return nil
	}

	enabled, err := in.store.IsMediaDownloadEnabled(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	var uniqueID *string
	if msg.Media.FileUniqueID != "" {
		id := msg.Media.FileUniqueID
		uniqueID = &id
	}
	return in.store.EnqueueDownload(ctx, msg.ChatID, msg.ID, uniqueID, msg.Media.FileSize)
}

// ensureChatMetadata writes the per-chat sidecar once per process lifetime.
func (in *Ingestor) ensureChatMetadata(chat *telegram.Chat) {
	if in.mediaBaseDir == "" {
		return
	}

	in.mu.Lock()
	_, seen := in.seenChats[chat.ID]
	if !seen {
		in.seenChats[chat.ID] = struct{}{}
	}
	in.mu.Unlock()
	if seen {
		return
	}

	if err := media.WriteChatMetadata(in.mediaBaseDir, in.accountID, chat); err != nil {
		in.logger.WithError(err).WithField("chat_id", chat.ID).Warn("Failed to write chat metadata sidecar")
	}
}

func chatRecord(chat *telegram.Chat, accountID string) *models.Chat {
	return &models.Chat{
		ID:        chat.ID,
		AccountID: accountID,
		Type:      string(chat.Type),
		Title:     optionalString(chat.Title),
		Username:  optionalString(chat.Username),
		FirstName: optionalString(chat.FirstName),
		LastName:  optionalString(chat.LastName),
	}
}

func senderRecord(sender *telegram.Sender, accountID string) *models.Sender {
	return &models.Sender{
		ID:        sender.ID,
		AccountID: accountID,
		Username:  optionalString(sender.Username),
		FirstName: optionalString(sender.FirstName),
		LastName:  optionalString(sender.LastName),
		IsBot:     sender.IsBot,
	}
}

func messageRecord(msg *telegram.Message, accountID string, hasLog bool) *models.Message {
	record := &models.Message{
		ChatID:       msg.ChatID,
		MsgID:        msg.ID,
		AccountID:    accountID,
		SenderID:     msg.SenderID,
		Date:         msg.Date,
		EditDate:     msg.EditDate,
		Text:         msg.Text,
		ReplyToMsgID: msg.ReplyToMsgID,
		Views:        msg.Views,
		Forwards:     msg.Forwards,
		Pinned:       msg.Pinned,
		Silent:       msg.Silent,
		Post:         msg.Post,
		TTLPeriod:    msg.TTLPeriod,
		TopicID:      msg.TopicID,
		HasLog:       hasLog,
	}

	if msg.Forward != nil {
		record.IsForward = true
		record.ForwardFromID = msg.Forward.SenderID
	}

	if msg.Media != nil {
		kind := string(msg.Media.Kind)
		record.MediaType = &kind
		record.MediaFileSize = msg.Media.FileSize
		record.MediaFileName = optionalString(msg.Media.FileName)
		record.MediaUniqueID = optionalString(msg.Media.FileUniqueID)
		record.MimeType = optionalString(msg.Media.MimeType)
	}

	return record
}

func reactionRecords(msg *telegram.Message, accountID string) []models.Reaction {
	records := make([]models.Reaction, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		records = append(records, models.Reaction{
			ChatID:    msg.ChatID,
			MsgID:     msg.ID,
			AccountID: accountID,
			Emoji:     r.Emoji,
			Count:     r.Count,
		})
	}
	return records
}

func entityRecords(msg *telegram.Message, accountID string) []models.MessageEntity {
	records := make([]models.MessageEntity, 0, len(msg.Entities))
	for _, e := range msg.Entities {
		records = append(records, models.MessageEntity{
			ChatID:     msg.ChatID,
			MsgID:      msg.ID,
			AccountID:  accountID,
			EntityType: e.Type,
			Offset:     e.Offset,
			Length:     e.Length,
			Content:    optionalString(msg.EntityText(e)),
		})
	}
	return records
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
