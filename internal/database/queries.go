package database

// Chat and sender queries
const (
	UpsertChatQuery = `
		INSERT INTO chats (id, account_id, type, title, username, first_name, last_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id, account_id) DO UPDATE SET
			type = excluded.type,
			title = COALESCE(excluded.title, chats.title),
			username = COALESCE(excluded.username, chats.username),
			first_name = COALESCE(excluded.first_name, chats.first_name),
			last_name = COALESCE(excluded.last_name, chats.last_name),
			updated_at = CURRENT_TIMESTAMP
	`

	UpsertSenderQuery = `
		INSERT INTO senders (id, account_id, username, first_name, last_name, is_bot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id, account_id) DO UPDATE SET
			username = COALESCE(excluded.username, senders.username),
			first_name = COALESCE(excluded.first_name, senders.first_name),
			last_name = COALESCE(excluded.last_name, senders.last_name),
			is_bot = excluded.is_bot,
			updated_at = CURRENT_TIMESTAMP
	`
)

// Message queries
const (
	// UpsertMessageQuery overwrites only the columns the caller supplied;
	// NULL parameters fall back to the stored value, created_at is set once,
	// and has_log is sticky.
	UpsertMessageQuery = `
		INSERT INTO messages (
			chat_id, msg_id, account_id, sender_id, date, edit_date, text,
			media_type, media_file_path, media_file_size, media_file_name,
			media_unique_id, mime_type, is_forward, forward_from_id,
			reply_to_msg_id, views, forwards, pinned, silent, post,
			ttl_period, topic_id, has_log, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id, msg_id, account_id) DO UPDATE SET
			sender_id = COALESCE(excluded.sender_id, messages.sender_id),
			date = COALESCE(excluded.date, messages.date),
			edit_date = COALESCE(excluded.edit_date, messages.edit_date),
			text = excluded.text,
			media_type = COALESCE(excluded.media_type, messages.media_type),
			media_file_path = COALESCE(excluded.media_file_path, messages.media_file_path),
			media_file_size = COALESCE(excluded.media_file_size, messages.media_file_size),
			media_file_name = COALESCE(excluded.media_file_name, messages.media_file_name),
			media_unique_id = COALESCE(excluded.media_unique_id, messages.media_unique_id),
			mime_type = COALESCE(excluded.mime_type, messages.mime_type),
			is_forward = excluded.is_forward,
			forward_from_id = COALESCE(excluded.forward_from_id, messages.forward_from_id),
			reply_to_msg_id = COALESCE(excluded.reply_to_msg_id, messages.reply_to_msg_id),
			views = COALESCE(excluded.views, messages.views),
			forwards = COALESCE(excluded.forwards, messages.forwards),
			pinned = excluded.pinned,
			silent = excluded.silent,
			post = excluded.post,
			ttl_period = COALESCE(excluded.ttl_period, messages.ttl_period),
			topic_id = COALESCE(excluded.topic_id, messages.topic_id),
			has_log = messages.has_log OR excluded.has_log,
			updated_at = CURRENT_TIMESTAMP
	`

	// InsertUnrecoverableQuery writes a placeholder row only when the id is
	// still missing; an archived message is never replaced by a placeholder.
	InsertUnrecoverableQuery = `
		INSERT INTO messages (chat_id, msg_id, account_id, text, media_type, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id, msg_id, account_id) DO NOTHING
	`

	InsertMessageLogQuery = `
		INSERT INTO message_log (platform_msg_id, chat_id, account_id, sender_id, text, edit_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`

	UpdateMessageHasLogQuery = `
		UPDATE messages
		SET has_log = 1, updated_at = CURRENT_TIMESTAMP
		WHERE chat_id = ? AND msg_id = ? AND account_id = ?
	`

	UpdateMessageMediaPathQuery = `
		UPDATE messages
		SET media_file_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE chat_id = ? AND msg_id = ? AND account_id = ?
	`

	SelectMaxMessageIDQuery = `
		SELECT COALESCE(MAX(msg_id), 0)
		FROM messages
		WHERE chat_id = ? AND account_id = ?
	`

	SelectMessageQuery = `
		SELECT chat_id, msg_id, account_id, sender_id, date, edit_date, text,
			   media_type, media_file_path, media_file_size, media_file_name,
			   media_unique_id, mime_type, is_forward, forward_from_id,
			   reply_to_msg_id, views, forwards, pinned, silent, post,
			   ttl_period, topic_id, has_log, created_at, updated_at
		FROM messages
		WHERE chat_id = ? AND msg_id = ? AND account_id = ?
	`

	// SelectGapsQuery finds runs of missing ids between adjacent archived
	// ids, largest first.
	SelectGapsQuery = `
		WITH ordered AS (
			SELECT msg_id, LAG(msg_id) OVER (ORDER BY msg_id) AS prev_id
			FROM messages
			WHERE chat_id = ? AND account_id = ?
		)
		SELECT prev_id + 1, msg_id - 1, msg_id - prev_id - 1
		FROM ordered
		WHERE prev_id IS NOT NULL AND msg_id - prev_id > 1
		ORDER BY msg_id - prev_id - 1 DESC
		LIMIT ?
	`

	DeleteReactionsQuery = `
		DELETE FROM reactions WHERE chat_id = ? AND msg_id = ? AND account_id = ?
	`

	InsertReactionQuery = `
		INSERT INTO reactions (chat_id, msg_id, account_id, emoji, count)
		VALUES (?, ?, ?, ?, ?)
	`

	DeleteEntitiesQuery = `
		DELETE FROM message_entities WHERE chat_id = ? AND msg_id = ? AND account_id = ?
	`

	InsertEntityQuery = `
		INSERT INTO message_entities (chat_id, msg_id, account_id, entity_type, start_offset, length, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
)

// Download queue queries
const (
	EnqueueDownloadQuery = `
		INSERT INTO download_queue (chat_id, msg_id, account_id, status, file_unique_id, file_size, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id, msg_id, account_id) DO NOTHING
	`

	downloadColumns = `
		q.id, q.chat_id, q.msg_id, q.account_id, q.status, q.attempts,
		q.file_unique_id, q.file_size, q.file_path, q.error_message,
		q.created_at, q.updated_at
	`

	// SelectRecentPendingQuery serves the reserved lane: smallest known
	// files first, then freshest queue entries.
	SelectRecentPendingQuery = `
		SELECT ` + downloadColumns + `
		FROM download_queue q
		LEFT JOIN chat_preferences p
			ON p.chat_id = q.chat_id AND p.account_id = q.account_id
		WHERE q.status = 'pending' AND q.account_id = ? AND COALESCE(p.media_download_enabled, 1) = 1
		ORDER BY q.file_size ASC NULLS LAST, q.created_at DESC, q.id DESC
		LIMIT ?
	`

	SelectFIFOPendingQuery = `
		SELECT ` + downloadColumns + `
		FROM download_queue q
		LEFT JOIN chat_preferences p
			ON p.chat_id = q.chat_id AND p.account_id = q.account_id
		WHERE q.status = 'pending' AND q.account_id = ? AND COALESCE(p.media_download_enabled, 1) = 1
		ORDER BY q.file_size ASC NULLS LAST, q.created_at ASC, q.id ASC
		LIMIT ?
	`

	MarkDownloadInProgressQuery = `
		UPDATE download_queue
		SET status = 'in_progress', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
	`

	MarkDownloadDoneQuery = `
		UPDATE download_queue
		SET status = 'done', file_path = ?, error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	MarkDownloadFailedQuery = `
		UPDATE download_queue
		SET status = 'failed', error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	ResetInProgressDownloadsQuery = `
		UPDATE download_queue
		SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'in_progress' AND account_id = ?
	`

	RequeueFailedDownloadsQuery = `
		UPDATE download_queue
		SET status = 'pending', error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = 'failed' AND account_id = ?
	`

	ResetStuckDownloadsQuery = `
		UPDATE download_queue
		SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'in_progress' AND account_id = ?
			AND updated_at < datetime('now', '-' || ? || ' minutes')
	`

	SelectDownloadedPathByUniqueIDQuery = `
		SELECT file_path
		FROM download_queue
		WHERE file_unique_id = ? AND account_id = ? AND status = 'done' AND file_path IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`

	SelectQueueStatsQuery = `
		SELECT status, COUNT(*) FROM download_queue GROUP BY status
	`
)

// Chat preference queries
const (
	SelectMediaDownloadEnabledQuery = `
		SELECT COALESCE(
			(SELECT media_download_enabled FROM chat_preferences WHERE chat_id = ? AND account_id = ?),
			1
		)
	`

	UpsertChatPreferenceQuery = `
		INSERT INTO chat_preferences (chat_id, account_id, media_download_enabled, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id, account_id) DO UPDATE SET
			media_download_enabled = excluded.media_download_enabled,
			updated_at = CURRENT_TIMESTAMP
	`
)
