package media

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tgarchive/pkg/telegram"
)

// Category maps a media kind to its storage subdirectory.
func Category(kind telegram.MediaKind) string {
	switch kind {
	case telegram.MediaKindPhoto:
		return "photos"
	case telegram.MediaKindVideo:
		return "videos"
	case telegram.MediaKindAudio:
		return "audio"
	case telegram.MediaKindVoice:
		return "voice"
	case telegram.MediaKindSticker:
		return "stickers"
	case telegram.MediaKindAnimation:
		return "animations"
	case telegram.MediaKindDocument:
		return "documents"
	default:
		return "other"
	}
}

// TargetPath builds the archive path for one attachment:
// {base}/{account}/{chat_id}/{category}/{filename}.
func TargetPath(baseDir, accountID string, chatID int64, kind telegram.MediaKind, filename string) string {
	return filepath.Join(baseDir, accountID, strconv.FormatInt(chatID, 10), Category(kind), filename)
}

// ChatDir returns the per-chat directory under the media base.
func ChatDir(baseDir, accountID string, chatID int64) string {
	return filepath.Join(baseDir, accountID, strconv.FormatInt(chatID, 10))
}

// ChatMetadata is the sidecar written next to a chat's media so a human
// browsing the volume can tell which chat a numeric directory belongs to.
type ChatMetadata struct {
	ChatID    int64     `json:"chatId"`
	AccountID string    `json:"accountId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const metadataFilename = ".metadata.json"

// WriteChatMetadata creates the chat directory if needed and writes the
// sidecar file. Existing sidecars are overwritten so renames propagate.
func WriteChatMetadata(baseDir, accountID string, chat *telegram.Chat) error {
	if chat == nil {
		return fmt.Errorf("chat is nil")
	}

	dir := ChatDir(baseDir, accountID, chat.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chat directory: %w", err)
	}

	meta := ChatMetadata{
		ChatID:    chat.ID,
		AccountID: accountID,
		Name:      chat.DisplayName(),
		Type:      string(chat.Type),
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat metadata: %w", err)
	}

	path := filepath.Join(dir, metadataFilename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chat metadata: %w", err)
	}
	return nil
}
