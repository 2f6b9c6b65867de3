package models

import (
	"strings"
	"time"
)

// Media type values stored in messages.media_type. They mirror the gateway's
// attachment classification, plus the synthetic placeholder type.
const (
	MediaTypePhoto     = "photo"
	MediaTypeVideo     = "video"
	MediaTypeAudio     = "audio"
	MediaTypeVoice     = "voice"
	MediaTypeSticker   = "sticker"
	MediaTypeAnimation = "animation"
	MediaTypeDocument  = "document"
	MediaTypeOther     = "other"

	// MediaTypeUnrecoverable marks a placeholder row for a message id the
	// platform confirmed it no longer has. Placeholders close gaps so the
	// backfill engine does not rediscover them forever.
	MediaTypeUnrecoverable = "unrecoverable"
)

// UnrecoverableTextPrefix tags the text column of placeholder rows.
const UnrecoverableTextPrefix = "__UNRECOVERABLE__:"

// UnrecoverableText builds the placeholder text for a permanently missing
// message.
func UnrecoverableText(reason string) string {
	return UnrecoverableTextPrefix + reason
}

// IsUnrecoverable reports whether a stored text column marks a placeholder row.
func IsUnrecoverable(text string) bool {
	return strings.HasPrefix(text, UnrecoverableTextPrefix)
}

// Chat represents one conversation as archived.
type Chat struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"accountId"`
	Type      string    `json:"type"`
	Title     *string   `json:"title,omitempty"`
	Username  *string   `json:"username,omitempty"`
	FirstName *string   `json:"firstName,omitempty"`
	LastName  *string   `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sender represents one message author as archived.
type Sender struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"accountId"`
	Username  *string   `json:"username,omitempty"`
	FirstName *string   `json:"firstName,omitempty"`
	LastName  *string   `json:"lastName,omitempty"`
	IsBot     bool      `json:"isBot"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is the canonical archived record of one platform message. It is
// keyed by (ChatID, MsgID, AccountID); nullable columns are pointers so an
// upsert can distinguish "not supplied" from a zero value.
type Message struct {
	ChatID        int64      `json:"chatId"`
	MsgID         int64      `json:"msgId"`
	AccountID     string     `json:"accountId"`
	SenderID      *int64     `json:"senderId,omitempty"`
	Date          time.Time  `json:"date"`
	EditDate      *time.Time `json:"editDate,omitempty"`
	Text          string     `json:"text"`
	MediaType     *string    `json:"mediaType,omitempty"`
	MediaFilePath *string    `json:"mediaFilePath,omitempty"`
	MediaFileSize *int64     `json:"mediaFileSize,omitempty"`
	MediaFileName *string    `json:"mediaFileName,omitempty"`
	MediaUniqueID *string    `json:"mediaUniqueId,omitempty"`
	MimeType      *string    `json:"mimeType,omitempty"`
	IsForward     bool       `json:"isForward"`
	ForwardFromID *int64     `json:"forwardFromId,omitempty"`
	ReplyToMsgID  *int64     `json:"replyToMsgId,omitempty"`
	Views         *int64     `json:"views,omitempty"`
	Forwards      *int64     `json:"forwards,omitempty"`
	Pinned        bool       `json:"pinned"`
	Silent        bool       `json:"silent"`
	Post          bool       `json:"post"`
	TTLPeriod     *int64     `json:"ttlPeriod,omitempty"`
	TopicID       *int64     `json:"topicId,omitempty"`
	HasLog        bool       `json:"hasLog"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// MessageLogEntry is one append-only snapshot of message content, written on
// first sight and on every observed edit. Rows are never updated or deleted.
type MessageLogEntry struct {
	ID            int64      `json:"id"`
	PlatformMsgID int64      `json:"platformMsgId"`
	ChatID        int64      `json:"chatId"`
	AccountID     string     `json:"accountId"`
	SenderID      *int64     `json:"senderId,omitempty"`
	Text          string     `json:"text"`
	EditDate      *time.Time `json:"editDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Reaction is one aggregated emoji count on a message.
type Reaction struct {
	ChatID    int64  `json:"chatId"`
	MsgID     int64  `json:"msgId"`
	AccountID string `json:"accountId"`
	Emoji     string `json:"emoji"`
	Count     int    `json:"count"`
}

// MessageEntity is one formatting or semantic span inside message text.
type MessageEntity struct {
	ChatID     int64   `json:"chatId"`
	MsgID      int64   `json:"msgId"`
	AccountID  string  `json:"accountId"`
	EntityType string  `json:"entityType"`
	Offset     int     `json:"offset"`
	Length     int     `json:"length"`
	Content    *string `json:"content,omitempty"`
}

// Gap is a contiguous run of message ids present on the platform side but
// absent from the archive, bounded by two adjacent archived ids.
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Size  int64 `json:"size"`
}

// ChatPreference holds per-chat operator toggles.
type ChatPreference struct {
	ChatID               int64     `json:"chatId"`
	AccountID            string    `json:"accountId"`
	MediaDownloadEnabled bool      `json:"mediaDownloadEnabled"`
	UpdatedAt            time.Time `json:"updatedAt"`
}
