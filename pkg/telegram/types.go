package telegram

import "time"

// ChatType is the closed set of chat shapes the gateway reports. It is decided
// once at the gateway boundary; everything downstream switches on it.
type ChatType string

const (
	ChatTypeUser       ChatType = "user"
	ChatTypeBot        ChatType = "bot"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
	ChatTypeUnknown    ChatType = "unknown"
)

// MediaKind is the closed set of attachment shapes. Classification happens in
// the gateway payload decoder, not in the ingestion pipeline.
type MediaKind string

const (
	MediaKindPhoto     MediaKind = "photo"
	MediaKindVideo     MediaKind = "video"
	MediaKindAudio     MediaKind = "audio"
	MediaKindVoice     MediaKind = "voice"
	MediaKindSticker   MediaKind = "sticker"
	MediaKindAnimation MediaKind = "animation"
	MediaKindDocument  MediaKind = "document"
	MediaKindOther     MediaKind = "other"
)

// Chat describes the conversation a message belongs to.
type Chat struct {
	ID        int64    `json:"id"`
	Type      ChatType `json:"type"`
	Title     string   `json:"title,omitempty"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
}

// DisplayName returns the best human-readable label for the chat.
func (c *Chat) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.Title != "" {
		return c.Title
	}
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name != "" {
		return name
	}
	return c.Username
}

// Sender describes the author of a message.
type Sender struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	IsBot     bool   `json:"isBot,omitempty"`
}

// Media describes a message attachment as classified by the gateway.
type Media struct {
	Kind         MediaKind `json:"kind"`
	MimeType     string    `json:"mimeType,omitempty"`
	FileName     string    `json:"fileName,omitempty"`
	FileSize     *int64    `json:"fileSize,omitempty"`
	FileUniqueID string    `json:"fileUniqueId,omitempty"`
}

// Forward carries origin metadata for forwarded messages.
type Forward struct {
	SenderID *int64 `json:"senderId,omitempty"`
}

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Entity is a formatting/semantic span inside the message text
// (mention, hashtag, URL, ...).
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Message is one message as delivered by the gateway, live or historical.
type Message struct {
	ID           int64      `json:"id"`
	ChatID       int64      `json:"chatId"`
	Chat         *Chat      `json:"chat,omitempty"`
	SenderID     *int64     `json:"senderId,omitempty"`
	Sender       *Sender    `json:"sender,omitempty"`
	Text         string     `json:"text,omitempty"`
	Media        *Media     `json:"media,omitempty"`
	Forward      *Forward   `json:"forward,omitempty"`
	ReplyToMsgID *int64     `json:"replyToMsgId,omitempty"`
	EditDate     *time.Time `json:"editDate,omitempty"`
	Views        *int64     `json:"views,omitempty"`
	Forwards     *int64     `json:"forwards,omitempty"`
	Pinned       bool       `json:"pinned,omitempty"`
	Silent       bool       `json:"silent,omitempty"`
	Post         bool       `json:"post,omitempty"`
	TTLPeriod    *int64     `json:"ttlPeriod,omitempty"`
	TopicID      *int64     `json:"topicId,omitempty"`
	Reactions    []Reaction `json:"reactions,omitempty"`
	Entities     []Entity   `json:"entities,omitempty"`
	Date         time.Time  `json:"date"`
}

// EntityText extracts the text span an entity covers, clamped to the message
// text so malformed offsets from the wire cannot panic.
func (m *Message) EntityText(e Entity) string {
	runes := []rune(m.Text)
	if e.Offset < 0 || e.Length <= 0 || e.Offset >= len(runes) {
		return ""
	}
	end := e.Offset + e.Length
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[e.Offset:end])
}

// Dialog is one entry in the account's dialog list.
type Dialog struct {
	ChatID int64  `json:"chatId"`
	Name   string `json:"name,omitempty"`
}

// EventKind discriminates gateway push events.
type EventKind string

const (
	EventNewMessage    EventKind = "new_message"
	EventMessageEdited EventKind = "message_edited"
)

// Event is one push notification from the gateway. Delivery order is not
// guaranteed relative to history iteration.
type Event struct {
	Kind    EventKind `json:"event"`
	Message *Message  `json:"message"`
}

// IterOptions bound a history iteration request.
type IterOptions struct {
	MinID   int64 `json:"minId,omitempty"`
	MaxID   int64 `json:"maxId,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Reverse bool  `json:"reverse,omitempty"`
}
