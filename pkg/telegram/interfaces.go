package telegram

import (
	"context"
	"errors"
)

// ErrEndOfHistory is returned by MessageIter.Next when the iteration is
// exhausted.
var ErrEndOfHistory = errors.New("telegram: end of history")

// MessageIter lazily walks a finite slice of chat history.
type MessageIter interface {
	Next(ctx context.Context) (*Message, error)
}

// Client is the capability set the archiver consumes from the chat platform.
// Connection management, authentication and protocol details live behind it.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	IsAuthorized(ctx context.Context) (bool, error)
	GetEntity(ctx context.Context, ref string) (*Chat, error)
	IterDialogs(ctx context.Context) ([]Dialog, error)
	IterMessages(ctx context.Context, chatID int64, opts IterOptions) (MessageIter, error)
	GetMessages(ctx context.Context, chatID int64, ids []int64) ([]*Message, error)

	// DownloadMedia transfers the attachment of the given message to
	// targetPath and returns the final path, or "" when the message carries
	// no downloadable media.
	DownloadMedia(ctx context.Context, chatID, msgID int64, targetPath string) (string, error)

	// Events returns the push stream of live and edited messages. The
	// channel is closed when the connection shuts down.
	Events() <-chan Event
}
