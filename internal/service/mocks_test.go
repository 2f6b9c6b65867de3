package service

import (
	"context"
	"errors"
	"sync"

	"tgarchive/internal/models"
	"tgarchive/pkg/telegram"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertChat(ctx context.Context, chat *models.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *mockStore) UpsertSender(ctx context.Context, sender *models.Sender) error {
	args := m.Called(ctx, sender)
	return args.Error(0)
}

func (m *mockStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockStore) MarkUnrecoverable(ctx context.Context, chatID, msgID int64, reason string) error {
	args := m.Called(ctx, chatID, msgID, reason)
	return args.Error(0)
}

func (m *mockStore) AppendMessageLog(ctx context.Context, entry *models.MessageLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) ReplaceReactions(ctx context.Context, chatID, msgID int64, reactions []models.Reaction) error {
	args := m.Called(ctx, chatID, msgID, reactions)
	return args.Error(0)
}

func (m *mockStore) ReplaceEntities(ctx context.Context, chatID, msgID int64, entities []models.MessageEntity) error {
	args := m.Called(ctx, chatID, msgID, entities)
	return args.Error(0)
}

func (m *mockStore) GetMessage(ctx context.Context, chatID, msgID int64) (*models.Message, error) {
	args := m.Called(ctx, chatID, msgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *mockStore) GetMaxMessageID(ctx context.Context, chatID int64) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetGaps(ctx context.Context, chatID int64, limit int) ([]models.Gap, error) {
	args := m.Called(ctx, chatID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Gap), args.Error(1)
}

func (m *mockStore) UpdateMessageMediaPath(ctx context.Context, chatID, msgID int64, path string) error {
	args := m.Called(ctx, chatID, msgID, path)
	return args.Error(0)
}

func (m *mockStore) EnqueueDownload(ctx context.Context, chatID, msgID int64, fileUniqueID *string, fileSize *int64) error {
	args := m.Called(ctx, chatID, msgID, fileUniqueID, fileSize)
	return args.Error(0)
}

func (m *mockStore) FetchRecentPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DownloadQueueItem), args.Error(1)
}

func (m *mockStore) FetchFIFOPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DownloadQueueItem), args.Error(1)
}

func (m *mockStore) MarkDownloadInProgress(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkDownloadDone(ctx context.Context, id int64, filePath string) error {
	args := m.Called(ctx, id, filePath)
	return args.Error(0)
}

func (m *mockStore) MarkDownloadFailed(ctx context.Context, id int64, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *mockStore) ResetInProgressDownloads(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ResetStuckDownloads(ctx context.Context, maxAgeMinutes int) (int64, error) {
	args := m.Called(ctx, maxAgeMinutes)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) RequeueFailedDownloads(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetDownloadedPathByUniqueID(ctx context.Context, fileUniqueID string) (string, error) {
	args := m.Called(ctx, fileUniqueID)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueStats), args.Error(1)
}

func (m *mockStore) IsMediaDownloadEnabled(ctx context.Context, chatID int64) (bool, error) {
	args := m.Called(ctx, chatID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetMediaDownloadEnabled(ctx context.Context, chatID int64, enabled bool) error {
	args := m.Called(ctx, chatID, enabled)
	return args.Error(0)
}

// triggerRecorder collects gap notifications for assertions.
type triggerRecorder struct {
	mu    sync.Mutex
	chats []int64
}

func (t *triggerRecorder) Trigger(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chats = append(t.chats, chatID)
}

func (t *triggerRecorder) triggered() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.chats...)
}

// sliceIter serves a fixed message slice through the history iterator
// interface.
type sliceIter struct {
	msgs []*telegram.Message
	pos  int
}

func (it *sliceIter) Next(ctx context.Context) (*telegram.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.msgs) {
		return nil, telegram.ErrEndOfHistory
	}
	msg := it.msgs[it.pos]
	it.pos++
	return msg, nil
}

// fakeClient implements telegram.Client with pluggable behavior per method.
type fakeClient struct {
	dialogs       []telegram.Dialog
	history       map[int64][]*telegram.Message
	getMessagesFn func(chatID int64, ids []int64) ([]*telegram.Message, error)
	downloadFn    func(chatID, msgID int64, targetPath string) (string, error)
	events        chan telegram.Event
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		history: make(map[int64][]*telegram.Message),
		events:  make(chan telegram.Event, 16),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                      { return nil }

func (f *fakeClient) IsAuthorized(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeClient) GetEntity(ctx context.Context, ref string) (*telegram.Chat, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) IterDialogs(ctx context.Context) ([]telegram.Dialog, error) {
	return f.dialogs, nil
}

func (f *fakeClient) IterMessages(ctx context.Context, chatID int64, opts telegram.IterOptions) (telegram.MessageIter, error) {
	var msgs []*telegram.Message
	for _, msg := range f.history[chatID] {
		if opts.MinID > 0 && msg.ID <= opts.MinID {
			continue
		}
		if opts.MaxID > 0 && msg.ID >= opts.MaxID {
			continue
		}
		msgs = append(msgs, msg)
	}
	return &sliceIter{msgs: msgs}, nil
}

func (f *fakeClient) GetMessages(ctx context.Context, chatID int64, ids []int64) ([]*telegram.Message, error) {
	if f.getMessagesFn != nil {
		return f.getMessagesFn(chatID, ids)
	}
	byID := make(map[int64]*telegram.Message)
	for _, msg := range f.history[chatID] {
		byID[msg.ID] = msg
	}
	var out []*telegram.Message
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, chatID, msgID int64, targetPath string) (string, error) {
	if f.downloadFn != nil {
		return f.downloadFn(chatID, msgID, targetPath)
	}
	return targetPath, nil
}

func (f *fakeClient) Events() <-chan telegram.Event {
	return f.events
}
