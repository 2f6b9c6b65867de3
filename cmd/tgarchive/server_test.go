package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tgarchive/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore satisfies service.Store with canned responses for the handlers
// the admin server exercises.
type stubStore struct {
	stats        *models.QueueStats
	statsErr     error
	mediaToggles map[int64]bool
	resetStuck   []int
	resetAll     int
	requeued     int
}

func newStubStore() *stubStore {
	return &stubStore{
		stats:        &models.QueueStats{Pending: 3, Done: 7},
		mediaToggles: make(map[int64]bool),
	}
}

func (s *stubStore) UpsertChat(ctx context.Context, chat *models.Chat) error       { return nil }
func (s *stubStore) UpsertSender(ctx context.Context, sender *models.Sender) error { return nil }
func (s *stubStore) UpsertMessage(ctx context.Context, msg *models.Message) error  { return nil }
func (s *stubStore) MarkUnrecoverable(ctx context.Context, chatID, msgID int64, reason string) error {
	return nil
}
func (s *stubStore) AppendMessageLog(ctx context.Context, entry *models.MessageLogEntry) error {
	return nil
}
func (s *stubStore) ReplaceReactions(ctx context.Context, chatID, msgID int64, reactions []models.Reaction) error {
	return nil
}
func (s *stubStore) ReplaceEntities(ctx context.Context, chatID, msgID int64, entities []models.MessageEntity) error {
	return nil
}
func (s *stubStore) GetMessage(ctx context.Context, chatID, msgID int64) (*models.Message, error) {
	return nil, nil
}
func (s *stubStore) GetMaxMessageID(ctx context.Context, chatID int64) (int64, error) {
	return 0, nil
}
func (s *stubStore) GetGaps(ctx context.Context, chatID int64, limit int) ([]models.Gap, error) {
	return nil, nil
}
func (s *stubStore) UpdateMessageMediaPath(ctx context.Context, chatID, msgID int64, path string) error {
	return nil
}
func (s *stubStore) EnqueueDownload(ctx context.Context, chatID, msgID int64, fileUniqueID *string, fileSize *int64) error {
	return nil
}
func (s *stubStore) FetchRecentPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	return nil, nil
}
func (s *stubStore) FetchFIFOPending(ctx context.Context, limit int) ([]*models.DownloadQueueItem, error) {
	return nil, nil
}
func (s *stubStore) MarkDownloadInProgress(ctx context.Context, id int64) (bool, error) {
	return false, nil
}
func (s *stubStore) MarkDownloadDone(ctx context.Context, id int64, filePath string) error {
	return nil
}
func (s *stubStore) MarkDownloadFailed(ctx context.Context, id int64, errMsg string) error {
	return nil
}
func (s *stubStore) ResetInProgressDownloads(ctx context.Context) (int64, error) {
	s.resetAll++
	return 2, nil
}
func (s *stubStore) ResetStuckDownloads(ctx context.Context, maxAgeMinutes int) (int64, error) {
	s.resetStuck = append(s.resetStuck, maxAgeMinutes)
	return 1, nil
}
func (s *stubStore) RequeueFailedDownloads(ctx context.Context) (int64, error) {
	s.requeued++
	return 4, nil
}
func (s *stubStore) GetDownloadedPathByUniqueID(ctx context.Context, fileUniqueID string) (string, error) {
	return "", nil
}
func (s *stubStore) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	return s.stats, s.statsErr
}
func (s *stubStore) IsMediaDownloadEnabled(ctx context.Context, chatID int64) (bool, error) {
	enabled, ok := s.mediaToggles[chatID]
	if !ok {
		return true, nil
	}
	return enabled, nil
}
func (s *stubStore) SetMediaDownloadEnabled(ctx context.Context, chatID int64, enabled bool) error {
	s.mediaToggles[chatID] = enabled
	return nil
}

func newTestServer(store *stubStore) *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewServer(models.ServerConfig{Port: 0}, store, logger)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	server := newTestServer(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Downloads models.QueueStats `json:"downloads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Downloads.Pending)
	assert.Equal(t, int64(7), body.Downloads.Done)
}

func TestStatsEndpointStoreError(t *testing.T) {
	store := newStubStore()
	store.stats = nil
	store.statsErr = assert.AnError
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "counters")
	assert.Contains(t, body, "uptime_ms")
}

func TestSetMediaPreference(t *testing.T) {
	store := newStubStore()
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodPut, "/chats/-100123/media",
		strings.NewReader(`{"enabled": false}`))
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	enabled, ok := store.mediaToggles[-100123]
	require.True(t, ok)
	assert.False(t, enabled)
}

func TestSetMediaPreferenceBadRequests(t *testing.T) {
	server := newTestServer(newStubStore())

	tests := []struct {
		name string
		url  string
		body string
	}{
		{"invalid chat id", "/chats/abc/media", `{"enabled": true}`},
		{"missing enabled field", "/chats/1/media", `{}`},
		{"invalid json", "/chats/1/media", `{enabled}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.url, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestResetStuckEndpoint(t *testing.T) {
	store := newStubStore()
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/downloads/reset-stuck?maxAgeMinutes=15", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{15}, store.resetStuck)
	assert.Zero(t, store.resetAll)
}

func TestResetStuckEndpointWithoutAge(t *testing.T) {
	store := newStubStore()
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/downloads/reset-stuck", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.resetAll)
	assert.Empty(t, store.resetStuck)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body["reset"])
}

func TestRequeueFailedEndpoint(t *testing.T) {
	store := newStubStore()
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/downloads/requeue-failed", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.requeued)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body["requeued"])
}

func TestResetStuckEndpointRejectsInvalidAge(t *testing.T) {
	server := newTestServer(newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/downloads/reset-stuck?maxAgeMinutes=-3", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
