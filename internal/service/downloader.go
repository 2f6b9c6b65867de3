package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tgarchive/internal/media"
	"tgarchive/internal/metrics"
	"tgarchive/internal/models"
	"tgarchive/internal/tracing"
	"tgarchive/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// DownloadScheduler drains the media download queue with bounded concurrency.
// A fixed number of slots is reserved for the "recent" lane (smallest files
// first, newest entries preferred) so fresh media stays snappy while the
// remaining slots work through the backlog in arrival order.
type DownloadScheduler struct {
	client        telegram.Client
	store         Store
	cfg           models.DownloadConfig
	mediaDir      string
	maxMediaBytes int64
	accountID     string
	logger        *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewDownloadScheduler(client telegram.Client, store Store, cfg models.DownloadConfig, mediaCfg models.MediaConfig, accountID string, logger *logrus.Logger) *DownloadScheduler {
	return &DownloadScheduler{
		client:        client,
		store:         store,
		cfg:           cfg,
		mediaDir:      mediaCfg.BaseDir,
		maxMediaBytes: mediaCfg.MaxSizeBytes(),
		accountID:     accountID,
		logger:        logger,
	}
}

// Start resets orphaned jobs and begins the scheduling loop
func (s *DownloadScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("download scheduler is already running")
	}
	if s.cfg.Disabled {
		s.logger.Info("Media downloads are disabled in configuration")
		return nil
	}

	// Jobs left in_progress by a previous process were never completed
	reset, err := s.store.ResetInProgressDownloads(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset in-progress downloads: %w", err)
	}
	if reset > 0 {
		s.logger.WithField("count", reset).Info("Reset orphaned in-progress downloads to pending")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.run()

	if s.cfg.StuckMaxAgeMinutes > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}

	s.logger.WithFields(logrus.Fields{
		"concurrency":  s.cfg.Concurrency,
		"recent_slots": s.cfg.RecentSlots,
	}).Info("Download scheduler started")
	return nil
}

// Stop gracefully stops the scheduler and waits for in-flight downloads
func (s *DownloadScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping download scheduler...")
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.logger.Info("Download scheduler stopped")
}

// IsRunning returns whether the scheduler is currently active
func (s *DownloadScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *DownloadScheduler) run() {
	defer s.wg.Done()

	// done carries the lane of each finished worker so lane accounting stays
	// in this single goroutine.
	done := make(chan bool, s.cfg.Concurrency)
	active, activeRecent := 0, 0
	idle := time.Duration(s.cfg.IdleSec) * time.Second

	reap := func(finishedRecent bool) {
		active--
		if finishedRecent {
			activeRecent--
		}
	}

	for {
		if s.ctx.Err() != nil {
			for active > 0 {
				reap(<-done)
			}
			return
		}

		// Collect any finished workers without blocking
		draining := true
		for draining && active > 0 {
			select {
			case finishedRecent := <-done:
				reap(finishedRecent)
			default:
				draining = false
			}
		}

		launched := s.dispatch(done, &active, &activeRecent)
		metrics.SetGauge("downloads_active", float64(active), nil)

		if launched > 0 {
			continue
		}
		if active == 0 {
			select {
			case <-s.ctx.Done():
			case <-time.After(idle):
			}
			continue
		}
		select {
		case <-s.ctx.Done():
		case finishedRecent := <-done:
			reap(finishedRecent)
		}
	}
}

// dispatch fills free slots: the recent lane deficit first, then FIFO.
// Claiming happens before launch, so the FIFO query cannot hand back a job
// the recent lane just took.
func (s *DownloadScheduler) dispatch(done chan bool, active, activeRecent *int) int {
	launched := 0

	if deficit := s.cfg.RecentSlots - *activeRecent; deficit > 0 {
		free := s.cfg.Concurrency - *active
		if free < deficit {
			deficit = free
		}
		for _, item := range s.fetch(s.store.FetchRecentPending, deficit) {
			if s.claim(item) {
				*active++
				*activeRecent++
				launched++
				s.wg.Add(1)
				go s.worker(item, true, done)
			}
		}
	}

	if free := s.cfg.Concurrency - *active; free > 0 {
		for _, item := range s.fetch(s.store.FetchFIFOPending, free) {
			if s.claim(item) {
				*active++
				launched++
				s.wg.Add(1)
				go s.worker(item, false, done)
			}
		}
	}

	return launched
}

func (s *DownloadScheduler) fetch(query func(context.Context, int) ([]*models.DownloadQueueItem, error), limit int) []*models.DownloadQueueItem {
	items, err := query(s.ctx, limit)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.WithError(err).Error("Failed to fetch pending downloads")
		}
		return nil
	}
	return items
}

func (s *DownloadScheduler) claim(item *models.DownloadQueueItem) bool {
	claimed, err := s.store.MarkDownloadInProgress(s.ctx, item.ID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.WithError(err).WithField("queue_id", item.ID).Error("Failed to claim download")
		}
		return false
	}
	return claimed
}

func (s *DownloadScheduler) worker(item *models.DownloadQueueItem, recent bool, done chan bool) {
	defer s.wg.Done()
	defer func() { done <- recent }()

	start := time.Now()
	err := s.download(s.ctx, item)
	if err != nil {
		if s.ctx.Err() != nil {
			// Shutdown interrupted the transfer; the startup reset will
			// requeue it.
			return
		}
		metrics.IncrementCounter("downloads_failed", nil)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"queue_id": item.ID,
			"chat_id":  item.ChatID,
			"msg_id":   item.MsgID,
		}).Warn("Download failed")
		if markErr := s.store.MarkDownloadFailed(s.ctx, item.ID, err.Error()); markErr != nil {
			s.logger.WithError(markErr).WithField("queue_id", item.ID).Error("Failed to mark download failed")
		}
		return
	}

	metrics.IncrementCounter("downloads_completed", nil)
	metrics.RecordTimer("download_duration", time.Since(start), nil)
}

func (s *DownloadScheduler) download(ctx context.Context, item *models.DownloadQueueItem) error {
	ctx, span := tracing.StartSpan(ctx, "downloader.download")
	defer span.End()

	// The size cap is enforced at enqueue time; re-check here so jobs queued
	// before the limit was lowered do not start a transfer.
	if s.maxMediaBytes > 0 && item.FileSize != nil && *item.FileSize > s.maxMediaBytes {
		return fmt.Errorf("file size %d exceeds configured limit of %d bytes", *item.FileSize, s.maxMediaBytes)
	}

	// Reuse the file of an identical already-completed download
	if item.FileUniqueID != nil {
		existing, err := s.store.GetDownloadedPathByUniqueID(ctx, *item.FileUniqueID)
		if err != nil {
			return err
		}
		if existing != "" {
			s.logger.WithFields(logrus.Fields{
				"queue_id": item.ID,
				"path":     existing,
			}).Debug("Reusing previously downloaded file")
			return s.complete(ctx, item, existing)
		}
	}

	targetPath, err := s.targetPath(ctx, item)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}

	path, err := s.client.DownloadMedia(ctx, item.ChatID, item.MsgID, targetPath)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	if path == "" {
		return fmt.Errorf("message carries no downloadable media")
	}

	return s.complete(ctx, item, path)
}

func (s *DownloadScheduler) complete(ctx context.Context, item *models.DownloadQueueItem, path string) error {
	if err := s.store.MarkDownloadDone(ctx, item.ID, path); err != nil {
		return err
	}
	return s.store.UpdateMessageMediaPath(ctx, item.ChatID, item.MsgID, path)
}

// targetPath derives the destination file from the archived message's media
// columns.
func (s *DownloadScheduler) targetPath(ctx context.Context, item *models.DownloadQueueItem) (string, error) {
	msg, err := s.store.GetMessage(ctx, item.ChatID, item.MsgID)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("message %d/%d is not archived", item.ChatID, item.MsgID)
	}

	m := &telegram.Media{Kind: telegram.MediaKindOther}
	if msg.MediaType != nil {
		m.Kind = telegram.MediaKind(*msg.MediaType)
	}
	if msg.MediaFileName != nil {
		m.FileName = *msg.MediaFileName
	}
	if msg.MimeType != nil {
		m.MimeType = *msg.MimeType
	}
	if msg.MediaUniqueID != nil {
		m.FileUniqueID = *msg.MediaUniqueID
	}

	filename := media.InferFilename(m)
	return media.TargetPath(s.mediaDir, s.accountID, item.ChatID, m.Kind, filename), nil
}

// sweepLoop periodically returns long-stalled in_progress jobs to pending.
func (s *DownloadScheduler) sweepLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.StuckMaxAgeMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			count, err := s.store.ResetStuckDownloads(s.ctx, s.cfg.StuckMaxAgeMinutes)
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.WithError(err).Error("Failed to reset stuck downloads")
				}
				continue
			}
			if count > 0 {
				s.logger.WithField("count", count).Warn("Reset stuck downloads to pending")
			}
		}
	}
}
