package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tgarchive/internal/metrics"
	"tgarchive/internal/models"
	"tgarchive/internal/retry"
	"tgarchive/internal/tracing"
	"tgarchive/pkg/telegram"

	"github.com/sirupsen/logrus"
)

const (
	// maxPendingTriggers bounds the set of chats waiting for backfill so a
	// burst of gap detections cannot grow memory without limit.
	maxPendingTriggers = 1024

	// maxConvergePasses caps per-chat passes in one servicing round; a chat
	// that keeps receiving messages mid-fill is picked up again later.
	maxConvergePasses = 5

	unrecoverableReason = "message deleted or inaccessible"
)

// BackfillEngine repairs holes in archived history. It owns all historical
// fetching: the ingestor only signals chats, and the engine works through
// them with converging passes until the archive matches the platform.
type BackfillEngine struct {
	client   telegram.Client
	store    Store
	ingestor *Ingestor
	cfg      models.BackfillConfig
	backoff  *retry.Backoff
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	pendMu  sync.Mutex
	pending map[int64]struct{}
	wake    chan struct{}
}

func NewBackfillEngine(client telegram.Client, store Store, ingestor *Ingestor, cfg models.BackfillConfig, retryBaseSec, retryAttempts int, logger *logrus.Logger) *BackfillEngine {
	return &BackfillEngine{
		client:   client,
		store:    store,
		ingestor: ingestor,
		cfg:      cfg,
		backoff:  retry.NewBackoff(retry.EventBackoffConfig(retryBaseSec, retryAttempts)),
		logger:   logger,
		pending:  make(map[int64]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// SetIngestor wires the write path after construction. The ingestor and the
// engine reference each other, so one side has to be attached late.
func (b *BackfillEngine) SetIngestor(ingestor *Ingestor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ingestor = ingestor
}

// Trigger marks a chat for backfill. Safe to call from any goroutine; the
// caller never blocks on the fill itself.
func (b *BackfillEngine) Trigger(chatID int64) {
	b.pendMu.Lock()
	if len(b.pending) >= maxPendingTriggers {
		b.pendMu.Unlock()
		b.logger.WithField("chat_id", chatID).Warn("Backfill trigger set is full, dropping trigger")
		return
	}
	b.pending[chatID] = struct{}{}
	b.pendMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Start begins the background backfill process
func (b *BackfillEngine) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("backfill engine is already running")
	}
	if b.cfg.Disabled {
		b.logger.Info("Backfill is disabled in configuration")
		return nil
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true

	b.wg.Add(1)
	go b.run()

	b.logger.WithFields(logrus.Fields{
		"workers":    b.cfg.Workers,
		"batch_size": b.cfg.BatchSize,
	}).Info("Backfill engine started")
	return nil
}

// Stop gracefully stops the backfill process
func (b *BackfillEngine) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.logger.Info("Stopping backfill engine...")
	b.cancel()
	b.wg.Wait()
	b.running = false
	b.logger.Info("Backfill engine stopped")
}

// IsRunning returns whether the engine is currently active
func (b *BackfillEngine) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *BackfillEngine) run() {
	defer b.wg.Done()

	b.sweepAllDialogs()

	idle := time.Duration(b.cfg.IdleSec) * time.Second
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.wake:
		case <-time.After(idle):
		}

		for _, chatID := range b.drainPending() {
			if b.ctx.Err() != nil {
				return
			}
			b.catchUpUntilConverged(chatID)
		}
	}
}

func (b *BackfillEngine) drainPending() []int64 {
	b.pendMu.Lock()
	defer b.pendMu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	chats := make([]int64, 0, len(b.pending))
	for chatID := range b.pending {
		chats = append(chats, chatID)
	}
	b.pending = make(map[int64]struct{})
	return chats
}

// sweepAllDialogs runs one converging fill over every dialog at startup.
func (b *BackfillEngine) sweepAllDialogs() {
	dialogs, err := b.client.IterDialogs(b.ctx)
	if err != nil {
		if b.ctx.Err() == nil {
			b.logger.WithError(err).Error("Failed to list dialogs for initial sweep")
		}
		return
	}

	b.logger.WithField("dialogs", len(dialogs)).Info("Starting initial history sweep")
	start := time.Now()

	for _, dialog := range dialogs {
		if b.ctx.Err() != nil {
			return
		}
		b.catchUpUntilConverged(dialog.ChatID)
	}

	b.logger.WithFields(logrus.Fields{
		"dialogs":  len(dialogs),
		"duration": time.Since(start).Round(time.Second).String(),
	}).Info("Initial history sweep finished")
}

func (b *BackfillEngine) catchUpUntilConverged(chatID int64) {
	for pass := 1; pass <= maxConvergePasses; pass++ {
		progressed, err := b.CatchUpChat(b.ctx, chatID)
		if err != nil {
			if b.ctx.Err() == nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"chat_id": chatID,
					"pass":    pass,
				}).Error("Backfill pass failed")
			}
			return
		}
		if !progressed {
			return
		}
	}
}

// CatchUpChat runs one fill pass over a chat: forward fill from the archived
// high-water mark, then the largest interior gaps. It reports whether the
// pass wrote anything, which callers use to decide convergence.
func (b *BackfillEngine) CatchUpChat(ctx context.Context, chatID int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "backfill.catch_up_chat")
	defer span.End()

	progressed, err := b.forwardFill(ctx, chatID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return progressed, err
	}

	gapProgressed, err := b.fillInteriorGaps(ctx, chatID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return progressed || gapProgressed, err
	}

	return progressed || gapProgressed, nil
}

// forwardFill archives every message newer than the stored high-water mark,
// oldest first so a crash leaves no interior hole behind.
func (b *BackfillEngine) forwardFill(ctx context.Context, chatID int64) (bool, error) {
	maxID, err := b.store.GetMaxMessageID(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to read high-water mark: %w", err)
	}

	iter, err := b.client.IterMessages(ctx, chatID, telegram.IterOptions{
		MinID:   maxID,
		Reverse: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to open history iterator: %w", err)
	}

	sem := make(chan struct{}, b.cfg.Workers)
	var wg sync.WaitGroup
	count := 0

	for {
		msg, err := iter.Next(ctx)
		if errors.Is(err, telegram.ErrEndOfHistory) {
			break
		}
		if err != nil {
			wg.Wait()
			return count > 0, fmt.Errorf("history iteration failed: %w", err)
		}

		count++
		wg.Add(1)
		sem <- struct{}{}
		go func(m *telegram.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			b.persistHistorical(ctx, m)
		}(msg)

		// Await the batch so the worker pool and the iterator cannot run
		// arbitrarily far apart.
		if count%b.cfg.BatchSize == 0 {
			wg.Wait()
			b.logger.WithFields(logrus.Fields{
				"chat_id": chatID,
				"fetched": count,
			}).Debug("Forward fill progress")
		}
	}
	wg.Wait()

	if count > 0 {
		b.logger.WithFields(logrus.Fields{
			"chat_id":  chatID,
			"messages": count,
		}).Info("Forward fill archived new history")
		metrics.AddToCounter("backfill_messages", float64(count), nil)
	}
	return count > 0, nil
}

// fillInteriorGaps repairs the largest holes between archived ids. Ids the
// platform no longer returns are closed with placeholder rows so they are
// not rediscovered on the next pass.
func (b *BackfillEngine) fillInteriorGaps(ctx context.Context, chatID int64) (bool, error) {
	gaps, err := b.store.GetGaps(ctx, chatID, b.cfg.GapQueryLimit)
	if err != nil {
		return false, fmt.Errorf("failed to query gaps: %w", err)
	}
	if len(gaps) == 0 {
		return false, nil
	}

	if len(gaps) > b.cfg.TopGapsPerPass {
		gaps = gaps[:b.cfg.TopGapsPerPass]
	}

	progressed := false
	for _, gap := range gaps {
		if ctx.Err() != nil {
			return progressed, ctx.Err()
		}
		filled, err := b.fillGap(ctx, chatID, gap)
		progressed = progressed || filled
		if err != nil {
			return progressed, err
		}
	}
	return progressed, nil
}

func (b *BackfillEngine) fillGap(ctx context.Context, chatID int64, gap models.Gap) (bool, error) {
	b.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"start":   gap.Start,
		"end":     gap.End,
		"size":    gap.Size,
	}).Info("Filling interior gap")

	progressed := false
	for batchStart := gap.Start; batchStart <= gap.End; batchStart += int64(b.cfg.BatchSize) {
		batchEnd := batchStart + int64(b.cfg.BatchSize) - 1
		if batchEnd > gap.End {
			batchEnd = gap.End
		}

		ids := make([]int64, 0, batchEnd-batchStart+1)
		for id := batchStart; id <= batchEnd; id++ {
			ids = append(ids, id)
		}

		msgs, err := b.client.GetMessages(ctx, chatID, ids)
		if err != nil {
			return progressed, fmt.Errorf("failed to fetch gap messages: %w", err)
		}

		found := make(map[int64]struct{}, len(msgs))
		for _, msg := range msgs {
			if msg == nil {
				continue
			}
			found[msg.ID] = struct{}{}
			b.persistHistorical(ctx, msg)
			progressed = true
		}

		for _, id := range ids {
			if _, ok := found[id]; ok {
				continue
			}
			if err := b.store.MarkUnrecoverable(ctx, chatID, id, unrecoverableReason); err != nil {
				return progressed, fmt.Errorf("failed to mark message unrecoverable: %w", err)
			}
			metrics.IncrementCounter("backfill_unrecoverable", nil)
			progressed = true
		}
	}

	return progressed, nil
}

// persistHistorical writes one fetched message with the per-message retry
// schedule. A message that still fails is logged and skipped; the next pass
// will see the hole again.
func (b *BackfillEngine) persistHistorical(ctx context.Context, msg *telegram.Message) {
	err := b.backoff.Retry(ctx, func() error {
		return b.ingestor.ProcessHistorical(ctx, msg)
	})
	if err != nil && ctx.Err() == nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": msg.ChatID,
			"msg_id":  msg.ID,
		}).Error("Failed to persist backfilled message")
	}
}
