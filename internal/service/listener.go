package service

import (
	"context"
	"fmt"
	"sync"

	"tgarchive/internal/metrics"
	"tgarchive/internal/models"
	"tgarchive/internal/retry"
	"tgarchive/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// Listener drains the gateway's push stream into the ingestor. Each event is
// persisted with a bounded retry schedule; an event that still fails after
// the last attempt is logged and dropped so the stream keeps moving.
type Listener struct {
	client   telegram.Client
	ingestor *Ingestor
	backoff  *retry.Backoff
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewListener(client telegram.Client, ingestor *Ingestor, ingestCfg models.IngestConfig, retryBaseSec int, logger *logrus.Logger) *Listener {
	backoff := retry.NewBackoff(retry.EventBackoffConfig(retryBaseSec, ingestCfg.EventRetryAttempts))
	return &Listener{
		client:   client,
		ingestor: ingestor,
		backoff:  backoff,
		logger:   logger,
	}
}

// Start begins consuming gateway events in the background
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("listener is already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.eventLoop()

	l.logger.Info("Event listener started")
	return nil
}

// Stop gracefully stops the listener
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}

	l.logger.Info("Stopping event listener...")
	l.cancel()
	l.wg.Wait()
	l.running = false
	l.logger.Info("Event listener stopped")
}

// IsRunning returns whether the listener is currently active
func (l *Listener) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

func (l *Listener) eventLoop() {
	defer l.wg.Done()

	events := l.client.Events()
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				l.logger.Warn("Gateway event stream closed")
				return
			}
			l.handleEvent(event)
		}
	}
}

func (l *Listener) handleEvent(event telegram.Event) {
	if event.Message == nil {
		return
	}

	err := l.backoff.Retry(l.ctx, func() error {
		switch event.Kind {
		case telegram.EventMessageEdited:
			return l.ingestor.ProcessEdit(l.ctx, event.Message)
		default:
			return l.ingestor.ProcessMessage(l.ctx, event.Message)
		}
	})

	if err != nil {
		metrics.IncrementCounter("events_dropped", nil)
		l.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": event.Message.ChatID,
			"msg_id":  event.Message.ID,
			"kind":    event.Kind,
		}).Error("Dropping event after exhausting retries")
	}
}
