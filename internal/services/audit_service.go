package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sosiluv/farmpass/internal/models"
)

// SecurityEventRepository persists audit trail rows.
type SecurityEventRepository interface {
	Insert(ctx context.Context, event *models.SecurityEvent) error
}

const (
	auditQueueSize    = 256
	auditInsertLimit  = 5 * time.Second
	auditDrainTimeout = 10 * time.Second
)

// AuditService is the asynchronous security audit trail. Events are queued
// on a buffered channel and written by a single background worker, so
// recording from the request path never blocks on the database. When the
// queue is full the event is dropped and counted; the audit trail is
// observability, not a ledger.
type AuditService struct {
	repo   SecurityEventRepository
	logger *slog.Logger

	queue   chan models.SecurityEvent
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAuditService creates the audit trail and starts its writer.
func NewAuditService(repo SecurityEventRepository, logger *slog.Logger) *AuditService {
	s := &AuditService{
		repo:   repo,
		logger: logger,
		queue:  make(chan models.SecurityEvent, auditQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues an event for persistence and mirrors it to the structured
// log immediately. Never blocks: a full queue drops the event.
func (s *AuditService) Record(_ context.Context, event models.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Dual-write: immediate slog output
	attrs := []any{
		slog.String("event_type", event.EventType),
		slog.String("ip_address", event.IPAddress),
	}
	if event.AccountID != nil {
		attrs = append(attrs, slog.String("account_id", *event.AccountID))
	}
	if len(event.Detail) > 0 {
		attrs = append(attrs, slog.Any("detail", event.Detail))
	}
	s.logger.Info("security event", attrs...)

	select {
	case s.queue <- event:
	default:
		dropped := s.dropped.Add(1)
		s.logger.Warn("audit queue full, event dropped",
			slog.String("event_type", event.EventType),
			slog.Int64("dropped_total", dropped))
	}
}

// Dropped reports how many events have been discarded since startup.
func (s *AuditService) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and drains what is already queued, bounded by
// a timeout so shutdown cannot hang on a dead database.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		select {
		case <-s.done:
		case <-time.After(auditDrainTimeout):
			s.logger.Warn("audit drain timed out during shutdown")
		}
	})
}

func (s *AuditService) run() {
	defer close(s.done)

	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditInsertLimit)
		err := s.repo.Insert(ctx, &event)
		cancel()

		if err != nil {
			s.logger.Error("failed to persist security event",
				slog.String("event_type", event.EventType),
				slog.Any("error", err))
		}
	}
}
