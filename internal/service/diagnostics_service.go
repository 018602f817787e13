package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"payments_engine/internal/domain"
)

type diagnosticKind string

const (
	diagnosticRejected diagnosticKind = "rejected"
	diagnosticIgnored  diagnosticKind = "ignored"
)

type diagnosticEvent struct {
	Kind       diagnosticKind
	Tx         domain.Transaction
	Err        error
	Reason     string
	ObservedAt time.Time
}

// DiagnosticsService is an asynchronous processor.Observer. It reports
// rejected and silently ignored events through structured logs without
// slowing the processing loop down: observations are handed off to worker
// goroutines over a buffered queue and dropped when the queue is full.
//
// It is opt-in wiring for stream debugging, never enabled by default.
type DiagnosticsService struct {
	queue    chan diagnosticEvent
	workers  int
	dropped  atomic.Int64
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewDiagnosticsService(workers int, logger *slog.Logger) *DiagnosticsService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	s := &DiagnosticsService{
		queue:   make(chan diagnosticEvent, 1000),
		workers: workers,
		logger:  logger,
	}
	s.startWorkers()
	return s
}

func (s *DiagnosticsService) EventRejected(tx domain.Transaction, err error) {
	s.enqueue(diagnosticEvent{
		Kind:       diagnosticRejected,
		Tx:         tx,
		Err:        err,
		ObservedAt: time.Now(),
	})
}

func (s *DiagnosticsService) EventIgnored(tx domain.Transaction, reason string) {
	s.enqueue(diagnosticEvent{
		Kind:       diagnosticIgnored,
		Tx:         tx,
		Reason:     reason,
		ObservedAt: time.Now(),
	})
}

func (s *DiagnosticsService) enqueue(event diagnosticEvent) {
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *DiagnosticsService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for event := range s.queue {
				s.report(event)
			}
		}()
	}
}

func (s *DiagnosticsService) report(event diagnosticEvent) {
	attrs := []any{
		slog.String("type", string(event.Tx.Type)),
		slog.Uint64("client", uint64(event.Tx.ClientID)),
		slog.Uint64("tx", uint64(event.Tx.TxID)),
		slog.Time("observed_at", event.ObservedAt),
	}

	switch event.Kind {
	case diagnosticRejected:
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		s.logger.Info("diagnostics: event rejected", attrs...)
	case diagnosticIgnored:
		attrs = append(attrs, slog.String("reason", event.Reason))
		s.logger.Info("diagnostics: event ignored", attrs...)
	}
}

// Shutdown stops accepting observations and waits for the workers to drain
// the queue. The processor must have stopped submitting before this is
// called.
func (s *DiagnosticsService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.queue)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if dropped := s.dropped.Load(); dropped > 0 {
		s.logger.Warn("diagnostics queue overflowed",
			slog.Int64("dropped", dropped))
	}
	return nil
}
