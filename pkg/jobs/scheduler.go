package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler feeds a queue with one job type on a fixed interval. A tick is
// dropped when the previous job is still waiting, so runs never pile up.
type Scheduler struct {
	queue    *Queue
	jobType  string
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler. A non-positive interval disables it.
func NewScheduler(queue *Queue, jobType string, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{queue: queue, jobType: jobType, interval: interval, logger: logger}
}

// Start launches the ticker loop. It is a no-op when disabled or already running.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 || s.queue == nil {
		s.logger.Info("scheduler disabled", zap.String("job_type", s.jobType))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started", zap.String("job_type", s.jobType), zap.Duration("interval", s.interval))
}

// Stop ends the ticker loop and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queued, err := s.queue.TryEnqueue(Job{Type: s.jobType})
			if err != nil {
				s.logger.Warn("scheduler enqueue failed", zap.String("job_type", s.jobType), zap.Error(err))
				continue
			}
			if !queued {
				s.logger.Debug("previous run still pending, tick skipped", zap.String("job_type", s.jobType))
			}
		}
	}
}
