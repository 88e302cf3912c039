package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Maintainer is the housekeeping surface of the loyalty service.
type Maintainer interface {
	CleanupExpiredCodes(ctx context.Context) (int64, error)
	MarkExpiredVouchers(ctx context.Context) (int64, error)
}

type SweepResult struct {
	CodesDeleted    int64
	VouchersExpired int64
}

// Sweeper deletes stale visit codes and expires lapsed vouchers on a fixed
// interval.
type Sweeper struct {
	m        Maintainer
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(m Maintainer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{m: m, interval: interval}
}

// Start runs one sweep immediately, then one per interval until Stop or ctx
// cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	log.Printf("sweeper started, interval %s", s.interval)

	go func() {
		defer close(s.done)
		s.RunOnce(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("sweeper stopped")
}

func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	var res SweepResult
	var err error
	if res.CodesDeleted, err = s.m.CleanupExpiredCodes(ctx); err != nil {
		log.Printf("sweeper: cleanup codes: %v", err)
	}
	if res.VouchersExpired, err = s.m.MarkExpiredVouchers(ctx); err != nil {
		log.Printf("sweeper: expire vouchers: %v", err)
	}
	return res
}
