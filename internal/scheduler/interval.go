// Package scheduler runs periodic background tasks, like the daily earnings
// calendar refresh, on a fixed interval decoupled from the trading loop.
package scheduler

import (
	"context"
	"time"

	"limitless/internal/logger"
)

type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool
}

func NewIntervalScheduler(interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{Interval: interval}
}

// Start runs task every Interval until ctx is cancelled. It blocks, so call
// it from its own goroutine.
func (s *IntervalScheduler) Start(ctx context.Context, task func()) {
	if task == nil || s.Interval <= 0 {
		logger.Warnf("scheduler: nothing to run (interval=%s)", s.Interval)
		return
	}
	if s.RunImmediately {
		task()
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}
