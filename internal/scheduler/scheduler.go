package scheduler

import (
	"context"
	"time"

	"rudder/internal/logger"
)

// IntervalScheduler runs a task on a fixed wall-clock-aligned cadence.
// Ticks are aligned to interval boundaries (UTC) plus an optional offset,
// so a 1h task fires just after each hour closes. The task itself must be
// idempotent; the scheduler makes no exactly-once promise.
type IntervalScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

// NewIntervalScheduler builds a scheduler bound to ctx.
func NewIntervalScheduler(ctx context.Context, interval, offset time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, invoking task at each aligned tick until the context is
// cancelled.
func (s *IntervalScheduler) Start(name string, task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, exit", name, s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler %s: started interval=%s offset=%s run_immediately=%v",
		name, s.Interval, s.Offset, s.RunImmediately)
	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		wakeAt := now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
		wait := wakeAt.Sub(now)
		if wait <= 0 {
			task()
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("scheduler %s: ctx done, exit", name)
			return
		case <-timer.C:
		}
		task()
	}
}
