package tasks

import (
	"context"
	"sync"
	"time"
)

// quotaWindow is the rolling period the daily unit budget covers.
const quotaWindow = 24 * time.Hour

// QuotaTracker budgets primary-backend calls against a per-day unit ceiling.
// It is process-local: usage is counted in memory from the first recorded
// call and resets when the rolling window elapses. Wait suspends callers once
// usage crosses the configured fraction of the ceiling, resuming when the
// window rolls over.
//
// Per-request pacing is a separate concern handled by the backend's own rate
// limiter; the tracker only guards the daily budget.
type QuotaTracker struct {
	mu          sync.Mutex
	ceiling     int
	threshold   float64
	windowStart time.Time
	used        int

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQuotaTracker returns a tracker that suspends callers once used units
// reach threshold*ceiling within a rolling 24h window.
func NewQuotaTracker(ceiling int, threshold float64) *QuotaTracker {
	return &QuotaTracker{
		ceiling:   ceiling,
		threshold: threshold,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until the tracker has budget for another call or ctx is done.
// The window anchors at the first recorded call, never here; waiting early
// spends no budget.
func (q *QuotaTracker) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()

		now := q.now()
		if !q.windowStart.IsZero() && now.Sub(q.windowStart) >= quotaWindow {
			q.windowStart = time.Time{}
			q.used = 0
		}

		if float64(q.used) < q.threshold*float64(q.ceiling) {
			q.mu.Unlock()
			return nil
		}

		resume := q.windowStart.Add(quotaWindow).Sub(now)
		q.mu.Unlock()

		if err := q.sleep(ctx, resume); err != nil {
			return err
		}
	}
}

// Record charges units against the current window.
func (q *QuotaTracker) Record(units int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if q.windowStart.IsZero() || now.Sub(q.windowStart) >= quotaWindow {
		q.windowStart = now
		q.used = 0
	}

	q.used += units
}

// Usage reports units consumed in the current window and the ceiling.
func (q *QuotaTracker) Usage() (used, ceiling int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.windowStart.IsZero() && q.now().Sub(q.windowStart) >= quotaWindow {
		return 0, q.ceiling
	}

	return q.used, q.ceiling
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
