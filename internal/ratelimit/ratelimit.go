// Package ratelimit admits or rejects run attempts per user on a fixed
// UTC-minute window. The counter lives in the store so concurrent processes
// share it; the store's increment-or-create is atomic, so the limiter itself
// needs no locking.
//
// Known approximation: windows are keyed by minute string with no rollover
// smoothing, so a user can burst up to twice the limit across a minute
// boundary. Documented, not fixed.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxPerMinute is the per-user attempt ceiling within one window.
const DefaultMaxPerMinute = 10

// bucketLayout formats minute keys. Lexicographic order matches time order,
// which the cleanup deletion relies on.
const bucketLayout = "2006-01-02T15:04"

// retention is how long stale windows linger before cleanup. Only the current
// minute matters for admission; retention just bounds table growth.
const retention = 5 * time.Minute

// Counter is the slice of the store the limiter needs.
type Counter interface {
	IncrementRateWindow(ctx context.Context, userID, bucket string) (int, error)
	DeleteRateWindowsBefore(ctx context.Context, bucketCutoff string) (int64, error)
}

// Decision reports one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Limiter checks per-user admission against the shared counter.
type Limiter struct {
	counter Counter
	max     int
	logger  *slog.Logger
	now     func() time.Time
	stop    chan struct{}
}

// New creates a limiter over the given counter.
func New(counter Counter, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		max:     DefaultMaxPerMinute,
		logger:  slog.Default(),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMax overrides the per-minute ceiling.
func WithMax(max int) Option {
	return func(l *Limiter) {
		l.max = max
	}
}

// WithLogger sets the logger used for fail-open reports.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Check increments the caller's current-minute counter and decides admission.
// Every call counts as an attempt whether or not the caller honors the
// decision. Storage failures fail open: blocking a user on our own outage is
// worse than briefly over-admitting.
func (l *Limiter) Check(ctx context.Context, userID string) Decision {
	bucket := l.now().UTC().Format(bucketLayout)
	count, err := l.counter.IncrementRateWindow(ctx, userID, bucket)
	if err != nil {
		l.logger.Error("rate window increment failed, failing open",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return Decision{Allowed: true, Remaining: l.max}
	}
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= l.max, Remaining: remaining}
}

// StartCleanup launches a background goroutine that periodically deletes
// windows older than the retention horizon. Cleanup is advisory; admission
// correctness never depends on it.
func (l *Limiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := l.now().Add(-retention).UTC().Format(bucketLayout)
				n, err := l.counter.DeleteRateWindowsBefore(context.Background(), cutoff)
				if err != nil {
					l.logger.Warn("rate window cleanup failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					l.logger.Debug("rate windows cleaned", slog.Int64("deleted", n))
				}
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}
