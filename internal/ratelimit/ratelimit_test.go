package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memCounter is an in-memory Counter with the store's atomic semantics.
type memCounter struct {
	mu      sync.Mutex
	windows map[string]int
	fail    bool
	deleted []string
}

func newMemCounter() *memCounter {
	return &memCounter{windows: make(map[string]int)}
}

func (m *memCounter) IncrementRateWindow(_ context.Context, userID, bucket string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("storage down")
	}
	key := userID + "|" + bucket
	m.windows[key]++
	return m.windows[key], nil
}

func (m *memCounter) DeleteRateWindowsBefore(_ context.Context, cutoff string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, cutoff)
	return 0, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	l := New(newMemCounter(), WithClock(fixedClock(time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC))))
	defer l.Stop()

	for i := 1; i <= 9; i++ {
		d := l.Check(context.Background(), "u1")
		if !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}

	// 10th call: allowed with zero remaining.
	d := l.Check(context.Background(), "u1")
	if !d.Allowed || d.Remaining != 0 {
		t.Fatalf("call 10: got allowed=%v remaining=%d, want allowed with 0 remaining", d.Allowed, d.Remaining)
	}

	// 11th call: denied.
	d = l.Check(context.Background(), "u1")
	if d.Allowed {
		t.Fatal("call 11 should be denied")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", d.Remaining)
	}
}

func TestCheck_NextMinuteResets(t *testing.T) {
	c := newMemCounter()
	now := time.Date(2026, 3, 1, 12, 0, 59, 0, time.UTC)
	l := New(c, WithClock(func() time.Time { return now }))
	defer l.Stop()

	for i := 0; i < 11; i++ {
		l.Check(context.Background(), "u1")
	}
	if d := l.Check(context.Background(), "u1"); d.Allowed {
		t.Fatal("should be denied within the same minute")
	}

	// One second later the minute key changes and the count starts over.
	now = now.Add(time.Second)
	d := l.Check(context.Background(), "u1")
	if !d.Allowed {
		t.Fatal("first call of a new minute should be allowed")
	}
	if d.Remaining != DefaultMaxPerMinute-1 {
		t.Fatalf("remaining = %d, want %d", d.Remaining, DefaultMaxPerMinute-1)
	}
}

func TestCheck_PerUserIsolation(t *testing.T) {
	l := New(newMemCounter(), WithClock(fixedClock(time.Now())))
	defer l.Stop()

	for i := 0; i < 11; i++ {
		l.Check(context.Background(), "u1")
	}
	if d := l.Check(context.Background(), "u1"); d.Allowed {
		t.Fatal("u1 should be denied")
	}
	if d := l.Check(context.Background(), "u2"); !d.Allowed {
		t.Fatal("u2 has its own window and should be allowed")
	}
}

func TestCheck_FailsOpenOnStorageError(t *testing.T) {
	c := newMemCounter()
	c.fail = true
	l := New(c)
	defer l.Stop()

	d := l.Check(context.Background(), "u1")
	if !d.Allowed {
		t.Fatal("storage failure must fail open, not block the user")
	}
}

func TestCheck_CountsAttemptsNotSuccesses(t *testing.T) {
	c := newMemCounter()
	clock := time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)
	l := New(c, WithClock(fixedClock(clock)), WithMax(2))
	defer l.Stop()

	// Denied calls still increment the window.
	l.Check(context.Background(), "u1")
	l.Check(context.Background(), "u1")
	l.Check(context.Background(), "u1") // denied
	key := "u1|" + clock.UTC().Format(bucketLayout)
	if got := c.windows[key]; got != 3 {
		t.Fatalf("window count = %d, want 3 (attempts, not admissions)", got)
	}
}
