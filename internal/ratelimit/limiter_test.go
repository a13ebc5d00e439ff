package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(max int, window time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(Config{MaxRequests: max, Window: window})
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_FirstRequestStartsWindow(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)

	d, err := l.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("最初のリクエストは許可されるべき")
	}
	if d.Count != 1 {
		t.Errorf("Count = %d, want 1", d.Count)
	}
	if !d.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want now+1m", d.ResetAt)
	}
}

func TestMemoryLimiter_Boundary(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, _ := l.Allow(ctx, "user-1")
		if !d.Allowed {
			t.Fatalf("request %d: 上限内のリクエストは許可されるべき", i)
		}
	}

	d, _ := l.Allow(ctx, "user-1")
	if d.Allowed {
		t.Fatal("11件目は拒否されるべき")
	}
	if !d.ResetAt.After(clock.Now()) {
		t.Errorf("ResetAt は未来であるべき: %v", d.ResetAt)
	}

	// ウィンドウ経過後は新しいウィンドウ
	clock.Advance(time.Minute)
	d, _ = l.Allow(ctx, "user-1")
	if !d.Allowed {
		t.Error("ウィンドウ経過後は許可されるべき")
	}
	if d.Count != 1 {
		t.Errorf("Count = %d, want 1 (fresh window)", d.Count)
	}
	if !d.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want now+1m", d.ResetAt)
	}
}

func TestMemoryLimiter_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "user-1"); !d.Allowed {
		t.Error("user-1 の最初のリクエストは許可されるべき")
	}
	if d, _ := l.Allow(ctx, "user-1"); d.Allowed {
		t.Error("user-1 の2件目は拒否されるべき")
	}
	if d, _ := l.Allow(ctx, "user-2"); !d.Allowed {
		t.Error("user-2 は user-1 と独立であるべき")
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestMemoryLimiter_ConcurrentRequestsNeverExceedCeiling(t *testing.T) {
	l := NewMemoryLimiter(Config{MaxRequests: 50, Window: time.Hour})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.Allow(ctx, "burst-user")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	d := Decision{ResetAt: now.Add(1500 * time.Millisecond)}
	if got := d.RetryAfterSeconds(now); got != 2 {
		t.Errorf("RetryAfterSeconds = %d, want 2", got)
	}

	past := Decision{ResetAt: now.Add(-time.Second)}
	if got := past.RetryAfterSeconds(now); got != 1 {
		t.Errorf("RetryAfterSeconds = %d, want 1 (minimum)", got)
	}
}
