package cooldown

import (
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	limiter := New(2, 2*time.Second)
	now := time.Now()

	if !limiter.Allow("u1", now) || !limiter.Allow("u1", now.Add(500*time.Millisecond)) {
		t.Fatalf("expected first two hits allowed")
	}
	if limiter.Allow("u1", now.Add(time.Second)) {
		t.Fatalf("expected third hit rejected")
	}
	if !limiter.Allow("u2", now.Add(time.Second)) {
		t.Fatalf("keys must be independent")
	}
	if count := limiter.Count("u1", now.Add(time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if !limiter.Allow("u1", now.Add(3*time.Second)) {
		t.Fatalf("expected hit allowed after window")
	}
}

func TestLimiterSweep(t *testing.T) {
	limiter := New(1, time.Second)
	now := time.Now()
	limiter.Allow("u1", now)
	limiter.Sweep(now.Add(2 * time.Second))
	if len(limiter.windows) != 0 {
		t.Fatalf("expected idle key swept")
	}
}

func TestLimiterDisabled(t *testing.T) {
	limiter := New(0, time.Second)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("u1", time.Now()) {
			t.Fatalf("disabled limiter rejected a hit")
		}
	}
}
