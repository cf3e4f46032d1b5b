package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBucket_Allow(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 5, Enabled: true})

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}
	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucket_Disabled(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 0.001, BurstSize: 1})
	for i := 0; i < 10; i++ {
		if !bucket.Allow() {
			t.Fatalf("disabled bucket denied request %d", i)
		}
	}
	if d := bucket.WaitTime(); d != 0 {
		t.Fatalf("WaitTime() = %v, want 0", d)
	}
}

func TestBucket_RefillWithFakeClock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := NewBucket(EveryInterval(4 * time.Second))
	bucket.now = func() time.Time { return now }
	bucket.lastRefill = now

	if !bucket.Allow() {
		t.Fatal("first request should be allowed")
	}
	if bucket.Allow() {
		t.Fatal("second request should wait for the interval")
	}
	if got := bucket.WaitTime(); got != 4*time.Second {
		t.Fatalf("WaitTime() = %v, want 4s", got)
	}

	now = now.Add(4 * time.Second)
	if !bucket.Allow() {
		t.Fatal("request after one interval should be allowed")
	}
}

func TestBucket_WaitReturnsOnToken(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 100, BurstSize: 1, Enabled: true})
	bucket.Allow()

	start := time.Now()
	if err := bucket.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("Wait() took %v", elapsed)
	}
}

func TestBucket_WaitCancelled(t *testing.T) {
	bucket := NewBucket(EveryInterval(time.Hour))
	bucket.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bucket.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestEveryInterval(t *testing.T) {
	cfg := EveryInterval(4 * time.Second)
	if !cfg.Enabled || cfg.BurstSize != 1 || cfg.RequestsPerSecond != 0.25 {
		t.Fatalf("EveryInterval(4s) = %+v", cfg)
	}
	if EveryInterval(0).Enabled {
		t.Fatal("EveryInterval(0) should disable pacing")
	}
}
