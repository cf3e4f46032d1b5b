package backoff

import (
	"context"
	"testing"
	"time"
)

func TestSleepWithContext_Completes(t *testing.T) {
	ctx := context.Background()
	start := time.Now()

	err := SleepWithContext(ctx, 50*time.Millisecond)

	elapsed := time.Since(start)
	if err != nil {
		t.Errorf("SleepWithContext() error = %v, want nil", err)
	}
	if elapsed < 45*time.Millisecond {
		t.Errorf("SleepWithContext() completed too quickly: %v", elapsed)
	}
}

func TestSleepWithContext_ZeroDuration(t *testing.T) {
	ctx := context.Background()
	start := time.Now()

	err := SleepWithContext(ctx, 0)

	elapsed := time.Since(start)
	if err != nil {
		t.Errorf("SleepWithContext() error = %v, want nil", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("SleepWithContext() with zero duration took too long: %v", elapsed)
	}
}

func TestSleepWithContext_NegativeDuration(t *testing.T) {
	ctx := context.Background()
	start := time.Now()

	err := SleepWithContext(ctx, -100*time.Millisecond)

	elapsed := time.Since(start)
	if err != nil {
		t.Errorf("SleepWithContext() error = %v, want nil", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("SleepWithContext() with negative duration took too long: %v", elapsed)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()

	// Cancel after 20ms
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := SleepWithContext(ctx, 500*time.Millisecond)

	elapsed := time.Since(start)
	if err != context.Canceled {
		t.Errorf("SleepWithContext() error = %v, want context.Canceled", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("SleepWithContext() did not cancel quickly: %v", elapsed)
	}
}

func TestSleepWithContext_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	start := time.Now()
	err := SleepWithContext(ctx, 500*time.Millisecond)
	elapsed := time.Since(start)

	if err != context.Canceled {
		t.Errorf("SleepWithContext() error = %v, want context.Canceled", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("SleepWithContext() with cancelled context took too long: %v", elapsed)
	}
}

func TestSleepWithContext_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := SleepWithContext(ctx, 500*time.Millisecond)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("SleepWithContext() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("SleepWithContext() did not respect deadline: %v", elapsed)
	}
}
