package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary error")

func fastPolicy() Policy {
	return Policy{Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), 3, func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	var seen []int
	err := Retry(context.Background(), fastPolicy(), 5, func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 2 {
			return errTemporary
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("attempts = %v, want [0 1 2]", seen)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), 3, func(int) error {
		calls++
		return errTemporary
	})
	if !errors.Is(err, ErrMaxAttemptsExhausted) {
		t.Errorf("Retry() error = %v, want ErrMaxAttemptsExhausted", err)
	}
	if !errors.Is(err, errTemporary) {
		t.Errorf("Retry() error = %v, want wrapped errTemporary", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Base: time.Second, Cap: time.Second}

	calls := 0
	err := Retry(ctx, policy, 5, func(int) error {
		calls++
		cancel()
		return errTemporary
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}
