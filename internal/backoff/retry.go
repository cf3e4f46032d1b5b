package backoff

import (
	"context"
	"errors"
	"math/rand"
)

// ErrMaxAttemptsExhausted is returned when all retry attempts have been exhausted.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// Retry calls fn up to maxAttempts times, sleeping on policy between
// failures. It returns the last error wrapped alongside
// ErrMaxAttemptsExhausted, or ctx.Err() if cancelled while waiting.
func Retry(ctx context.Context, p Policy, maxAttempts int, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sched := NewSchedule(p)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt+1 < maxAttempts {
			wait := sched.Next(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
			if err := SleepWithContext(ctx, wait); err != nil {
				return err
			}
		}
	}
	return errors.Join(ErrMaxAttemptsExhausted, lastErr)
}
