// Package backoff computes rate-limit waits and sleeps on them without
// ignoring cancellation.
package backoff

import (
	"math"
	"time"
)

// Policy defines an exponential backoff with additive uniform jitter:
//
//	wait(retry) = min(Base * 2^retry, Cap) + uniform(JitterMin, JitterMax)
type Policy struct {
	Base      time.Duration `yaml:"base"`
	Cap       time.Duration `yaml:"cap"`
	JitterMin time.Duration `yaml:"jitter_min"`
	JitterMax time.Duration `yaml:"jitter_max"`
}

// DefaultPolicy waits 1s, 2s, 4s, ... capped at 30s, plus 1-3s of jitter.
func DefaultPolicy() Policy {
	return Policy{
		Base:      time.Second,
		Cap:       30 * time.Second,
		JitterMin: time.Second,
		JitterMax: 3 * time.Second,
	}
}

// Compute returns the wait for the given zero-based retry using randomValue
// in [0, 1) to place the jitter.
func Compute(p Policy, retry int, randomValue float64) time.Duration {
	if retry < 0 {
		retry = 0
	}
	exp := float64(p.Base) * math.Pow(2, float64(retry))
	if p.Cap > 0 {
		exp = math.Min(exp, float64(p.Cap))
	}

	lo, hi := p.JitterMin, p.JitterMax
	if hi < lo {
		lo, hi = hi, lo
	}
	jitter := float64(lo) + float64(hi-lo)*clamp01(randomValue)

	return time.Duration(math.Round(exp + jitter))
}

// Schedule yields waits for one retry sequence. Each wait is at least the
// previous one, so jitter cannot make a later wait shorter than an earlier
// one. A Schedule is not safe for concurrent use; create one per sequence.
type Schedule struct {
	policy Policy
	last   time.Duration
}

// NewSchedule starts a sequence under p.
func NewSchedule(p Policy) *Schedule {
	return &Schedule{policy: p}
}

// Next returns the wait before the retry that follows retry.
func (s *Schedule) Next(retry int, randomValue float64) time.Duration {
	d := Compute(s.policy, retry, randomValue)
	if d < s.last {
		d = s.last
	}
	s.last = d
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v >= 1:
		return math.Nextafter(1, 0)
	}
	return v
}
