// Package ratelimit paces outbound provider requests with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures a Bucket.
type Config struct {
	// RequestsPerSecond is the steady refill rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is the maximum number of requests allowed back to back.
	BurstSize int `yaml:"burst_size"`
	// Enabled controls whether pacing is active.
	Enabled bool `yaml:"enabled"`
}

// EveryInterval returns a config that admits one request per interval with
// no burst. A non-positive interval disables pacing.
func EveryInterval(interval time.Duration) Config {
	if interval <= 0 {
		return Config{}
	}
	return Config{
		RequestsPerSecond: float64(time.Second) / float64(interval),
		BurstSize:         1,
		Enabled:           true,
	}
}

// Bucket implements token bucket rate limiting.
type Bucket struct {
	mu         sync.Mutex
	enabled    bool
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a new token bucket, starting full.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}

	return &Bucket{
		enabled:    config.Enabled,
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes a token if one is available.
func (b *Bucket) Allow() bool {
	if !b.enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available and consumes it, or returns
// ctx.Err() if the context ends first.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		if b.Allow() {
			return nil
		}
		timer := time.NewTimer(b.WaitTime())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill adds tokens based on time elapsed (must be called with lock held).
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// WaitTime returns how long to wait before a request would be allowed.
func (b *Bucket) WaitTime() time.Duration {
	if !b.enabled {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		return 0
	}

	needed := 1 - b.tokens
	seconds := needed / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}
