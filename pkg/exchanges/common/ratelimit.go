package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests and tracks the exchange-reported
// weight so we back off before hitting a ban threshold.
type RateLimiter struct {
	limiter *rate.Limiter

	mu            sync.RWMutex
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
}

// NewRateLimiter creates a limiter for the given weight budget per interval.
// Requests are additionally smoothed to limit/interval via a token bucket.
func NewRateLimiter(limit int, resetInterval time.Duration) *RateLimiter {
	perSecond := float64(limit) / resetInterval.Seconds()
	return &RateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(perSecond), limit/10+1),
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// Wait blocks until a request slot is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// UpdateFromHeader updates the used weight from an API response header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}
	rl.usedWeight = weight

	percentage := float64(rl.usedWeight) / float64(rl.limit) * 100
	if percentage >= 95 {
		log.Printf("rate limit critical: %d/%d (%.1f%%) - approaching ban threshold", rl.usedWeight, rl.limit, percentage)
	} else if percentage >= 80 {
		log.Printf("rate limit warning: %d/%d (%.1f%%)", rl.usedWeight, rl.limit, percentage)
	}
}

// Usage returns current weight usage.
func (rl *RateLimiter) Usage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}
	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}
