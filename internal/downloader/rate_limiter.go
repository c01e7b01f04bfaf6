package downloader

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests per host. A zero delay disables pacing.
type RateLimiter struct {
	delay    time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing one request per delay per host.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	if r.delay <= 0 {
		return ctx.Err()
	}
	return r.limiter(host).Wait(ctx)
}

func (r *RateLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.delay), 1)
		r.limiters[host] = l
	}
	return l
}
