package api

import (
	"sync"

	"retreat/internal/config"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client key (API key or remote
// address). HTTP and gRPC share it so a client cannot double its budget.
type RateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func NewRateLimiter(cfg config.APIRateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{rps: cfg.RPS, burst: burst}
}

func (l *RateLimiter) enabled() bool {
	return l != nil && l.rps > 0
}

// allow reports whether key may proceed; a disabled limiter lets everything through.
func (l *RateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, _ := l.limiters.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}
