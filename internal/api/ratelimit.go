package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sendLimitWindow = 60 * time.Second
	sendLimitBurst  = 10
)

// userRateLimiter throttles message sends per caller: 10 requests per
// 60 seconds, enforced as a token bucket per user.
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserRateLimiter(window time.Duration, burst int) *userRateLimiter {
	return &userRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
	}
}

func (l *userRateLimiter) allow(userId string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userId]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userId] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
