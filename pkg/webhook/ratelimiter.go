package webhook

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client IP
type RateLimiter struct {
	limits          map[string]*clientLimit
	perMinute       int
	mu              sync.Mutex
	cleanupInterval time.Duration
	idleAfter       time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing maxRequestsPerMinute per IP with
// bursts of the same size
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	if maxRequestsPerMinute < 1 {
		maxRequestsPerMinute = 1
	}

	rl := &RateLimiter{
		limits:          make(map[string]*clientLimit),
		perMinute:       maxRequestsPerMinute,
		cleanupInterval: 5 * time.Minute,
		idleAfter:       10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.startCleanup()

	return rl
}

func (rl *RateLimiter) client(ip string, now time.Time) *clientLimit {
	cl, exists := rl.limits[ip]
	if !exists {
		every := rate.Every(time.Minute / time.Duration(rl.perMinute))
		cl = &clientLimit{limiter: rate.NewLimiter(every, rl.perMinute)}
		rl.limits[ip] = cl
	}
	cl.lastSeen = now
	return cl
}

// CheckLimit reports whether a request from ip is allowed and consumes a token
func (rl *RateLimiter) CheckLimit(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	return rl.client(ip, now).limiter.AllowN(now, 1)
}

// GetRetryAfter returns the seconds until ip gets its next token
func (rl *RateLimiter) GetRetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.limits[ip]
	if !exists {
		return 0
	}

	now := time.Now()
	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return int(math.Ceil(delay.Seconds()))
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// startCleanup periodically forgets idle clients
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, cl := range rl.limits {
		if now.Sub(cl.lastSeen) > rl.idleAfter {
			delete(rl.limits, ip)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
