package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdle       = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per caller key.
type Limiter struct {
	r   rate.Limit
	b   int
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a Limiter allowing r requests per second with burst b
// per caller. Call Run to evict idle callers.
func NewLimiter(r rate.Limit, b int) *Limiter {
	return &Limiter{r: r, b: b, now: time.Now, buckets: make(map[string]*bucket)}
}

// Allow spends one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.lastSeen = l.now()
	l.mu.Unlock()
	return bk.limiter.Allow()
}

// Sweep drops buckets not used since cutoff and returns how many went.
func (l *Limiter) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, bk := range l.buckets {
		if bk.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked callers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run evicts idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.now().Add(-limiterIdle))
		}
	}
}

// callerKey is the authenticated identity once Auth has run, the client IP
// before that.
func callerKey(c *gin.Context) string {
	if id := GetIdentity(c); id != 0 {
		return "id:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects callers whose bucket in l is empty.
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(callerKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
