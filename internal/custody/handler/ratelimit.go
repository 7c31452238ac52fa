package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorIdle  = 10 * time.Minute
	sweepEvery   = 5 * time.Minute
	retryAfter   = "1"
	rateLimitMsg = "rate limit exceeded"
)

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// visitors holds one token bucket per client IP.
type visitors struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byIP  map[string]*visitor
}

func (v *visitors) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	vis := v.byIP[ip]
	if vis == nil {
		vis = &visitor{bucket: rate.NewLimiter(v.rps, v.burst)}
		v.byIP[ip] = vis
	}
	vis.seen = now
	v.mu.Unlock()
	return vis.bucket.AllowN(now, 1)
}

func (v *visitors) sweep(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ip, vis := range v.byIP {
		if now.Sub(vis.seen) > visitorIdle {
			delete(v.byIP, ip)
		}
	}
}

// RateLimiter limits each client IP to rps requests per second with the given
// burst. Idle buckets are dropped periodically until ctx is done.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	v := &visitors{rps: rate.Limit(rps), burst: burst, byIP: make(map[string]*visitor)}

	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				v.sweep(now)
			}
		}
	}()

	return func(c *gin.Context) {
		if v.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		rateLimitedTotal.Inc()
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": rateLimitMsg,
			"code":  "rate_limited",
		})
	}
}
