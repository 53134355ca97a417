package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the remote address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter allows perMinute requests per key with bursts of the same size.
func NewLimiter(perMinute int, key KeyFunc) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if key == nil {
		key = ClientIP
	}
	return &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		key:     key,
		buckets: make(map[string]*rate.Limiter),
	}
}

// GinMiddleware returns gin handler enforcing per-key limits.
func (l *Limiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.bucket(l.key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}
