package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LoginLimiter throttles requests per client IP. Idle limiters expire from
// the cache after ten minutes.
type LoginLimiter struct {
	limiters *cache.Cache
	every    rate.Limit
	burst    int
}

// NewLoginLimiter allows perMinute requests per minute with the given burst.
// A non-positive perMinute disables limiting.
func NewLoginLimiter(perMinute, burst int) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / time.Minute.Seconds())
	}
	return &LoginLimiter{
		limiters: cache.New(10*time.Minute, 5*time.Minute),
		every:    limit,
		burst:    burst,
	}
}

func (l *LoginLimiter) Handle(c *gin.Context) {
	if !l.limiter(c.ClientIP()).Allow() {
		_ = c.Error(ErrTooManyRequests)
		c.Abort()
		return
	}
	c.Next()
}

func (l *LoginLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Get(key); ok {
		l.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.every, l.burst)
	if err := l.limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := l.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
