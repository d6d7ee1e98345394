package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

const limiterIdle = 5 * time.Minute

type visitor struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter is a per-IP token bucket. Each route group gets its own instance.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per IP with a burst of half that.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors: map[string]*visitor{},
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    max(perMinute/2, 1),
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !rl.allow(ctx.ClientIP()) {
			if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
				utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
				return
			}
			views.Error(ctx, http.StatusTooManyRequests, "Too many attempts, slow down.")
			return
		}
		ctx.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for k, v := range rl.visitors {
		if now.After(v.expires) {
			delete(rl.visitors, k)
		}
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.expires = now.Add(limiterIdle)
	return v.limiter.Allow()
}
