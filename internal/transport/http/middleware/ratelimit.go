package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"docqa/internal/transport/http/response"
)

const limiterIdleTTL = 30 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter hands out one token bucket per authenticated user.
type UserRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	users   map[uint]*userLimiter
	lastGC  time.Time
	nowFunc func() time.Time
}

// NewUserRateLimiter allows perMinute requests per user with the given
// burst. A non-positive perMinute disables limiting.
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		limit:   limit,
		burst:   burst,
		users:   make(map[uint]*userLimiter),
		nowFunc: time.Now,
	}
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if now.Sub(l.lastGC) > limiterIdleTTL {
		for id, u := range l.users {
			if now.Sub(u.lastSeen) > limiterIdleTTL {
				delete(l.users, id)
			}
		}
		l.lastGC = now
	}

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

// RateLimit must run after AuthJWT.
func RateLimit(l *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := c.Get(ContextUserIDKey)
		id, _ := userID.(uint)
		if !l.Allow(id) {
			c.Header("Retry-After", "60")
			response.Error(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
