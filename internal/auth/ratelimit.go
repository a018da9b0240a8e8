package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window per-key request limit backed by
// Redis INCR+EXPIRE: the first request in a window creates the counter and
// sets its expiry, and every request increments it.
type RateLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRateLimiter builds a RateLimiter keyed by prefix, allowing max requests
// per window per key.
func NewRateLimiter(client *redis.Client, prefix string, max int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, max: max, window: window}
}

// Allow increments the counter for key and reports whether the request
// should proceed. On Redis error it fails open so a cache outage does not
// take down lab creation.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= rl.max, nil
}

// Middleware enforces the rate limit keyed by the client IP address (the
// host part of the request's remote address).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}

		allowed, err := rl.Allow(r.Context(), key)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many lab creation requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
