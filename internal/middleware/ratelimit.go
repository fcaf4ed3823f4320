package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orgkit-backend/internal/cache"
)

const (
	authCallbackLimit  = 20
	authCallbackWindow = time.Minute
	inviteVisitLimit   = 30
	inviteVisitWindow  = time.Minute
	inviteTokenLimit   = 120
	inviteTokenWindow  = time.Hour
	tokenPrefixLen     = 12
)

// RateLimit allows limit requests per window for each key returned by keyFn.
// An empty key skips limiting, and cache errors fail open.
func RateLimit(cacheClient cache.Client, limit int64, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyFn(r); key != "" {
				count, err := cacheClient.IncrWithTTL(key, window)
				if err == nil && count > limit {
					w.Header().Set("Retry-After", retryAfter(window))
					http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitAuthCallbacks throttles code exchange and OTP confirmation per IP.
func RateLimitAuthCallbacks(cacheClient cache.Client) func(http.Handler) http.Handler {
	return RateLimit(cacheClient, authCallbackLimit, authCallbackWindow, func(r *http.Request) string {
		return "rl:auth:ip:" + clientIP(r)
	})
}

// RateLimitInviteVisits throttles invite visits per IP.
func RateLimitInviteVisits(cacheClient cache.Client) func(http.Handler) http.Handler {
	return RateLimit(cacheClient, inviteVisitLimit, inviteVisitWindow, func(r *http.Request) string {
		return "rl:invite:ip:" + clientIP(r)
	})
}

// RateLimitInviteToken throttles guessing against a single token prefix.
func RateLimitInviteToken(cacheClient cache.Client) func(http.Handler) http.Handler {
	return RateLimit(cacheClient, inviteTokenLimit, inviteTokenWindow, func(r *http.Request) string {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			return ""
		}
		if len(token) > tokenPrefixLen {
			token = token[:tokenPrefixLen]
		}
		return "rl:invite:token:" + token
	})
}

func retryAfter(window time.Duration) string {
	return strconv.Itoa(int(window / time.Second))
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
