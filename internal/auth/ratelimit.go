package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
)

// Tracker counts requests per subject within the current rate window.
type Tracker interface {
	Track(ctx context.Context, subject string) (int64, error)
}

// LoginRateLimiter caps login attempts per client IP per minute. The count
// lives in the cache, so limits hold across instances.
type LoginRateLimiter struct {
	tracker Tracker
	max     int64
}

func NewLoginRateLimiter(tracker Tracker, max int) *LoginRateLimiter {
	if max <= 0 {
		max = 20
	}
	return &LoginRateLimiter{tracker: tracker, max: int64(max)}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := l.tracker.Track(r.Context(), "login:"+clientIP(r))
		if err != nil {
			// The limiter must not take logins down with it.
			sentry.CaptureException(err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.max {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
