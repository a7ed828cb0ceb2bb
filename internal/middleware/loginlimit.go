package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/buddyapp/buddy-client-go/internal/audit"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httputil"
)

const (
	DefaultLoginMaxAttempts = 5
	DefaultLoginWindow      = time.Minute
	loginCleanupPeriod      = 5 * time.Minute
)

type loginAttempt struct {
	count       int
	windowStart time.Time
}

// LoginRateLimiter allows maxAttempts requests per client address in each
// fixed window.
type LoginRateLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	lastCleanup time.Time
}

func NewLoginRateLimiter(maxAttempts int, window time.Duration) *LoginRateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultLoginMaxAttempts
	}
	if window <= 0 {
		window = DefaultLoginWindow
	}
	return &LoginRateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		attempts:    make(map[string]*loginAttempt),
		lastCleanup: time.Now(),
	}
}

func (l *LoginRateLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < loginCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for key, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > l.window {
			delete(l.attempts, key)
		}
	}
}

// allow records an attempt for key and reports whether it fits the window.
func (l *LoginRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, ok := l.attempts[key]
	if !ok || now.Sub(attempt.windowStart) > l.window {
		l.attempts[key] = &loginAttempt{count: 1, windowStart: now}
		return true
	}
	if attempt.count >= l.maxAttempts {
		return false
	}
	attempt.count++
	return true
}

func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventLoginFailure,
				Details: map[string]interface{}{"reason": "rate_limited"},
			})
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			httputil.WriteErrorWithStatus(w, http.StatusTooManyRequests,
				apperrors.New(apperrors.ErrCodeForbidden, "Too many login attempts. Please try again later."))
			return
		}
		next.ServeHTTP(w, r)
	})
}
