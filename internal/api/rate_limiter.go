package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oggyb/soulmate-hub/internal/db"
)

// defaultIdleTTL is how long an unused bucket is kept.
const defaultIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. The bucket's rate follows
// the caller's current role; buckets idle for longer than idleTTL are
// dropped on the next sweep.
type RateLimiter struct {
	limiters  map[string]*visitor
	mu        sync.Mutex
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time

	registeredLimit rate.Limit
	premiumLimit    rate.Limit
	staffLimit      rate.Limit

	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(registeredRPS, premiumRPS, staffRPS, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters:        make(map[string]*visitor),
		idleTTL:         defaultIdleTTL,
		lastSweep:       time.Now(),
		now:             time.Now,
		registeredLimit: rate.Limit(registeredRPS),
		premiumLimit:    rate.Limit(premiumRPS),
		staffLimit:      rate.Limit(staffRPS),
		burstSize:       burst,
	}
}

func (rl *RateLimiter) limitFor(role db.Role) rate.Limit {
	switch role {
	case db.RoleGold, db.RolePlatinum:
		return rl.premiumLimit
	case db.RoleModerator, db.RoleAdmin:
		return rl.staffLimit
	default:
		return rl.registeredLimit
	}
}

// getLimiter returns the bucket for key at role's rate. A role change
// adjusts the existing bucket instead of adding a new one.
func (rl *RateLimiter) getLimiter(key string, role db.Role) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweepLocked(now)
	}

	limit := rl.limitFor(role)
	v, exists := rl.limiters[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(limit, rl.burstSize)}
		rl.limiters[key] = v
	} else if v.limiter.Limit() != limit {
		v.limiter.SetLimitAt(now, limit)
	}
	v.lastSeen = now
	return v.limiter
}

// sweepLocked drops buckets unused for idleTTL. Callers hold mu.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) >= rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
	rl.lastSweep = now
}

// size reports how many buckets are held.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimitMiddleware enforces the per-user limit. It must run after auth;
// callers without a principal are keyed by client IP at the registered rate.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, role := clientIP(r), db.RoleRegistered
			if p := currentProfile(r); p != nil {
				key, role = p.ID.String(), p.Role
			} else if id := principal(r); id != uuid.Nil {
				key = id.String()
			}

			if !rl.getLimiter(key, role).Allow() {
				respondMessage(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
