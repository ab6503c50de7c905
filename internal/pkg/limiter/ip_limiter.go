/*
Package limiter provides per-client-IP request rate limiting for the HTTP surface.

Each IP gets its own token bucket (rate.Limiter). A background sweep drops buckets that
have refilled completely so idle clients do not accumulate.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/resp"
)

// sweepInterval is how often idle buckets are removed.
const sweepInterval = 3 * time.Minute

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter

	r rate.Limit
	b int

	now func() time.Time
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b per IP.
// The idle sweep runs until ctx is cancelled.
func NewIPRateLimiter(ctx context.Context, r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		now:    time.Now,
	}

	go i.sweepLoop(ctx)

	return i
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if limiter, exists = i.limits[ip]; !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.limits[ip] = limiter
	}

	return limiter
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.limits)
}

func (i *IPRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, remaining := i.sweep()
			if removed > 0 {
				logx.Info("Rate limiter sweep finished", "removed", removed, "remaining", remaining)
			}
		}
	}
}

// sweep deletes buckets whose tokens are back at burst capacity.
func (i *IPRateLimiter) sweep() (removed, remaining int) {
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}

	return removed, len(i.limits)
}

// Middleware rejects requests over the per-IP limit with ErrRateLimitExceeded (HTTP 429).
// It expects chi's RealIP middleware to have normalized RemoteAddr.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !i.GetLimiter(ip).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
