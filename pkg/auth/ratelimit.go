package auth

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/payscope/payscope/pkg/api"
)

// TenantLimiterStore hands out a token-bucket limiter per bank, creating one
// on first use. Zero value is not usable; construct with NewTenantLimiterStore.
type TenantLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewTenantLimiterStore builds a store handing out rps-per-second, burst-sized
// limiters keyed by bank ID.
func NewTenantLimiterStore(rps float64, burst int) *TenantLimiterStore {
	return &TenantLimiterStore{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (s *TenantLimiterStore) limiterFor(bankID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[bankID]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[bankID] = l
	}
	return l
}

// RateLimitMiddleware enforces per-tenant rate limiting at the HTTP layer.
// It keys the limiter on the bound tenant's bank ID, falling back to the
// remote address for unauthenticated requests. On limit exceeded it returns
// 429 with a Retry-After header. A nil store means rate limiting is disabled.
func RateLimitMiddleware(store *TenantLimiterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				key = principal.GetTenantID()
			}

			if !store.limiterFor(key).Allow() {
				api.WriteTooManyRequests(w, 1)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
