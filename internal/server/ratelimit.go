package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const clientIdleTTL = 10 * time.Minute

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (cl *clientLimiter) get(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	for k, b := range cl.clients {
		if now.Sub(b.lastSeen) > clientIdleTTL {
			delete(cl.clients, k)
		}
	}

	b, ok := cl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// RateLimitMiddleware throttles each client address to perSecond requests
// with the given burst, writing normalized x-ratelimit-* headers. Rejected
// requests get 429 with the usual error body. A non-positive rate disables it.
func RateLimitMiddleware(perSecond float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 {
			return next
		}
		cl := newClientLimiter(perSecond, burst)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := cl.get(clientKey(r))
			allowed := lim.Allow()

			h := w.Header()
			h.Set("x-ratelimit-limit-requests", strconv.Itoa(cl.burst))
			h.Set("x-ratelimit-remaining-requests", strconv.Itoa(max(0, int(lim.Tokens()))))

			if !allowed {
				retry := time.Duration(float64(time.Second) / perSecond)
				h.Set("Retry-After", strconv.Itoa(max(1, int(retry.Round(time.Second)/time.Second))))
				writeError(w, r, tooManyRequests())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
