package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/rag-chat-proxy/internal/codec"
	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

// idleClientTTL is how long an unused client bucket is kept.
const idleClientTTL = 10 * time.Minute

// ClientLimiter keeps one token bucket per client.
type ClientLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows rps requests per second per client with the given
// burst. A burst below one is raised to one.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow takes a token for client and reports the tokens left and, when
// refused, how long until the next one.
func (l *ClientLimiter) Allow(client string) (ok bool, remaining int, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, found := l.clients[client]
	if !found {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int(math.Max(0, math.Floor(b.limiter.TokensAt(now)))), 0
}

func (l *ClientLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleClientTTL {
		return
	}
	l.lastSweep = now
	for k, b := range l.clients {
		if now.Sub(b.lastSeen) > idleClientTTL {
			delete(l.clients, k)
		}
	}
}

// RateLimitMiddleware refuses requests over the per-client rate with 429 and
// reports the bucket state in x-ratelimit-* headers. Clients are identified
// by authenticated key name, falling back to the remote IP.
func RateLimitMiddleware(l *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ok, remaining, retryAfter := l.Allow(clientID(r))
			h := w.Header()
			h.Set("x-ratelimit-limit-requests", strconv.Itoa(l.burst))
			h.Set("x-ratelimit-remaining-requests", strconv.Itoa(remaining))
			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("x-ratelimit-reset-requests", retryAfter.Round(time.Millisecond).String())
				err := domain.ErrRateLimit("Rate limit exceeded, retry in " + strconv.Itoa(secs) + "s")
				AddError(r.Context(), err)
				codec.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	if key := GetAPIKey(r.Context()); key != nil {
		return "key:" + key.Name
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
