package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	// maxThrottleClients bounds the per-IP limiter map.
	maxThrottleClients = 4096
	// throttleIdleTTL is how long an idle client entry is kept.
	throttleIdleTTL = 10 * time.Minute
)

type throttleClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// writeThrottle limits message posts per client IP with a bounded map:
// idle clients are evicted when a new IP arrives at capacity.
type writeThrottle struct {
	rate       rate.Limit
	burst      int
	maxClients int

	mu      sync.Mutex
	clients map[string]*throttleClient
}

func newThrottle(perSecond float64, burst int) *writeThrottle {
	return &writeThrottle{
		rate:       rate.Limit(perSecond),
		burst:      burst,
		maxClients: maxThrottleClients,
		clients:    make(map[string]*throttleClient),
	}
}

func (t *writeThrottle) allow(ip string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[ip]
	if !ok {
		if len(t.clients) >= t.maxClients {
			t.evictLocked(now)
		}
		c = &throttleClient{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// evictLocked drops clients idle past the TTL, falling back to the least
// recently seen entry so the map never grows past maxClients.
func (t *writeThrottle) evictLocked(now time.Time) {
	var (
		oldestIP   string
		oldestSeen time.Time
	)
	for ip, c := range t.clients {
		if now.Sub(c.lastSeen) > throttleIdleTTL {
			delete(t.clients, ip)
			continue
		}
		if oldestIP == "" || c.lastSeen.Before(oldestSeen) {
			oldestIP, oldestSeen = ip, c.lastSeen
		}
	}
	if len(t.clients) >= t.maxClients && oldestIP != "" {
		delete(t.clients, oldestIP)
	}
}

// newWriteThrottle wraps writeThrottle as echo middleware.
func newWriteThrottle(perSecond float64, burst int) echo.MiddlewareFunc {
	t := newThrottle(perSecond, burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !t.allow(c.RealIP(), time.Now()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
