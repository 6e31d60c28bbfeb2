package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles admin password attempts per client address.
type loginLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	seen  map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	last time.Time
}

func newLoginLimiter(every time.Duration, burst int) *loginLimiter {
	return &loginLimiter{every: rate.Every(every), burst: burst, seen: map[string]*limiterEntry{}}
}

func (l *loginLimiter) allow(r *http.Request, now time.Time) bool {
	key := clientIP(r)
	l.mu.Lock()
	defer l.mu.Unlock()

	// forget idle clients
	if len(l.seen) > 1024 {
		for k, e := range l.seen {
			if now.Sub(e.last) > time.Hour {
				delete(l.seen, k)
			}
		}
	}
	e, ok := l.seen[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.seen[key] = e
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
