package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const connAdmissionSweepInterval = 10 * time.Minute

// connAdmission throttles WebSocket upgrade attempts per remote address,
// guarding against connection-flood abuse before a session (and its own
// per-session input/navigate buckets in internal/ratelimit) even exists.
// Keyed by client address rather than (session, kind); internal/ratelimit
// uses the same map-of-per-key-rate.Limiter-plus-sweep shape for its keys.
type connAdmission struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	r        rate.Limit
	burst    int
	stop     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func newConnAdmission(r rate.Limit, burst int) *connAdmission {
	a := &connAdmission{
		limiters: make(map[string]*limiterEntry),
		r:        r,
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go a.sweepLoop()
	return a
}

func (a *connAdmission) allow(addr string) bool {
	now := time.Now()
	a.mu.Lock()
	e, ok := a.limiters[addr]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(a.r, a.burst)}
		a.limiters[addr] = e
	}
	e.lastUsed = now
	l := e.limiter
	a.mu.Unlock()
	return l.Allow()
}

func (a *connAdmission) close() { close(a.stop) }

func (a *connAdmission) sweepLoop() {
	ticker := time.NewTicker(connAdmissionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-connAdmissionSweepInterval)
			a.mu.Lock()
			for addr, e := range a.limiters {
				if e.lastUsed.Before(cutoff) {
					delete(a.limiters, addr)
				}
			}
			a.mu.Unlock()
		}
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
