// Package ratelimit implements the per-session token buckets that guard
// input and navigation events (spec §4.2). One Limiter instance is shared
// by the whole Gateway; buckets are addressed by (sessionID, Kind).
//
// Each bucket is a golang.org/x/time/rate.Limiter keyed in a map with an
// idle-cleanup sweep — the same map-of-per-key-limiters-plus-sweep shape
// internal/gateway/connlimiter.go already uses for per-IP connection
// admission, generalized here from a single global key (remote address)
// to the spec's (session, kind) keying.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind distinguishes the two rate-limited event classes (§4.2).
type Kind string

const (
	KindInput    Kind = "input"
	KindNavigate Kind = "navigate"
)

// Key identifies one bucket.
type Key struct {
	SessionID string
	Kind      Kind
}

// Config holds the capacity/refill-rate pair for one Kind.
type Config struct {
	Capacity float64
	Refill   float64 // tokens per second
}

// DefaultConfig returns the spec's default bucket parameters (§4.2).
func DefaultConfig() map[Kind]Config {
	return map[Kind]Config{
		KindInput:    {Capacity: 120, Refill: 60},
		KindNavigate: {Capacity: 10, Refill: 2},
	}
}

// Result is the outcome of a Consume call.
type Result struct {
	Allowed   bool
	Remaining float64
	ResetAt   time.Time // when the bucket returns to full (ALLOWED) or when n tokens will be available (DENIED)
}

type bucketEntry struct {
	limiter  *rate.Limiter
	capacity float64
	refill   float64
	lastUsed time.Time
}

// Limiter owns one rate.Limiter per (session, kind) key, guarded by a
// single mutex (§5: "rate-limiter map is guarded separately").
type Limiter struct {
	mu      sync.Mutex
	cfg     map[Kind]Config
	buckets map[Key]*bucketEntry
	stop    chan struct{}
	stopped bool
}

// New creates a Limiter with the given per-kind config and starts its
// idle-bucket cleanup sweep. Pass nil to use DefaultConfig.
func New(cfg map[Kind]Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[Key]*bucketEntry),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Close stops the background cleanup sweep. Safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.stop)
}

// Consume attempts to withdraw n tokens from the bucket for (sessionID, kind).
func (l *Limiter) Consume(sessionID string, kind Kind, n float64) Result {
	cfg, ok := l.cfg[kind]
	if !ok {
		// Unknown kind: fail open rather than panic on a misconfigured caller.
		return Result{Allowed: true, Remaining: 0, ResetAt: time.Now()}
	}

	key := Key{SessionID: sessionID, Kind: kind}
	now := time.Now()

	l.mu.Lock()
	e, ok := l.buckets[key]
	if !ok {
		e = &bucketEntry{
			limiter:  rate.NewLimiter(rate.Limit(cfg.Refill), int(cfg.Capacity)),
			capacity: cfg.Capacity,
			refill:   cfg.Refill,
		}
		l.buckets[key] = e
	}
	e.lastUsed = now
	lim := e.limiter
	l.mu.Unlock()

	reservation := lim.ReserveN(now, int(n))
	if !reservation.OK() {
		// n exceeds the bucket's burst size outright; it can never succeed.
		return Result{Allowed: false, Remaining: 0, ResetAt: now}
	}

	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return Result{Allowed: false, Remaining: lim.Tokens(), ResetAt: now.Add(delay)}
	}

	remaining := lim.Tokens()
	resetAt := now
	if remaining < cfg.Capacity {
		secondsToFull := (cfg.Capacity - remaining) / cfg.Refill
		resetAt = now.Add(time.Duration(secondsToFull * float64(time.Second)))
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

// Reset removes every bucket belonging to sessionID. Ending a session does
// not call it: an ended session's buckets stay in the map until the
// cleanup sweep drops them after cleanupInterval without use.
func (l *Limiter) Reset(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.buckets {
		if key.SessionID == sessionID {
			delete(l.buckets, key)
		}
	}
}

const cleanupInterval = 10 * time.Minute

// cleanupLoop periodically drops buckets that haven't been touched
// recently, bounding map growth across long process lifetimes even if a
// caller forgets to call Reset.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := time.Now().Add(-cleanupInterval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
