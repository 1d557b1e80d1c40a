// Package ratelimit provides per-sender admission control for message
// creation. It is process-local, best-effort abuse mitigation: in a
// multi-instance deployment each instance tracks its own counters, so the
// effective limit multiplies by the instance count. Promote the state to a
// shared counter store behind this same interface if that ever matters.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SenderLimiter admits up to burst sends per sender, refilling over the
// window. A sender who has been idle for a full window is back to a clean
// slate.
type SenderLimiter struct {
	mu      sync.Mutex
	senders map[string]*entry
	limit   rate.Limit
	burst   int
	window  time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter admitting burst sends per window per sender.
func New(burst int, window time.Duration) *SenderLimiter {
	return &SenderLimiter{
		senders: make(map[string]*entry),
		limit:   rate.Every(window / time.Duration(burst)),
		burst:   burst,
		window:  window,
	}
}

// Allow reports whether the sender may send now.
func (l *SenderLimiter) Allow(senderID string) bool {
	return l.AllowAt(senderID, time.Now())
}

// AllowAt is Allow with an explicit clock, for tests.
func (l *SenderLimiter) AllowAt(senderID string, now time.Time) bool {
	l.mu.Lock()
	e, ok := l.senders[senderID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.senders[senderID] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops senders idle for longer than the window so the map does not
// grow without bound. Call it periodically from a background goroutine.
func (l *SenderLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.senders {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.senders, id)
		}
	}
}

// Run sweeps on an interval until ctx-free stop via the returned func.
func (l *SenderLimiter) Run(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Sweep(time.Now())
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
