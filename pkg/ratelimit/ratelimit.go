// Package ratelimit admits actions under a sliding window: at most
// Threshold actions per (actor, action) key in any trailing Window. The
// prune-check-record ordering guarantees a rejected attempt never occupies
// a window slot and stale entries cannot accumulate.
package ratelimit

import (
	"sync"
	"time"

	"msgcore/pkg/clock"
	"msgcore/pkg/telemetry"
)

// ActionSend is the action kind guarding message sends.
const ActionSend = "message.send"

// Limiter holds one sliding window per (actor, action) key. The map mutex
// is held only for key lookup; admission itself locks the single window,
// so unrelated actors never serialize on each other's admission checks.
type Limiter struct {
	window    time.Duration
	threshold int
	clk       clock.Clock

	mu   sync.Mutex
	wins map[string]*window
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// New creates a limiter admitting at most threshold actions per window.
func New(win time.Duration, threshold int, clk clock.Clock) *Limiter {
	if win <= 0 {
		win = 60 * time.Second
	}
	if threshold <= 0 {
		threshold = 5
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{
		window:    win,
		threshold: threshold,
		clk:       clk,
		wins:      make(map[string]*window),
	}
}

func (l *Limiter) win(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wins[key]
	if !ok {
		w = &window{}
		l.wins[key] = w
	}
	return w
}

// Admit decides whether actor may perform action now. On admission the
// attempt is recorded; on rejection nothing is recorded.
func (l *Limiter) Admit(actorID, action string) bool {
	now := l.clk.Now()
	cutoff := now.Add(-l.window)
	w := l.win(actorID + "|" + action)

	w.mu.Lock()
	defer w.mu.Unlock()

	// prune first so old entries never count against the threshold
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= l.threshold {
		telemetry.RateLimited.Inc()
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// PruneIdle drops windows whose newest entry is older than the window
// length, returning how many were removed. Called by the retention
// sweeper so long-gone actors do not pin memory.
func (l *Limiter) PruneIdle() int {
	cutoff := l.clk.Now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, w := range l.wins {
		w.mu.Lock()
		idle := len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.wins, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of live windows.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.wins)
}
