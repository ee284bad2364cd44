package cooldown

import (
	"sync"
	"time"
)

// window holds the hit times of one key inside the trailing interval.
type window struct {
	hits []time.Time
}

func (w *window) prune(cutoff time.Time) {
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}

// Limiter allows at most max hits per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[string]*window
}

// New returns a limiter. A non-positive max or window disables limiting.
func New(max int, interval time.Duration) *Limiter {
	return &Limiter{max: max, window: interval, windows: make(map[string]*window)}
}

// Allow records a hit for key at now and reports whether it fits the budget.
// Rejected hits are not recorded.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil || l.max <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		w = &window{}
		l.windows[key] = w
	}
	w.prune(now.Add(-l.window))
	if len(w.hits) >= l.max {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}

// Count returns the hits of key still inside the window.
func (l *Limiter) Count(key string, now time.Time) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windows[key]
	if w == nil {
		return 0
	}
	w.prune(now.Add(-l.window))
	return len(w.hits)
}

// Sweep drops keys without hits in the window.
func (l *Limiter) Sweep(now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-l.window)
	for key, w := range l.windows {
		w.prune(cutoff)
		if len(w.hits) == 0 {
			delete(l.windows, key)
		}
	}
}
