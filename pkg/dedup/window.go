// Package dedup implements the time-bounded fingerprint window that decides
// whether a candidate alert is admitted or suppressed
package dedup

import (
	"sync"
	"time"
)

// GraceMultiple bounds memory: entries idle for this many windows are evicted
const GraceMultiple = 3

// Decision is the outcome of a dedup check
type Decision int

const (
	Admit Decision = iota
	Suppress
)

// Entry tracks the observation history of one fingerprint
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Count       int       `json:"count"`
}

// Stats is a point-in-time summary of window activity
type Stats struct {
	Entries    int   `json:"entries"`
	Admitted   int64 `json:"admitted"`
	Suppressed int64 `json:"suppressed"`
	Evicted    int64 `json:"evicted"`
}

// Window is the stateful dedup structure. Each producer owns its own Window
// (namespaced by source), so admission never contends across detectors; the
// mutex still makes check-and-insert atomic for any shared use.
type Window struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*Entry

	admitted   int64
	suppressed int64
	evicted    int64
}

// NewWindow creates a dedup window with the given suppression span
func NewWindow(window time.Duration) *Window {
	return &Window{
		window:  window,
		entries: make(map[string]*Entry),
	}
}

// Check decides admit-or-suppress for a fingerprint at the given instant.
// An admitted fingerprint refreshes its entry; a suppressed one still counts
// the repeat for observability. The check and the insert are one critical
// section so two near-simultaneous candidates cannot both be admitted.
func (w *Window) Check(fingerprint string, now time.Time) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[fingerprint]
	if ok && now.Sub(e.LastSeen) > w.window*GraceMultiple {
		// Stale beyond the grace span; treat as never seen
		delete(w.entries, fingerprint)
		w.evicted++
		ok = false
	}

	if !ok {
		w.entries[fingerprint] = &Entry{
			Fingerprint: fingerprint,
			FirstSeen:   now,
			LastSeen:    now,
			Count:       1,
		}
		w.admitted++
		return Admit
	}

	if now.Sub(e.LastSeen) >= w.window {
		e.LastSeen = now
		e.Count++
		w.admitted++
		return Admit
	}

	e.Count++
	w.suppressed++
	return Suppress
}

// Sweep drops entries idle beyond the grace span. Called periodically by the
// owning producer loop; admission decisions never wait on it.
func (w *Window) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for fp, e := range w.entries {
		if now.Sub(e.LastSeen) > w.window*GraceMultiple {
			delete(w.entries, fp)
			removed++
		}
	}
	w.evicted += int64(removed)
	return removed
}

// Entry returns a copy of the tracked entry for a fingerprint, if present
func (w *Window) Entry(fingerprint string) (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[fingerprint]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Stats returns current window counters
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		Entries:    len(w.entries),
		Admitted:   w.admitted,
		Suppressed: w.suppressed,
		Evicted:    w.evicted,
	}
}
