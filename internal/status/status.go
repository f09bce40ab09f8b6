// Package status keeps the status line shown by the control panel: the
// latest delivery event plus a short history.
package status

import (
	"log/slog"
	"sync"
	"time"
)

// Delivery states in the order a delivery passes through them.
const (
	StateCapturing = "capturing"
	StateQueued    = "queued"
	StateSuccess   = "success"
	StateError     = "error"
)

const defaultHistory = 50

// Entry is one status line update.
type Entry struct {
	DeliveryID string    `json:"delivery_id"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives a copy of every recorded entry, e.g. a history file.
type Sink interface {
	Write(record any) error
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	current *Entry
	ring    []Entry
	next    int
	full    bool
	now     func() time.Time
	sink    Sink
}

// NewTracker keeps the last size entries. size <= 0 uses 50.
func NewTracker(size int) *Tracker {
	if size <= 0 {
		size = defaultHistory
	}
	return &Tracker{ring: make([]Entry, size), now: time.Now}
}

// WithSink makes t forward entries to sink.
func (t *Tracker) WithSink(sink Sink) *Tracker {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
	return t
}

// Record stores e as the current entry. A zero At is stamped.
func (t *Tracker) Record(e Entry) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.At.IsZero() {
		e.At = t.now()
	}
	t.ring[t.next] = e
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
	cur := e
	t.current = &cur
	if t.sink != nil {
		if err := t.sink.Write(e); err != nil {
			slog.Debug("status history write failed", "delivery_id", e.DeliveryID, "error", err)
		}
	}
	return e
}

// Current returns the latest entry, if any.
func (t *Tracker) Current() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Entry{}, false
	}
	return *t.current, true
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (t *Tracker) Recent(limit int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.full {
		n = len(t.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (t.next - i + len(t.ring)) % len(t.ring)
		out = append(out, t.ring[idx])
	}
	return out
}
