// Package analytics records product analytics events. Tracking is
// fire-and-forget: callers never see an error and a failing back end never
// interrupts the caller.
package analytics

import (
	"context"
	"log"
	"log/slog"
	"sort"
	"sync"
)

// Event keys emitted by the performance views.
const (
	EventFilterTransactions = "performance_views.summary.filter_transactions"
	EventViewInDiscover     = "performance_views.summary.view_in_discover"
	EventOpenComparison     = "performance_views.summary.open_comparison"
	EventPinBaseline        = "performance_views.summary.pin_baseline"
	EventViewDetails        = "performance_views.summary.view_details"
)

// Tracker receives analytics events.
type Tracker interface {
	Track(eventKey string, payload map[string]any)
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(eventKey string, payload map[string]any)

func (f TrackerFunc) Track(eventKey string, payload map[string]any) { f(eventKey, payload) }

// Nop drops every event.
var Nop Tracker = TrackerFunc(func(string, map[string]any) {})

// SlogTracker writes each event as a structured log record.
type SlogTracker struct {
	logger *slog.Logger
}

// NewSlogTracker returns a tracker logging through logger, or slog.Default
// when logger is nil.
func NewSlogTracker(logger *slog.Logger) *SlogTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTracker{logger: logger}
}

func (t *SlogTracker) Track(eventKey string, payload map[string]any) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("event", eventKey))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, payload[k]))
	}
	t.logger.LogAttrs(context.Background(), slog.LevelInfo, "analytics", attrs...)
}

// Safe wraps a tracker so that a panic inside Track is logged and swallowed.
func Safe(t Tracker) Tracker {
	if t == nil {
		return Nop
	}
	return TrackerFunc(func(eventKey string, payload map[string]any) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("⚠️  analytics: dropped %s: %v", eventKey, r)
			}
		}()
		t.Track(eventKey, payload)
	})
}

// Recorder keeps tracked events in memory. Tests and the stats endpoint use
// it to observe what was emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one event seen by a Recorder.
type Recorded struct {
	Key     string
	Payload map[string]any
}

func (r *Recorder) Track(eventKey string, payload map[string]any) {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	r.mu.Lock()
	r.events = append(r.events, Recorded{Key: eventKey, Payload: cp})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events with the given key were recorded.
func (r *Recorder) Count(eventKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Key == eventKey {
			n++
		}
	}
	return n
}

// Multi fans an event out to several trackers.
func Multi(trackers ...Tracker) Tracker {
	return TrackerFunc(func(eventKey string, payload map[string]any) {
		for _, t := range trackers {
			t.Track(eventKey, payload)
		}
	})
}
