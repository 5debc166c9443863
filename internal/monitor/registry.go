package monitor

import (
	"sync"
	"time"
)

// endedTTL is how long an ended trip stays refused by Ensure. It only has to
// outlive the gap between stopping the monitor and the trip's end being
// committed.
const endedTTL = time.Minute

// Registry tracks the monitors of active trips.
type Registry struct {
	mu       sync.RWMutex
	monitors map[int64]*Monitor
	ended    map[int64]time.Time
	closed   bool
	deps     Deps
	opts     Options
}

func NewRegistry(deps Deps, opts Options) *Registry {
	return &Registry{
		monitors: make(map[int64]*Monitor),
		ended:    make(map[int64]time.Time),
		deps:     deps,
		opts:     opts,
	}
}

// Start creates a fresh monitor for the trip. A monitor left over from an
// earlier start of the same trip is stopped first, so state never carries
// over.
func (r *Registry) Start(tripID, userID int64) *Monitor {
	m := New(tripID, userID, r.deps, r.opts)

	r.mu.Lock()
	old := r.monitors[tripID]
	r.monitors[tripID] = m
	delete(r.ended, tripID)
	r.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return m
}

func (r *Registry) Get(tripID int64) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[tripID]
	return m, ok
}

// Ensure returns the trip's monitor, starting one when the trip has none
// (for example after a restart of this process). It returns ErrStopped for a
// trip that was just ended and after StopAll.
func (r *Registry) Ensure(tripID, userID int64) (*Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[tripID]; ok {
		return m, nil
	}
	if r.closed {
		return nil, ErrStopped
	}
	if at, ok := r.ended[tripID]; ok && time.Since(at) < endedTTL {
		return nil, ErrStopped
	}
	m := New(tripID, userID, r.deps, r.opts)
	r.monitors[tripID] = m
	return m, nil
}

// End stops and forgets the trip's monitor. Ensure refuses the trip for a
// while afterwards.
func (r *Registry) End(tripID int64) (Summary, bool) {
	now := time.Now()

	r.mu.Lock()
	m, ok := r.monitors[tripID]
	delete(r.monitors, tripID)
	for id, at := range r.ended {
		if now.Sub(at) >= endedTTL {
			delete(r.ended, id)
		}
	}
	r.ended[tripID] = now
	r.mu.Unlock()

	if !ok {
		return Summary{}, false
	}
	return m.Stop(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// StopAll ends every trip, used on shutdown. Ensure starts no monitors
// afterwards.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := r.monitors
	r.monitors = make(map[int64]*Monitor)
	r.closed = true
	r.mu.Unlock()

	for _, m := range all {
		m.Stop()
	}
}
