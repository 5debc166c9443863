package detection

import "time"

const (
	EmergencyWindow     = 2 * time.Minute
	EmergencyAlertCount = 5
)

// Window is the trip's rolling alert window together with the at-most-once
// notification flag.
type Window struct {
	times    []time.Time
	notified bool
}

func NewWindow() *Window {
	return &Window{}
}

// Record appends an alert timestamp, drops everything older than one window
// before it and reports whether the emergency notification must fire now.
// It returns true at most once until Reset.
func (w *Window) Record(at time.Time) bool {
	w.times = append(w.times, at)

	cutoff := at.Add(-EmergencyWindow)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= EmergencyAlertCount && !w.notified {
		w.notified = true
		return true
	}
	return false
}

// Count is the number of alerts currently inside the window.
func (w *Window) Count() int {
	return len(w.times)
}

func (w *Window) Notified() bool {
	return w.notified
}

// Reset clears the window and the flag for a new trip.
func (w *Window) Reset() {
	w.times = nil
	w.notified = false
}
