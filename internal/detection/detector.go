package detection

import (
	"fmt"
	"time"
)

const (
	EARThreshold     = 0.2
	EARConsecFrames  = 15
	MARThreshold     = 0.75
	YawnConsecFrames = 10
)

// AlertType is the kind of debounced event.
type AlertType string

const (
	AlertDrowsy AlertType = "drowsy"
	AlertYawn   AlertType = "yawn"
)

// ParseAlertType accepts the wire names used by clients.
func ParseAlertType(s string) (AlertType, error) {
	switch AlertType(s) {
	case AlertDrowsy, AlertYawn:
		return AlertType(s), nil
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

// AlertEvent is emitted once per sustained excursion.
type AlertEvent struct {
	Type       AlertType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlarmChange tells the caller how to drive the audio alarm after a frame.
type AlarmChange int

const (
	AlarmUnchanged AlarmChange = iota
	AlarmOn
	AlarmOff
)

func (c AlarmChange) String() string {
	switch c {
	case AlarmOn:
		return "on"
	case AlarmOff:
		return "off"
	}
	return "unchanged"
}

// NoFacePolicy decides what a frame without a face does to the counters.
type NoFacePolicy string

const (
	// NoFaceHold keeps counters and latches, only the audio alarm stops.
	NoFaceHold NoFacePolicy = "hold"
	// NoFaceReset treats a lost face like an open-eye, closed-mouth frame.
	NoFaceReset NoFacePolicy = "reset"
)

// ParseNoFacePolicy falls back to NoFaceHold for unknown values.
func ParseNoFacePolicy(s string) NoFacePolicy {
	if NoFacePolicy(s) == NoFaceReset {
		return NoFaceReset
	}
	return NoFaceHold
}

// DetectorState is the per-trip mutable state of the detector.
type DetectorState struct {
	ConsecutiveLowEARFrames  int  `json:"consecutive_low_ear_frames"`
	ConsecutiveHighMARFrames int  `json:"consecutive_high_mar_frames"`
	IsAlarming               bool `json:"is_alarming"`
	IsYawning                bool `json:"is_yawning"`
}

// Result is what a single frame produced.
type Result struct {
	Events []AlertEvent
	Alarm  AlarmChange
}

// Detector turns per-frame ratios into debounced events. Not safe for
// concurrent use; one detector belongs to one trip.
type Detector struct {
	state   DetectorState
	policy  NoFacePolicy
	audioOn bool
}

func NewDetector(policy NoFacePolicy) *Detector {
	return &Detector{policy: policy}
}

// State returns a copy of the current state.
func (d *Detector) State() DetectorState {
	return d.state
}

// AlarmActive reports whether the audio alarm is currently driven on.
func (d *Detector) AlarmActive() bool {
	return d.audioOn
}

// Reset reinitializes the detector for a new trip.
func (d *Detector) Reset() {
	d.state = DetectorState{}
	d.audioOn = false
}

// Process feeds one ratio sample taken at the given instant.
func (d *Detector) Process(s RatioSample, at time.Time) Result {
	var res Result

	if s.EAR < EARThreshold {
		d.state.ConsecutiveLowEARFrames++
		if d.state.ConsecutiveLowEARFrames >= EARConsecFrames {
			if !d.state.IsAlarming {
				d.state.IsAlarming = true
				res.Events = append(res.Events, AlertEvent{Type: AlertDrowsy, OccurredAt: at})
			}
			res.Alarm = d.setAudio(true)
		}
	} else {
		d.state.ConsecutiveLowEARFrames = 0
		d.state.IsAlarming = false
		res.Alarm = d.setAudio(false)
	}

	if s.MAR > MARThreshold {
		d.state.ConsecutiveHighMARFrames++
		if d.state.ConsecutiveHighMARFrames >= YawnConsecFrames && !d.state.IsYawning {
			d.state.IsYawning = true
			res.Events = append(res.Events, AlertEvent{Type: AlertYawn, OccurredAt: at})
		}
	} else {
		d.state.ConsecutiveHighMARFrames = 0
		d.state.IsYawning = false
	}

	return res
}

// NoFace handles a frame where the model found no face or the frame size is
// not known yet. The alarm always stops; counters follow the policy.
func (d *Detector) NoFace() Result {
	if d.policy == NoFaceReset {
		d.state = DetectorState{}
	}
	return Result{Alarm: d.setAudio(false)}
}

func (d *Detector) setAudio(on bool) AlarmChange {
	if d.audioOn == on {
		return AlarmUnchanged
	}
	d.audioOn = on
	if on {
		return AlarmOn
	}
	return AlarmOff
}
