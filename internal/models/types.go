package models

import "time"

// Frame is one client frame. Either Points (landmarks computed on the client)
// or Image (raw JPEG/PNG, sent on to the landmark model) is set.
type Frame struct {
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	Points         [][2]float64 `json:"points,omitempty"`
	Image          []byte       `json:"image,omitempty"`
	Timestamp      int64        `json:"timestamp"`
	SequenceNumber int32        `json:"sequence_number,omitempty"`
}

// MaxClockSkew bounds how far a client timestamp may be from the server's
// receive time before it is replaced by the receive time.
const MaxClockSkew = 30 * time.Second

// ClientTime returns the client's timestamp, or received when the client
// sent none or its clock is off by more than MaxClockSkew.
func ClientTime(sent, received time.Time) time.Time {
	if sent.IsZero() {
		return received
	}
	if d := sent.Sub(received); d > MaxClockSkew || d < -MaxClockSkew {
		return received
	}
	return sent
}

// CapturedAt falls back to the receive time when the client sent no usable
// timestamp.
func (f Frame) CapturedAt(received time.Time) time.Time {
	if f.Timestamp <= 0 {
		return received
	}
	return ClientTime(time.UnixMilli(f.Timestamp), received)
}

type AlertMessage struct {
	TripID     int64     `json:"trip_id"`
	AlertType  string    `json:"alert_type"`
	OccurredAt time.Time `json:"occurred_at"`
	WindowSize int       `json:"recent_alert_count"`
}

type AlarmMessage struct {
	TripID int64 `json:"trip_id"`
	On     bool  `json:"on"`
}

type EmergencyMessage struct {
	TripID  int64  `json:"trip_id"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status          string `json:"status"`
	Database        bool   `json:"database"`
	Redis           bool   `json:"redis"`
	LandmarkService bool   `json:"landmark_service"`
	ActiveTrips     int    `json:"active_trips"`
	ActiveClients   int    `json:"active_clients"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Version         string `json:"version,omitempty"`
}
