package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"
)

// Message types shared by the websocket and the gRPC Watch stream.
const (
	MsgPing      = "PING"
	MsgFrame     = "FRAME"
	MsgWelcome   = "WELCOME"
	MsgPong      = "PONG"
	MsgAlert     = "ALERT"
	MsgAlarm     = "ALARM"
	MsgEmergency = "EMERGENCY"
	MsgError     = "ERROR"
)

type event struct {
	Type    string
	Payload interface{}
}

// outcomeEvents lists what a processed frame has to tell the driver.
func outcomeEvents(tripID int64, out monitor.Outcome) []event {
	var events []event
	for _, ev := range out.Events {
		events = append(events, event{MsgAlert, models.AlertMessage{
			TripID:     tripID,
			AlertType:  string(ev.Type),
			OccurredAt: ev.OccurredAt,
			WindowSize: out.WindowCount,
		}})
	}
	if out.Alarm != detection.AlarmUnchanged {
		events = append(events, event{MsgAlarm, models.AlarmMessage{TripID: tripID, On: out.Alarm == detection.AlarmOn}})
	}
	if out.EmergencyTriggered {
		events = append(events, event{MsgEmergency, models.EmergencyMessage{
			TripID: tripID,
			Message: fmt.Sprintf("%d alerts within %d minutes, emergency contacts are being notified",
				out.WindowCount, int(detection.EmergencyWindow.Minutes())),
		}})
	}
	return events
}

func errorEvent(code string, err error) event {
	return event{MsgError, models.ErrorResponse{Error: err.Error(), Code: code, Timestamp: time.Now().Unix()}}
}

// observer records metrics for every processed frame and forwards its events.
func (a *API) observer(tripID int64, send func(event)) func(monitor.Outcome) {
	return func(out monitor.Outcome) {
		a.Metrics.RecordFrame(out.Signal, out.Latency)
		for _, ev := range out.Events {
			a.Metrics.IncrementAlert(ev.Type)
		}
		for _, e := range outcomeEvents(tripID, out) {
			send(e)
		}
	}
}

// lazyFrame defers landmark resolution until the monitor takes the frame.
// A frame that cannot be resolved is reported to the driver and skipped.
func (a *API) lazyFrame(f models.Frame, received time.Time, send func(event)) monitor.LazyFrame {
	return func(ctx context.Context) (detection.FrameLandmarks, error) {
		lm, err := a.Resolver.Resolve(ctx, f, received)
		if err != nil {
			a.Metrics.IncrementErrors()
			send(errorEvent("frame_rejected", err))
			return lm, fmt.Errorf("%w: %v", monitor.ErrFrameUnusable, err)
		}
		return lm, nil
	}
}

// payloadMap flattens a payload into the generic map the protobuf Struct
// messages are built from.
func payloadMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
