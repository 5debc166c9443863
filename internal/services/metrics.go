package services

import (
	"sync"
	"sync/atomic"
	"time"

	"DriveGuard/go-backend/internal/detection"
)

type Metrics struct {
	framesProcessed atomic.Int64
	framesNoFace    atomic.Int64
	framesDropped   atomic.Int64
	totalErrors     atomic.Int64
	totalLatency    atomic.Int64
	lastFrameTime   atomic.Int64

	drowsyAlerts  atomic.Int64
	yawnAlerts    atomic.Int64
	notifications atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

// RecordFrame counts one frame that went through the detector.
func (m *Metrics) RecordFrame(hadFace bool, latency time.Duration) {
	if hadFace {
		m.framesProcessed.Add(1)
	} else {
		m.framesNoFace.Add(1)
	}
	m.totalLatency.Add(latency.Microseconds())
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementDropped() {
	m.framesDropped.Add(1)
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) IncrementAlert(alertType detection.AlertType) {
	switch alertType {
	case detection.AlertDrowsy:
		m.drowsyAlerts.Add(1)
	case detection.AlertYawn:
		m.yawnAlerts.Add(1)
	}
}

func (m *Metrics) IncrementNotifications() {
	m.notifications.Add(1)
}

// GetAvgLatencyMs is the mean detection latency per frame.
func (m *Metrics) GetAvgLatencyMs() float64 {
	frames := m.framesProcessed.Load() + m.framesNoFace.Load()
	if frames == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(frames) / 1000
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// Snapshot renders every counter for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"frames": map[string]interface{}{
			"processed":       m.framesProcessed.Load(),
			"no_face":         m.framesNoFace.Load(),
			"dropped":         m.framesDropped.Load(),
			"errors":          m.totalErrors.Load(),
			"avg_latency_ms":  m.GetAvgLatencyMs(),
			"last_frame_unix": m.lastFrameTime.Load(),
		},
		"alerts": map[string]interface{}{
			"drowsy":        m.drowsyAlerts.Load(),
			"yawn":          m.yawnAlerts.Load(),
			"notifications": m.notifications.Load(),
		},
		"websocket": map[string]interface{}{
			"connections": m.wsConnections.Load(),
			"messages":    m.wsMessages.Load(),
			"errors":      m.wsErrors.Load(),
		},
	}
}
