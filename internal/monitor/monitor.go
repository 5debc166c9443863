package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"DriveGuard/go-backend/internal/detection"

	"go.uber.org/zap"
)

var (
	// ErrFrameInFlight is returned when a frame arrives while the previous one
	// is still being processed. The frame is skipped.
	ErrFrameInFlight = errors.New("frame skipped: previous frame still in flight")
	ErrStopped       = errors.New("monitor stopped")
	// ErrFrameUnusable marks a source error that only affects one frame.
	// Run skips such frames and keeps going.
	ErrFrameUnusable = errors.New("frame unusable")
)

// Alarm drives the audio alarm of the driver's device.
type Alarm interface {
	SetAlarm(ctx context.Context, tripID int64, on bool) error
}

// EventSink persists alert events.
type EventSink interface {
	SaveAlert(ctx context.Context, tripID int64, ev detection.AlertEvent) error
}

// Emergency describes a window that crossed the notification threshold.
type Emergency struct {
	TripID      int64     `json:"trip_id"`
	UserID      int64     `json:"user_id"`
	AlertCount  int       `json:"alert_count"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Notifier delivers the emergency signal. Called at most once per trip.
type Notifier interface {
	NotifyEmergency(ctx context.Context, e Emergency) error
}

type Deps struct {
	Alarm    Alarm
	Sink     EventSink
	Notifier Notifier
	Logger   *zap.Logger
}

type Options struct {
	NoFacePolicy detection.NoFacePolicy
	// Timeout bounds every collaborator call.
	Timeout time.Duration
}

// Outcome is what one processed frame produced.
type Outcome struct {
	Signal             bool
	Sample             detection.RatioSample
	Events             []detection.AlertEvent
	Alarm              detection.AlarmChange
	EmergencyTriggered bool
	WindowCount        int
	Latency            time.Duration
}

// Summary is the trip's final tally.
type Summary struct {
	TripID            int64 `json:"trip_id"`
	DrowsyCount       int   `json:"alert_count"`
	YawnCount         int   `json:"yawn_count"`
	EmergencyNotified bool  `json:"emergency_notified"`
	FramesProcessed   int   `json:"frames_processed"`
	FramesNoFace      int   `json:"frames_no_face"`
	FramesDropped     int   `json:"frames_dropped"`
}

// AlertResult is returned for alerts reported by clients that run the
// detector themselves.
type AlertResult struct {
	Triggered   bool
	Notified    bool
	WindowCount int
}

// Monitor owns the detection state of one trip.
type Monitor struct {
	tripID  int64
	userID  int64
	deps    Deps
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inFlight atomic.Bool
	mu       sync.Mutex
	detector *detection.Detector
	window   *detection.Window
	summary  Summary

	running  sync.WaitGroup
	bg       sync.WaitGroup
	stopOnce sync.Once
}

func New(tripID, userID int64, deps Deps, opts Options) *Monitor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		tripID:   tripID,
		userID:   userID,
		deps:     deps,
		timeout:  opts.Timeout,
		log:      deps.Logger.With(zap.Int64("trip_id", tripID)),
		ctx:      ctx,
		cancel:   cancel,
		detector: detection.NewDetector(opts.NoFacePolicy),
		window:   detection.NewWindow(),
		summary:  Summary{TripID: tripID},
	}
}

// ProcessFrame runs one detection cycle. Overlapping calls are rejected with
// ErrFrameInFlight rather than run concurrently.
func (m *Monitor) ProcessFrame(f detection.FrameLandmarks) (Outcome, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.mu.Lock()
		m.summary.FramesDropped++
		m.mu.Unlock()
		return Outcome{}, ErrFrameInFlight
	}
	defer m.inFlight.Store(false)

	if m.ctx.Err() != nil {
		return Outcome{}, ErrStopped
	}
	start := time.Now()

	at := f.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}

	var (
		out       Outcome
		res       detection.Result
		emergency *Emergency
	)

	m.mu.Lock()
	sample, ok := detection.Extract(f)
	if ok {
		m.summary.FramesProcessed++
		res = m.detector.Process(sample, at)
	} else {
		m.summary.FramesNoFace++
		res = m.detector.NoFace()
	}
	out.Signal = ok
	out.Sample = sample
	out.Events = res.Events
	out.Alarm = res.Alarm
	for _, ev := range res.Events {
		if e := m.recordLocked(ev); e != nil {
			emergency = e
		}
	}
	out.WindowCount = m.window.Count()
	m.mu.Unlock()

	out.EmergencyTriggered = emergency != nil

	switch res.Alarm {
	case detection.AlarmOn:
		m.setAlarm(true)
	case detection.AlarmOff:
		m.setAlarm(false)
	}

	for _, ev := range res.Events {
		m.saveAlert(ev)
	}
	if emergency != nil {
		m.notify(*emergency)
	}

	out.Latency = time.Since(start)
	return out, nil
}

// FrameDropped counts a frame the transport discarded before it reached
// the monitor.
func (m *Monitor) FrameDropped() {
	m.mu.Lock()
	m.summary.FramesDropped++
	m.mu.Unlock()
}

// RecordAlert feeds an alert detected on the client into the trip's window.
// Persisting the alert is left to the caller.
func (m *Monitor) RecordAlert(ev detection.AlertEvent) (AlertResult, error) {
	if m.ctx.Err() != nil {
		return AlertResult{}, ErrStopped
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	m.mu.Lock()
	emergency := m.recordLocked(ev)
	res := AlertResult{
		Triggered:   emergency != nil,
		Notified:    m.window.Notified(),
		WindowCount: m.window.Count(),
	}
	m.mu.Unlock()

	if emergency != nil {
		m.notify(*emergency)
	}
	return res, nil
}

// recordLocked must be called with mu held.
func (m *Monitor) recordLocked(ev detection.AlertEvent) *Emergency {
	switch ev.Type {
	case detection.AlertDrowsy:
		m.summary.DrowsyCount++
	case detection.AlertYawn:
		m.summary.YawnCount++
	}

	m.log.Info("alert detected",
		zap.String("alert_type", string(ev.Type)),
		zap.Time("occurred_at", ev.OccurredAt),
	)

	if !m.window.Record(ev.OccurredAt) {
		return nil
	}
	m.summary.EmergencyNotified = true
	return &Emergency{
		TripID:      m.tripID,
		UserID:      m.userID,
		AlertCount:  m.window.Count(),
		TriggeredAt: ev.OccurredAt,
	}
}

// Run pulls frames from src until ctx is cancelled, the source is exhausted
// or the monitor is stopped. src is closed on every exit path. observe, when
// not nil, sees the outcome of every processed frame.
func (m *Monitor) Run(ctx context.Context, src Source, observe func(Outcome)) error {
	m.running.Add(1)
	defer m.running.Done()
	defer func() {
		if err := src.Close(); err != nil {
			m.log.Warn("failed to release frame source", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopRun := context.AfterFunc(m.ctx, cancel)
	defer stopRun()

	for {
		if m.ctx.Err() != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || m.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrFrameUnusable) && ctx.Err() == nil {
				m.log.Debug("frame skipped", zap.Error(err))
				continue
			}
			return err
		}

		out, err := m.ProcessFrame(f)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			m.log.Debug("frame not processed", zap.Error(err))
			continue
		}
		if observe != nil {
			observe(out)
		}
	}
}

// Stop halts the frame loop, switches the alarm off and waits for pending
// collaborator calls. Safe to call more than once.
func (m *Monitor) Stop() Summary {
	m.stopOnce.Do(func() {
		m.cancel()
		m.running.Wait()

		m.mu.Lock()
		alarmOn := m.detector.AlarmActive()
		m.detector.Reset()
		m.mu.Unlock()
		if alarmOn {
			m.setAlarm(false)
		}

		m.bg.Wait()
		s := m.Summary()
		m.log.Info("trip monitor stopped",
			zap.Int("alert_count", s.DrowsyCount),
			zap.Int("yawn_count", s.YawnCount),
			zap.Bool("emergency_notified", s.EmergencyNotified),
			zap.Int("frames_dropped", s.FramesDropped),
		)
	})
	return m.Summary()
}

// Summary returns the running tally.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

// State exposes the detector state, mostly for diagnostics.
func (m *Monitor) State() detection.DetectorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector.State()
}

func (m *Monitor) setAlarm(on bool) {
	if m.deps.Alarm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.deps.Alarm.SetAlarm(ctx, m.tripID, on); err != nil {
		m.log.Warn("failed to switch alarm", zap.Bool("on", on), zap.Error(err))
	}
}

func (m *Monitor) saveAlert(ev detection.AlertEvent) {
	if m.deps.Sink == nil {
		return
	}
	m.async("save alert", func(ctx context.Context) error {
		return m.deps.Sink.SaveAlert(ctx, m.tripID, ev)
	})
}

// notify fires once per trip; the window flag is already set, so a failed
// delivery is logged and not retried here.
func (m *Monitor) notify(e Emergency) {
	m.log.Warn("emergency threshold reached",
		zap.Int("alert_count", e.AlertCount),
		zap.Time("triggered_at", e.TriggeredAt),
	)
	if m.deps.Notifier == nil {
		return
	}
	m.async("notify emergency contacts", func(ctx context.Context) error {
		return m.deps.Notifier.NotifyEmergency(ctx, e)
	})
}

func (m *Monitor) async(what string, fn func(ctx context.Context) error) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.log.Error("collaborator call failed", zap.String("call", what), zap.Error(err))
		}
	}()
}
