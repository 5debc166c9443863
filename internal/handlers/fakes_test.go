package handlers

import (
	"context"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"
	"DriveGuard/go-backend/internal/repository"
	"DriveGuard/go-backend/internal/rewards"

	"go.uber.org/zap"
)

type memTrips struct {
	mu     sync.Mutex
	nextID int64
	trips  map[int64]*models.Trip
}

func newMemTrips() *memTrips {
	return &memTrips{trips: make(map[int64]*models.Trip)}
}

func (s *memTrips) Create(ctx context.Context, userID int64, start, end string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.trips[s.nextID] = &models.Trip{
		ID: s.nextID, UserID: userID, StartLocation: start, EndLocation: end,
		StartedAt: time.Now().Add(-time.Hour), Status: models.TripActive, SafetyScore: 100,
	}
	return s.nextID, nil
}

func (s *memTrips) Get(ctx context.Context, id, userID int64) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTrips) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Trip{}
	for _, t := range s.trips {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTrips) End(ctx context.Context, e repository.TripEnd) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[e.ID]
	if !ok || t.UserID != e.UserID || t.Status != models.TripActive {
		return nil, repository.ErrNotFound
	}
	ended := e.EndedAt
	t.EndedAt = &ended
	t.Status = models.TripCompleted
	t.DurationSeconds = e.DurationSeconds
	t.AlertCount = e.AlertCount
	t.YawnCount = e.YawnCount
	t.SafetyScore = e.SafetyScore
	t.PointsEarned = e.PointsEarned
	cp := *t
	return &cp, nil
}

func (s *memTrips) Delete(ctx context.Context, id, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.trips, id)
	return nil
}

func (s *memTrips) UserStats(ctx context.Context, userID int64) (models.DriverStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.DriverStats
	scores := 0
	for _, t := range s.trips {
		if t.UserID != userID || t.Status != models.TripCompleted {
			continue
		}
		scores += t.SafetyScore
		st.TotalTrips++
		if t.AlertCount == 0 {
			st.ZeroAlertTrips++
		}
		if t.SafetyScore >= rewards.HighSafetyScore {
			st.HighSafetyTrips++
		}
		st.TotalAlerts += t.AlertCount
		st.TotalYawns += t.YawnCount
	}
	if st.TotalTrips > 0 {
		st.AvgSafetyScore = scores / st.TotalTrips
	}
	return st, nil
}

func (s *memTrips) Summary(ctx context.Context, userID int64) (models.AnalyticsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out models.AnalyticsSummary
	scores := 0
	for _, t := range s.trips {
		if t.UserID != userID || t.Status != models.TripCompleted {
			continue
		}
		out.TotalTrips++
		out.TotalDuration += t.DurationSeconds
		out.TotalAlerts += t.AlertCount
		out.TotalYawns += t.YawnCount
		scores += t.SafetyScore
	}
	if out.TotalTrips > 0 {
		out.AvgAlertsPerTrip = float64(out.TotalAlerts) / float64(out.TotalTrips)
		out.AvgYawnsPerTrip = float64(out.TotalYawns) / float64(out.TotalTrips)
		out.OverallSafetyScore = scores / out.TotalTrips
	}
	return out, nil
}

func (s *memTrips) CompletedSince(ctx context.Context, userID int64, since time.Time) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Trip{}
	for _, t := range s.trips {
		if t.UserID == userID && t.Status == models.TripCompleted && !t.EndedAt.Before(since) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(*out[j].EndedAt) })
	return out, nil
}

func (s *memTrips) MarkEmergencyNotified(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trips[id]; ok {
		t.EmergencyNotified = true
	}
	return nil
}

type memAlerts struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (s *memAlerts) Insert(ctx context.Context, tripID int64, ev detection.AlertEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.records) + 1)
	s.records = append(s.records, models.AlertRecord{ID: id, TripID: tripID, AlertType: string(ev.Type), OccurredAt: ev.OccurredAt})
	return id, nil
}

func (s *memAlerts) SaveAlert(ctx context.Context, tripID int64, ev detection.AlertEvent) error {
	_, err := s.Insert(ctx, tripID, ev)
	return err
}

func (s *memAlerts) CountByTrip(ctx context.Context, tripID int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drowsy, yawns := 0, 0
	for _, r := range s.records {
		if r.TripID != tripID {
			continue
		}
		if r.AlertType == string(detection.AlertDrowsy) {
			drowsy++
		} else {
			yawns++
		}
	}
	return drowsy, yawns, nil
}

func (s *memAlerts) ListByTrip(ctx context.Context, tripID int64) ([]models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.AlertRecord{}
	for _, r := range s.records {
		if r.TripID == tripID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memContacts struct {
	mu       sync.Mutex
	contacts []models.EmergencyContact
}

func (s *memContacts) Create(ctx context.Context, userID int64, req models.CreateContactRequest) (*models.EmergencyContact, error) {
	if req.Name == "" || (req.Email == "" && req.Phone == "") {
		return nil, repository.ErrInvalidContact
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.EmergencyContact{
		ID: int64(len(s.contacts) + 1), UserID: userID, Name: req.Name,
		Email: req.Email, Phone: req.Phone, NotificationType: "email",
	}
	s.contacts = append(s.contacts, c)
	return &c, nil
}

func (s *memContacts) ListByUser(ctx context.Context, userID int64) ([]models.EmergencyContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.EmergencyContact{}
	for _, c := range s.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memContacts) Delete(ctx context.Context, id, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.contacts {
		if c.ID == id && c.UserID == userID {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memRewards struct {
	mu        sync.Mutex
	points    map[int64]int
	owned     map[int64]map[int64]bool
	streaks   map[int64]models.Streak
	catalogue []models.Badge
}

func newMemRewards() *memRewards {
	return &memRewards{
		points:  make(map[int64]int),
		owned:   make(map[int64]map[int64]bool),
		streaks: make(map[int64]models.Streak),
		catalogue: []models.Badge{
			{ID: 1, Name: "First Drive", CriteriaType: rewards.CriteriaTotalTrips, CriteriaValue: 1, PointsReward: 10},
			{ID: 2, Name: "Wide Awake", CriteriaType: rewards.CriteriaZeroAlertTrips, CriteriaValue: 1, PointsReward: 20},
		},
	}
}

func (s *memRewards) AddPoints(ctx context.Context, userID int64, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[userID] += points
	return s.points[userID], nil
}

func (s *memRewards) Points(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[userID], nil
}

func (s *memRewards) Catalogue(ctx context.Context) ([]models.Badge, error) {
	return s.catalogue, nil
}

func (s *memRewards) Badges(ctx context.Context, userID int64) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Badge{}
	for _, b := range s.catalogue {
		if s.owned[userID][b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memRewards) OwnedBadgeIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool)
	for id := range s.owned[userID] {
		out[id] = true
	}
	return out, nil
}

func (s *memRewards) AwardBadge(ctx context.Context, userID, badgeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned[userID] == nil {
		s.owned[userID] = make(map[int64]bool)
	}
	if s.owned[userID][badgeID] {
		return false, nil
	}
	s.owned[userID][badgeID] = true
	return true, nil
}

func (s *memRewards) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LeaderboardEntry{}
	for id, p := range s.points {
		out = append(out, models.LeaderboardEntry{UserID: id, Points: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (s *memRewards) Streak(ctx context.Context, userID int64) (models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[userID], nil
}

func (s *memRewards) RecordTripDay(ctx context.Context, userID int64, at time.Time) (models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[userID] = rewards.NextStreak(s.streaks[userID], at)
	return s.streaks[userID], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []monitor.Emergency
}

func (n *recordingNotifier) NotifyEmergency(ctx context.Context, e monitor.Emergency) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, e)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type recordingAlarm struct {
	mu    sync.Mutex
	state map[int64]bool
}

func (a *recordingAlarm) SetAlarm(ctx context.Context, tripID int64, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		a.state = make(map[int64]bool)
	}
	a.state[tripID] = on
	return nil
}

type testEnv struct {
	api      *API
	srv      *httptest.Server
	trips    *memTrips
	alerts   *memAlerts
	contacts *memContacts
	rewards  *memRewards
	notifier *recordingNotifier
	alarm    *recordingAlarm
	registry *monitor.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		trips:    newMemTrips(),
		alerts:   &memAlerts{},
		contacts: &memContacts{},
		rewards:  newMemRewards(),
		notifier: &recordingNotifier{},
		alarm:    &recordingAlarm{},
	}
	env.registry = monitor.NewRegistry(monitor.Deps{
		Alarm:    env.alarm,
		Sink:     env.alerts,
		Notifier: env.notifier,
		Logger:   zap.NewNop(),
	}, monitor.Options{NoFacePolicy: detection.NoFaceHold, Timeout: time.Second})

	env.api = NewAPI(Deps{
		Trips:          env.trips,
		Alerts:         env.alerts,
		Contacts:       env.contacts,
		Rewards:        env.rewards,
		Registry:       env.registry,
		Logger:         zap.NewNop(),
		DatabasePing:   func(ctx context.Context) error { return nil },
		AllowedOrigins: []string{"http://localhost:5000"},
		Version:        "test",
	})
	env.srv = httptest.NewServer(env.api.Router())
	t.Cleanup(func() {
		env.api.CloseClients()
		env.registry.StopAll()
		env.srv.Close()
	})
	return env
}

// framePayload converts synthesized landmarks into a client frame.
func framePayload(lm detection.FrameLandmarks) models.Frame {
	points := make([][2]float64, len(lm.Points))
	for i, p := range lm.Points {
		points[i] = [2]float64{p.X, p.Y}
	}
	return models.Frame{
		Width:     lm.Width,
		Height:    lm.Height,
		Points:    points,
		Timestamp: lm.CapturedAt.UnixMilli(),
	}
}
