package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"
	"DriveGuard/go-backend/internal/repository"
	"DriveGuard/go-backend/internal/rewards"

	"go.uber.org/zap"
)

func (a *API) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	var req models.StartTripRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID := driverID(r)
	tripID, err := a.Trips.Create(ctx, userID, req.StartLocation, req.EndLocation)
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}
	a.Registry.Start(tripID, userID)

	a.Logger.Info("trip started", zap.Int64("trip_id", tripID), zap.Int64("user_id", userID))
	writeJSON(w, http.StatusCreated, models.StartTripResponse{TripID: tripID, Status: models.TripActive})
}

func (a *API) handleListTrips(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trips, err := a.Trips.ListByUser(ctx, driverID(r), queryInt(r, "limit", 50, 500))
	if err != nil {
		a.storeError(w, err, "trips")
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

type tripDetail struct {
	Trip   *models.Trip         `json:"trip"`
	Alerts []models.AlertRecord `json:"alerts"`
	Live   *monitor.Summary     `json:"live,omitempty"`
}

func (a *API) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trip, err := a.Trips.Get(ctx, pathID(r), driverID(r))
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}
	alerts, err := a.Alerts.ListByTrip(ctx, trip.ID)
	if err != nil {
		a.storeError(w, err, "alerts")
		return
	}

	detail := tripDetail{Trip: trip, Alerts: alerts}
	if m, ok := a.Registry.Get(trip.ID); ok {
		s := m.Summary()
		detail.Live = &s
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, tripID := driverID(r), pathID(r)
	if _, err := a.Trips.Get(ctx, tripID, userID); err != nil {
		a.storeError(w, err, "trip")
		return
	}
	a.Registry.End(tripID)
	if err := a.Trips.Delete(ctx, tripID, userID); err != nil {
		a.storeError(w, err, "trip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEndTrip stops the trip's monitor, scores the trip from its stored
// alerts and awards points and badges.
func (a *API) handleEndTrip(w http.ResponseWriter, r *http.Request) {
	var req models.EndTripRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, tripID := driverID(r), pathID(r)
	trip, err := a.Trips.Get(ctx, tripID, userID)
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}
	if trip.Status != models.TripActive {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}

	// Stopping the monitor waits for its pending alert writes, so the
	// counts below include every alert of the trip.
	a.Registry.End(tripID)

	drowsy, yawns, err := a.Alerts.CountByTrip(ctx, tripID)
	if err != nil {
		a.storeError(w, err, "alerts")
		return
	}

	now := time.Now()
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = int(now.Sub(trip.StartedAt).Seconds())
	}
	score := rewards.SafetyScore(drowsy, yawns)
	points := rewards.TripPoints(score, drowsy)

	ended, err := a.Trips.End(ctx, repository.TripEnd{
		ID:              tripID,
		UserID:          userID,
		EndLocation:     req.EndLocation,
		EndedAt:         now,
		DurationSeconds: duration,
		AlertCount:      drowsy,
		YawnCount:       yawns,
		SafetyScore:     score,
		PointsEarned:    points,
	})
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}

	if _, err := a.Rewards.RecordTripDay(ctx, userID, now); err != nil {
		a.Logger.Error("streak update failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	newBadges, bonus, err := a.awardBadges(ctx, userID)
	if err != nil {
		a.Logger.Error("badge evaluation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	total, err := a.Rewards.AddPoints(ctx, userID, points+bonus)
	if err != nil {
		a.storeError(w, err, "points")
		return
	}

	a.Logger.Info("trip ended",
		zap.Int64("trip_id", tripID),
		zap.Int("alert_count", drowsy),
		zap.Int("yawn_count", yawns),
		zap.Int("safety_score", score),
		zap.Int("points", points+bonus),
	)
	if newBadges == nil {
		newBadges = []models.Badge{}
	}
	writeJSON(w, http.StatusOK, models.EndTripResponse{Trip: *ended, NewBadges: newBadges, TotalPoints: total})
}

func (a *API) awardBadges(ctx context.Context, userID int64) ([]models.Badge, int, error) {
	stats, err := a.driverStats(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	catalogue, err := a.Rewards.Catalogue(ctx)
	if err != nil {
		return nil, 0, err
	}
	owned, err := a.Rewards.OwnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	var earned []models.Badge
	bonus := 0
	for _, b := range rewards.Eligible(stats, catalogue, owned) {
		awarded, err := a.Rewards.AwardBadge(ctx, userID, b.ID)
		if err != nil {
			return earned, bonus, err
		}
		if awarded {
			earned = append(earned, b)
			bonus += b.PointsReward
		}
	}
	return earned, bonus, nil
}

// handleReportAlert takes an alert detected on the client and runs it
// through the trip's emergency window.
func (a *API) handleReportAlert(w http.ResponseWriter, r *http.Request) {
	var req models.ReportAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	alertType, err := detection.ParseAlertType(req.AlertType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_alert_type")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, tripID := driverID(r), pathID(r)
	trip, err := a.Trips.Get(ctx, tripID, userID)
	if err != nil {
		a.storeError(w, err, "trip")
		return
	}
	if trip.Status != models.TripActive {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}

	ev := detection.AlertEvent{Type: alertType, OccurredAt: models.ClientTime(req.Timestamp, time.Now())}
	if _, err := a.Alerts.Insert(ctx, tripID, ev); err != nil {
		a.storeError(w, err, "alert")
		return
	}
	a.Metrics.IncrementAlert(alertType)

	m, err := a.Registry.Ensure(tripID, userID)
	if err != nil {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}
	res, err := m.RecordAlert(ev)
	if errors.Is(err, monitor.ErrStopped) {
		writeError(w, http.StatusConflict, "trip already ended", "trip_ended")
		return
	}
	if err != nil {
		a.storeError(w, err, "alert")
		return
	}

	writeJSON(w, http.StatusOK, models.ReportAlertResponse{
		EmergencyNotificationSent: res.Triggered,
		EmergencyNotified:         res.Notified || trip.EmergencyNotified,
		RecentAlertCount:          res.WindowCount,
	})
}
