package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rewards"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

const tripColumns = `
	id, user_id, start_location, end_location, started_at, ended_at, status,
	duration_seconds, alert_count, yawn_count, safety_score, points_earned,
	emergency_notified`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var endedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.UserID, &t.StartLocation, &t.EndLocation, &t.StartedAt, &endedAt, &t.Status,
		&t.DurationSeconds, &t.AlertCount, &t.YawnCount, &t.SafetyScore, &t.PointsEarned,
		&t.EmergencyNotified,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}
	return &t, nil
}

type TripRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTripRepository(db *sql.DB, logger *zap.Logger) *TripRepository {
	return &TripRepository{db: db, logger: logger}
}

// Create inserts an active trip and returns its id.
func (r *TripRepository) Create(ctx context.Context, userID int64, startLocation, endLocation string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO trips (user_id, start_location, end_location, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		userID, startLocation, endLocation, models.TripActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create trip: %w", err)
	}
	return id, nil
}

// Get returns the trip when it belongs to userID.
func (r *TripRepository) Get(ctx context.Context, id, userID int64) (*models.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1 AND user_id = $2`, id, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip %d: %w", id, err)
	}
	return t, nil
}

// ListByUser returns the newest trips first.
func (r *TripRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Trip, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// TripEnd carries the final tally of a trip.
type TripEnd struct {
	ID              int64
	UserID          int64
	EndLocation     string
	EndedAt         time.Time
	DurationSeconds int
	AlertCount      int
	YawnCount       int
	SafetyScore     int
	PointsEarned    int
}

// End completes an active trip. ErrNotFound is returned when the trip does
// not exist, belongs to someone else or has already ended.
func (r *TripRepository) End(ctx context.Context, e TripEnd) (*models.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `
		UPDATE trips SET
			end_location = COALESCE(NULLIF($3, ''), end_location),
			ended_at = $4,
			status = $5,
			duration_seconds = $6,
			alert_count = $7,
			yawn_count = $8,
			safety_score = $9,
			points_earned = $10
		WHERE id = $1 AND user_id = $2 AND status = $11
		RETURNING `+tripColumns,
		e.ID, e.UserID, e.EndLocation, e.EndedAt, models.TripCompleted,
		e.DurationSeconds, e.AlertCount, e.YawnCount, e.SafetyScore, e.PointsEarned,
		models.TripActive,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("end trip %d: %w", e.ID, err)
	}
	return t, nil
}

func (r *TripRepository) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete trip %d: %w", id, err)
	}
	return requireAffected(res)
}

// MarkEmergencyNotified records that the trip's contacts were notified.
func (r *TripRepository) MarkEmergencyNotified(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE trips SET emergency_notified = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark trip %d notified: %w", id, err)
	}
	return requireAffected(res)
}

// UserStats aggregates the user's completed trips.
func (r *TripRepository) UserStats(ctx context.Context, userID int64) (models.DriverStats, error) {
	var s models.DriverStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE alert_count = 0),
			COUNT(*) FILTER (WHERE safety_score >= $2),
			COALESCE(MAX(duration_seconds) FILTER (WHERE safety_score = 100), 0),
			COALESCE(ROUND(AVG(safety_score)), 0),
			COALESCE(SUM(alert_count), 0),
			COALESCE(SUM(yawn_count), 0)
		FROM trips
		WHERE user_id = $1 AND status = $3`,
		userID, rewards.HighSafetyScore, models.TripCompleted,
	).Scan(&s.TotalTrips, &s.ZeroAlertTrips, &s.HighSafetyTrips, &s.LongestSafeTrip,
		&s.AvgSafetyScore, &s.TotalAlerts, &s.TotalYawns)
	if err != nil {
		return s, fmt.Errorf("user stats: %w", err)
	}
	return s, nil
}

// Summary totals the user's completed trips. The overall safety score is the
// rounded mean trip score, zero without trips.
func (r *TripRepository) Summary(ctx context.Context, userID int64) (models.AnalyticsSummary, error) {
	var s models.AnalyticsSummary
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(duration_seconds), 0),
			COALESCE(SUM(alert_count), 0),
			COALESCE(SUM(yawn_count), 0),
			COALESCE(ROUND(AVG(alert_count), 2)::float8, 0),
			COALESCE(ROUND(AVG(yawn_count), 2)::float8, 0),
			COALESCE(ROUND(AVG(safety_score)), 0)
		FROM trips
		WHERE user_id = $1 AND status = $2`,
		userID, models.TripCompleted,
	).Scan(&s.TotalTrips, &s.TotalDuration, &s.TotalAlerts, &s.TotalYawns,
		&s.AvgAlertsPerTrip, &s.AvgYawnsPerTrip, &s.OverallSafetyScore)
	if err != nil {
		return s, fmt.Errorf("analytics summary: %w", err)
	}
	return s, nil
}

// CompletedSince returns the user's trips that ended at or after since,
// oldest first.
func (r *TripRepository) CompletedSince(ctx context.Context, userID int64, since time.Time) ([]models.Trip, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips
		WHERE user_id = $1 AND status = $2 AND ended_at >= $3
		ORDER BY ended_at`,
		userID, models.TripCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("list completed trips: %w", err)
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
