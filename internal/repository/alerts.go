package repository

import (
	"context"
	"database/sql"
	"fmt"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"

	"go.uber.org/zap"
)

// AlertRepository stores alert events. It is the monitor's event sink.
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

func (r *AlertRepository) Insert(ctx context.Context, tripID int64, ev detection.AlertEvent) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO alert_events (trip_id, alert_type, occurred_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		tripID, string(ev.Type), ev.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert %s alert for trip %d: %w", ev.Type, tripID, err)
	}
	return id, nil
}

func (r *AlertRepository) SaveAlert(ctx context.Context, tripID int64, ev detection.AlertEvent) error {
	_, err := r.Insert(ctx, tripID, ev)
	return err
}

// CountByTrip returns the stored drowsy and yawn counts of a trip.
func (r *AlertRepository) CountByTrip(ctx context.Context, tripID int64) (drowsy, yawns int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE alert_type = $2),
			COUNT(*) FILTER (WHERE alert_type = $3)
		FROM alert_events
		WHERE trip_id = $1`,
		tripID, string(detection.AlertDrowsy), string(detection.AlertYawn),
	).Scan(&drowsy, &yawns)
	if err != nil {
		return 0, 0, fmt.Errorf("count alerts for trip %d: %w", tripID, err)
	}
	return drowsy, yawns, nil
}

func (r *AlertRepository) ListByTrip(ctx context.Context, tripID int64) ([]models.AlertRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trip_id, alert_type, occurred_at
		FROM alert_events
		WHERE trip_id = $1
		ORDER BY occurred_at`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list alerts for trip %d: %w", tripID, err)
	}
	defer rows.Close()

	records := []models.AlertRecord{}
	for rows.Next() {
		var a models.AlertRecord
		if err := rows.Scan(&a.ID, &a.TripID, &a.AlertType, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
