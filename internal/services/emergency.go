package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	emergencyKeyPrefix = "driveguard:emergency:trip:"
	emergencyClaimTTL  = 24 * time.Hour
)

type ContactLister interface {
	ListByUser(ctx context.Context, userID int64) ([]models.EmergencyContact, error)
}

type TripMarker interface {
	MarkEmergencyNotified(ctx context.Context, tripID int64) error
}

// Notification is the message published on the notification stream. Email
// and SMS delivery happen in the worker consuming the stream.
type Notification struct {
	ID          string                    `json:"id"`
	TripID      int64                     `json:"trip_id"`
	UserID      int64                     `json:"user_id"`
	AlertCount  int                       `json:"alert_count"`
	TriggeredAt time.Time                 `json:"triggered_at"`
	Message     string                    `json:"message"`
	Contacts    []models.EmergencyContact `json:"contacts"`
}

// EmergencyNotifier sends a trip's emergency notification at most once,
// across every instance sharing the redis.
type EmergencyNotifier struct {
	rdb      *redis.Client
	stream   string
	contacts ContactLister
	trips    TripMarker
	metrics  *Metrics
	logger   *zap.Logger
}

func NewEmergencyNotifier(rdb *redis.Client, stream string, contacts ContactLister, trips TripMarker, metrics *Metrics, logger *zap.Logger) *EmergencyNotifier {
	return &EmergencyNotifier{
		rdb:      rdb,
		stream:   stream,
		contacts: contacts,
		trips:    trips,
		metrics:  metrics,
		logger:   logger.Named("emergency"),
	}
}

func emergencyKey(tripID int64) string {
	return fmt.Sprintf("%s%d", emergencyKeyPrefix, tripID)
}

func (n *EmergencyNotifier) NotifyEmergency(ctx context.Context, e monitor.Emergency) error {
	log := n.logger.With(zap.Int64("trip_id", e.TripID), zap.Int64("user_id", e.UserID))

	claimed, err := n.rdb.SetNX(ctx, emergencyKey(e.TripID), e.TriggeredAt.Unix(), emergencyClaimTTL).Result()
	switch {
	case err != nil:
		// Redis down: better a duplicate than a missed notification.
		log.Warn("emergency claim failed, notifying anyway", zap.Error(err))
	case !claimed:
		log.Debug("emergency already notified for trip")
		return nil
	}

	contacts, err := n.contacts.ListByUser(ctx, e.UserID)
	if err != nil {
		n.release(ctx, e.TripID)
		return fmt.Errorf("load emergency contacts: %w", err)
	}

	if len(contacts) == 0 {
		log.Warn("no emergency contacts configured")
	} else {
		msg := Notification{
			ID:          uuid.NewString(),
			TripID:      e.TripID,
			UserID:      e.UserID,
			AlertCount:  e.AlertCount,
			TriggeredAt: e.TriggeredAt,
			Message: fmt.Sprintf("Driver %d triggered %d alerts within %d minutes on trip %d.",
				e.UserID, e.AlertCount, int(detection.EmergencyWindow.Minutes()), e.TripID),
			Contacts: contacts,
		}
		if err := n.publish(ctx, msg); err != nil {
			n.release(ctx, e.TripID)
			return err
		}
		log.Info("emergency notification published",
			zap.String("notification_id", msg.ID),
			zap.Int("contacts", len(contacts)),
			zap.Int("alert_count", e.AlertCount))
	}

	if n.metrics != nil {
		n.metrics.IncrementNotifications()
	}
	if err := n.trips.MarkEmergencyNotified(ctx, e.TripID); err != nil {
		log.Error("failed to mark trip notified", zap.Error(err))
	}
	return nil
}

func (n *EmergencyNotifier) publish(ctx context.Context, msg Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"id":        msg.ID,
			"trip_id":   msg.TripID,
			"data":      string(payload),
			"timestamp": msg.TriggeredAt.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish notification to %s: %w", n.stream, err)
	}
	return nil
}

// release drops the claim so another attempt can notify.
func (n *EmergencyNotifier) release(ctx context.Context, tripID int64) {
	if err := n.rdb.Del(ctx, emergencyKey(tripID)).Err(); err != nil {
		n.logger.Warn("failed to release emergency claim", zap.Int64("trip_id", tripID), zap.Error(err))
	}
}
