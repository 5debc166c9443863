package models

import "time"

const (
	TripActive    = "active"
	TripCompleted = "completed"
)

type Trip struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	StartLocation     string     `json:"start_location"`
	EndLocation       string     `json:"end_location"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	Status            string     `json:"status"`
	DurationSeconds   int        `json:"duration_seconds"`
	AlertCount        int        `json:"alert_count"`
	YawnCount         int        `json:"yawn_count"`
	SafetyScore       int        `json:"safety_score"`
	PointsEarned      int        `json:"points_earned"`
	EmergencyNotified bool       `json:"emergency_notified"`
}

// AlertRecord is a stored alert event.
type AlertRecord struct {
	ID         int64     `json:"id"`
	TripID     int64     `json:"trip_id"`
	AlertType  string    `json:"alert_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

type EmergencyContact struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone,omitempty"`
	Email            string    `json:"email,omitempty"`
	NotificationType string    `json:"notification_type"`
	CreatedAt        time.Time `json:"created_at"`
}

type Badge struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Icon          string     `json:"icon"`
	CriteriaType  string     `json:"criteria_type"`
	CriteriaValue int        `json:"criteria_value"`
	PointsReward  int        `json:"points_reward"`
	EarnedAt      *time.Time `json:"earned_at,omitempty"`
}

// DriverStats aggregates a driver's completed trips.
type DriverStats struct {
	TotalTrips      int `json:"total_trips"`
	ZeroAlertTrips  int `json:"zero_alert_trips"`
	HighSafetyTrips int `json:"high_safety_trips"`
	LongestSafeTrip int `json:"longest_safe_trip_seconds"`
	AvgSafetyScore  int `json:"avg_safety_score"`
	TotalAlerts     int `json:"total_alerts"`
	TotalYawns      int `json:"total_yawns"`
	LongestStreak   int `json:"longest_streak"`
}

// Streak counts consecutive UTC days with at least one completed trip.
type Streak struct {
	Current      int        `json:"current_streak"`
	Longest      int        `json:"longest_streak"`
	LastTripDate *time.Time `json:"last_trip_date,omitempty"`
}

type UserStatsResponse struct {
	DriverStats
	Points        int `json:"points"`
	BadgesEarned  int `json:"badges_earned"`
	CurrentStreak int `json:"current_streak"`
}

type AnalyticsSummary struct {
	TotalTrips         int     `json:"total_trips"`
	TotalDuration      int     `json:"total_duration"`
	TotalAlerts        int     `json:"total_alerts"`
	TotalYawns         int     `json:"total_yawns"`
	AvgAlertsPerTrip   float64 `json:"avg_alerts_per_trip"`
	AvgYawnsPerTrip    float64 `json:"avg_yawns_per_trip"`
	OverallSafetyScore int     `json:"overall_safety_score"`
}

// Trends holds one entry per period bucket in each series, oldest first.
type Trends struct {
	Period       string   `json:"period"`
	Labels       []string `json:"labels"`
	Trips        []int    `json:"trips"`
	Alerts       []int    `json:"alerts"`
	Yawns        []int    `json:"yawns"`
	SafetyScores []int    `json:"safety_scores"`
}

type LeaderboardEntry struct {
	Rank   int   `json:"rank"`
	UserID int64 `json:"user_id"`
	Points int   `json:"points"`
}

type StartTripRequest struct {
	StartLocation string `json:"start_location"`
	EndLocation   string `json:"end_location"`
}

type StartTripResponse struct {
	TripID int64  `json:"trip_id"`
	Status string `json:"status"`
}

type EndTripRequest struct {
	EndLocation     string `json:"end_location,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

type EndTripResponse struct {
	Trip        Trip    `json:"trip"`
	NewBadges   []Badge `json:"new_badges"`
	TotalPoints int     `json:"total_points"`
}

type ReportAlertRequest struct {
	AlertType string    `json:"alert_type"`
	Timestamp time.Time `json:"timestamp"`
}

type ReportAlertResponse struct {
	EmergencyNotificationSent bool `json:"emergency_notification_sent"`
	EmergencyNotified         bool `json:"emergency_notified"`
	RecentAlertCount          int  `json:"recent_alert_count"`
}

type CreateContactRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
}

type RewardsResponse struct {
	Points int         `json:"points"`
	Stats  DriverStats `json:"stats"`
	Badges []Badge     `json:"badges"`
}
