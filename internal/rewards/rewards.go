// Package rewards scores trips and decides which badges a driver earns.
package rewards

import (
	"time"

	"DriveGuard/go-backend/internal/models"
)

const (
	drowsyPenalty = 3
	yawnPenalty   = 1

	zeroAlertBonus = 5

	// HighSafetyScore is the minimum score counted as a high-safety trip.
	HighSafetyScore = 95
)

// Badge criteria stored in badges.criteria_type.
const (
	CriteriaTotalTrips      = "total_trips"
	CriteriaZeroAlertTrips  = "zero_alert_trips"
	CriteriaHighSafetyTrips = "high_safety_trips"
	CriteriaLongSafeTrip    = "long_safe_trip"
	CriteriaStreakDays      = "streak_days"
)

// SafetyScore is 100 minus the alert penalties, clamped to 0..100.
func SafetyScore(alerts, yawns int) int {
	score := 100 - (alerts*drowsyPenalty + yawns*yawnPenalty)
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// TripPoints converts a trip's score into points.
func TripPoints(score, alerts int) int {
	points := score / 10
	if alerts == 0 {
		points += zeroAlertBonus
	}
	return points
}

// Eligible returns the catalogue badges the stats satisfy that the driver
// does not own yet.
func Eligible(stats models.DriverStats, catalogue []models.Badge, owned map[int64]bool) []models.Badge {
	var earned []models.Badge
	for _, b := range catalogue {
		if owned[b.ID] {
			continue
		}
		if meets(stats, b) {
			earned = append(earned, b)
		}
	}
	return earned
}

func meets(s models.DriverStats, b models.Badge) bool {
	switch b.CriteriaType {
	case CriteriaTotalTrips:
		return s.TotalTrips >= b.CriteriaValue
	case CriteriaZeroAlertTrips:
		return s.ZeroAlertTrips >= b.CriteriaValue
	case CriteriaHighSafetyTrips:
		return s.HighSafetyTrips >= b.CriteriaValue
	case CriteriaLongSafeTrip:
		return s.LongestSafeTrip >= b.CriteriaValue
	case CriteriaStreakDays:
		return s.LongestStreak >= b.CriteriaValue
	}
	return false
}

// Day is the UTC calendar day of t.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak counts a trip completed at the given time into the streak.
// A second trip on the same day leaves it unchanged, a trip on the following
// day extends it and anything later starts a new one.
func NextStreak(s models.Streak, at time.Time) models.Streak {
	day := Day(at)
	if s.LastTripDate == nil {
		s.Current = 1
	} else {
		last := Day(*s.LastTripDate)
		switch {
		case !day.After(last):
			return s
		case day.Equal(last.AddDate(0, 0, 1)):
			s.Current++
		default:
			s.Current = 1
		}
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastTripDate = &day
	return s
}

// StreakAsOf drops the current streak once a whole day passed without a trip.
func StreakAsOf(s models.Streak, now time.Time) models.Streak {
	if s.LastTripDate == nil || Day(now).After(Day(*s.LastTripDate).AddDate(0, 0, 1)) {
		s.Current = 0
	}
	return s
}
