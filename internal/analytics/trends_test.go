package analytics

import (
	"testing"
	"time"

	"DriveGuard/go-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trip(ended time.Time, alerts, yawns, score int) models.Trip {
	return models.Trip{EndedAt: &ended, AlertCount: alerts, YawnCount: yawns, SafetyScore: score, Status: models.TripCompleted}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, Daily, p)

	p, err = ParsePeriod("monthly")
	require.NoError(t, err)
	assert.Equal(t, Monthly, p)

	_, err = ParsePeriod("hourly")
	assert.Error(t, err)
}

func TestPeriod_Since(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 2, 22, 0, 0, 0, 0, time.UTC), Daily.Since(now))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Weekly.Since(now))
	assert.Equal(t, time.Monday, Weekly.Since(now).Weekday())
	assert.Equal(t, time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), Monthly.Since(now))
}

func TestPeriod_Label(t *testing.T) {
	at := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-04", Daily.Label(at))
	assert.Equal(t, "2024-W10", Weekly.Label(at))
	assert.Equal(t, "2024-03", Monthly.Label(at))
	assert.Equal(t, "2025-W01", Weekly.Label(time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)))
}

func TestTrends(t *testing.T) {
	mar4 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	trips := []models.Trip{
		trip(mar4.AddDate(0, 0, 1), 0, 1, 99),
		trip(mar4, 2, 0, 94),
		trip(mar4.Add(3*time.Hour), 0, 0, 100),
		{Status: models.TripActive},
	}

	daily := Trends(Daily, trips)
	assert.Equal(t, "daily", daily.Period)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05"}, daily.Labels)
	assert.Equal(t, []int{2, 1}, daily.Trips)
	assert.Equal(t, []int{2, 0}, daily.Alerts)
	assert.Equal(t, []int{0, 1}, daily.Yawns)
	assert.Equal(t, []int{97, 99}, daily.SafetyScores)

	weekly := Trends(Weekly, trips)
	assert.Equal(t, []string{"2024-W10"}, weekly.Labels)
	assert.Equal(t, []int{3}, weekly.Trips)
	assert.Equal(t, []int{98}, weekly.SafetyScores)
}

func TestTrends_Empty(t *testing.T) {
	got := Trends(Monthly, nil)
	assert.NotNil(t, got.Labels)
	assert.Empty(t, got.Labels)
	assert.Empty(t, got.SafetyScores)
}
