// Package analytics turns a driver's completed trips into per-period trend
// series.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rewards"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// How many buckets each period looks back, the current one included.
const (
	dailyBuckets   = 14
	weeklyBuckets  = 8
	monthlyBuckets = 6
)

// ParsePeriod defaults to Daily when p is empty.
func ParsePeriod(p string) (Period, error) {
	switch Period(p) {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly:
		return Period(p), nil
	}
	return "", fmt.Errorf("unknown period %q", p)
}

// Since is the start of the oldest bucket shown for the period.
func (p Period) Since(now time.Time) time.Time {
	today := rewards.Day(now)
	switch p {
	case Weekly:
		// ISO weeks start on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset-7*(weeklyBuckets-1))
	case Monthly:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, -(monthlyBuckets - 1), 0)
	}
	return today.AddDate(0, 0, -(dailyBuckets - 1))
}

// Label names the bucket t falls into: 2024-03-04, 2024-W10 or 2024-03.
func (p Period) Label(t time.Time) string {
	t = t.UTC()
	switch p {
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

type bucket struct {
	label      string
	trips      int
	alerts     int
	yawns      int
	scoreTotal int
}

// Trends buckets completed trips by the period of their end time. Only
// periods with at least one trip get a bucket. The safety score of a bucket is
// the rounded mean of its trips' scores.
func Trends(p Period, trips []models.Trip) models.Trends {
	byLabel := make(map[string]*bucket)
	for _, t := range trips {
		if t.EndedAt == nil {
			continue
		}
		label := p.Label(*t.EndedAt)
		b, ok := byLabel[label]
		if !ok {
			b = &bucket{label: label}
			byLabel[label] = b
		}
		b.trips++
		b.alerts += t.AlertCount
		b.yawns += t.YawnCount
		b.scoreTotal += t.SafetyScore
	}

	buckets := make([]*bucket, 0, len(byLabel))
	for _, b := range byLabel {
		buckets = append(buckets, b)
	}
	// Labels sort chronologically within one period kind.
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].label < buckets[j].label })

	out := models.Trends{
		Period:       string(p),
		Labels:       []string{},
		Trips:        []int{},
		Alerts:       []int{},
		Yawns:        []int{},
		SafetyScores: []int{},
	}
	for _, b := range buckets {
		out.Labels = append(out.Labels, b.label)
		out.Trips = append(out.Trips, b.trips)
		out.Alerts = append(out.Alerts, b.alerts)
		out.Yawns = append(out.Yawns, b.yawns)
		out.SafetyScores = append(out.SafetyScores, (b.scoreTotal+b.trips/2)/b.trips)
	}
	return out
}
