package handlers

import (
	"context"
	"net/http"
	"time"

	"DriveGuard/go-backend/internal/analytics"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rewards"

	"golang.org/x/sync/errgroup"
)

// driverStats is the trip aggregate plus the longest streak, which badge
// criteria read as well.
func (a *API) driverStats(ctx context.Context, userID int64) (models.DriverStats, error) {
	stats, err := a.Trips.UserStats(ctx, userID)
	if err != nil {
		return stats, err
	}
	streak, err := a.Rewards.Streak(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.LongestStreak = streak.Longest
	return stats, nil
}

func (a *API) handleStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	streak, err := a.Rewards.Streak(ctx, driverID(r))
	if err != nil {
		a.storeError(w, err, "streak")
		return
	}
	writeJSON(w, http.StatusOK, rewards.StreakAsOf(streak, time.Now()))
}

func (a *API) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := driverID(r)
	var (
		resp   models.UserStatsResponse
		streak models.Streak
		badges []models.Badge
	)

	g, ctx := errgroup.WithContext(r.Context())
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	g.Go(func() (err error) {
		resp.DriverStats, err = a.Trips.UserStats(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		resp.Points, err = a.Rewards.Points(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		streak, err = a.Rewards.Streak(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		badges, err = a.Rewards.Badges(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		a.storeError(w, err, "stats")
		return
	}

	streak = rewards.StreakAsOf(streak, time.Now())
	resp.LongestStreak = streak.Longest
	resp.CurrentStreak = streak.Current
	resp.BadgesEarned = len(badges)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := a.Trips.Summary(ctx, driverID(r))
	if err != nil {
		a.storeError(w, err, "analytics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAnalyticsTrends serves ?period=daily|weekly|monthly, daily by default.
func (a *API) handleAnalyticsTrends(w http.ResponseWriter, r *http.Request) {
	period, err := analytics.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trips, err := a.Trips.CompletedSince(ctx, driverID(r), period.Since(time.Now()))
	if err != nil {
		a.storeError(w, err, "analytics")
		return
	}
	writeJSON(w, http.StatusOK, analytics.Trends(period, trips))
}
