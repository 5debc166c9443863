package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/repository"

	"golang.org/x/sync/errgroup"
)

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	contacts, err := a.Contacts.ListByUser(ctx, driverID(r))
	if err != nil {
		a.storeError(w, err, "contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (a *API) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := a.Contacts.Create(ctx, driverID(r), req)
	if errors.Is(err, repository.ErrInvalidContact) {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_contact")
		return
	}
	if err != nil {
		a.storeError(w, err, "contact")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := a.Contacts.Delete(ctx, pathID(r), driverID(r)); err != nil {
		a.storeError(w, err, "contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRewards(w http.ResponseWriter, r *http.Request) {
	userID := driverID(r)
	var resp models.RewardsResponse

	g, ctx := errgroup.WithContext(r.Context())
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	g.Go(func() (err error) {
		resp.Points, err = a.Rewards.Points(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		resp.Stats, err = a.driverStats(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		resp.Badges, err = a.Rewards.Badges(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		a.storeError(w, err, "rewards")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	board, err := a.Rewards.Leaderboard(ctx, queryInt(r, "limit", 10, 100))
	if err != nil {
		a.storeError(w, err, "leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatus{
		Status:        "healthy",
		ActiveTrips:   a.Registry.Len(),
		ActiveClients: a.clients.len(),
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Version:       a.Version,
	}

	var g errgroup.Group
	g.Go(func() error {
		status.Database = a.DatabasePing != nil && a.DatabasePing(ctx) == nil
		return nil
	})
	g.Go(func() error {
		status.Redis = a.RedisPing != nil && a.RedisPing(ctx) == nil
		return nil
	})
	g.Go(func() error {
		status.LandmarkService = a.Resolver != nil && a.Resolver.ModelAvailable(ctx)
		return nil
	})
	g.Wait()

	code := http.StatusOK
	if !status.Database {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := a.Metrics.Snapshot()
	snap["active_trips"] = a.Registry.Len()
	snap["active_clients"] = a.clients.len()
	snap["uptime_sec"] = int64(time.Since(a.started).Seconds())
	snap["timestamp"] = time.Now().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, snap)
}
