package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"
	"DriveGuard/go-backend/internal/repository"
	"DriveGuard/go-backend/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DriverIDHeader carries the authenticated driver, set by the gateway in
// front of this service.
const DriverIDHeader = "X-Driver-ID"

const requestTimeout = 5 * time.Second

type TripStore interface {
	Create(ctx context.Context, userID int64, startLocation, endLocation string) (int64, error)
	Get(ctx context.Context, id, userID int64) (*models.Trip, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Trip, error)
	End(ctx context.Context, e repository.TripEnd) (*models.Trip, error)
	Delete(ctx context.Context, id, userID int64) error
	UserStats(ctx context.Context, userID int64) (models.DriverStats, error)
	Summary(ctx context.Context, userID int64) (models.AnalyticsSummary, error)
	CompletedSince(ctx context.Context, userID int64, since time.Time) ([]models.Trip, error)
}

type AlertStore interface {
	Insert(ctx context.Context, tripID int64, ev detection.AlertEvent) (int64, error)
	CountByTrip(ctx context.Context, tripID int64) (drowsy, yawns int, err error)
	ListByTrip(ctx context.Context, tripID int64) ([]models.AlertRecord, error)
}

type ContactStore interface {
	Create(ctx context.Context, userID int64, req models.CreateContactRequest) (*models.EmergencyContact, error)
	ListByUser(ctx context.Context, userID int64) ([]models.EmergencyContact, error)
	Delete(ctx context.Context, id, userID int64) error
}

type RewardsStore interface {
	AddPoints(ctx context.Context, userID int64, points int) (int, error)
	Points(ctx context.Context, userID int64) (int, error)
	Catalogue(ctx context.Context) ([]models.Badge, error)
	Badges(ctx context.Context, userID int64) ([]models.Badge, error)
	OwnedBadgeIDs(ctx context.Context, userID int64) (map[int64]bool, error)
	AwardBadge(ctx context.Context, userID, badgeID int64) (bool, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	Streak(ctx context.Context, userID int64) (models.Streak, error)
	RecordTripDay(ctx context.Context, userID int64, at time.Time) (models.Streak, error)
}

// FrameResolver turns a client frame into landmarks.
type FrameResolver interface {
	Resolve(ctx context.Context, f models.Frame, received time.Time) (detection.FrameLandmarks, error)
	ModelAvailable(ctx context.Context) bool
}

// Pinger checks a backing service for the health endpoint.
type Pinger func(ctx context.Context) error

type Deps struct {
	Trips    TripStore
	Alerts   AlertStore
	Contacts ContactStore
	Rewards  RewardsStore
	Registry *monitor.Registry
	Resolver FrameResolver
	Metrics  *services.Metrics
	Logger   *zap.Logger

	DatabasePing Pinger
	RedisPing    Pinger

	AllowedOrigins  []string
	MaxMessageBytes int64
	Version         string
}

// API serves the REST and websocket endpoints.
type API struct {
	Deps
	clients *WebSocketClients
	started time.Time
}

func NewAPI(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = services.NewMetrics()
	}
	if d.Resolver == nil {
		d.Resolver = services.NewFrameResolver(nil)
	}
	return &API{
		Deps:    d,
		clients: newWebSocketClients(),
		started: time.Now(),
	}
}

func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.loggingMiddleware)

	r.HandleFunc("/ws", a.handleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/metrics", a.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", a.handleLeaderboard).Methods(http.MethodGet)

	driver := api.NewRoute().Subrouter()
	driver.Use(requireDriver)
	driver.HandleFunc("/trips", a.handleStartTrip).Methods(http.MethodPost)
	driver.HandleFunc("/trips", a.handleListTrips).Methods(http.MethodGet)
	driver.HandleFunc("/trips/{id:[0-9]+}", a.handleGetTrip).Methods(http.MethodGet)
	driver.HandleFunc("/trips/{id:[0-9]+}", a.handleDeleteTrip).Methods(http.MethodDelete)
	driver.HandleFunc("/trips/{id:[0-9]+}/end", a.handleEndTrip).Methods(http.MethodPost)
	driver.HandleFunc("/trips/{id:[0-9]+}/alerts", a.handleReportAlert).Methods(http.MethodPost)
	driver.HandleFunc("/contacts", a.handleListContacts).Methods(http.MethodGet)
	driver.HandleFunc("/contacts", a.handleCreateContact).Methods(http.MethodPost)
	driver.HandleFunc("/contacts/{id:[0-9]+}", a.handleDeleteContact).Methods(http.MethodDelete)
	driver.HandleFunc("/rewards", a.handleRewards).Methods(http.MethodGet)
	driver.HandleFunc("/rewards/streak", a.handleStreak).Methods(http.MethodGet)
	driver.HandleFunc("/user/stats", a.handleUserStats).Methods(http.MethodGet)
	driver.HandleFunc("/analytics/summary", a.handleAnalyticsSummary).Methods(http.MethodGet)
	driver.HandleFunc("/analytics/trends", a.handleAnalyticsTrends).Methods(http.MethodGet)

	return corsMiddleware(a.AllowedOrigins, r)
}

// CloseClients closes every websocket connection.
func (a *API) CloseClients() {
	a.clients.closeAll()
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.Logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+DriverIDHeader)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

type driverKey struct{}

func requireDriver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(DriverIDHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+DriverIDHeader, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), driverKey{}, id)))
	})
}

func driverID(r *http.Request) int64 {
	id, _ := r.Context().Value(driverKey{}).(int64)
	return id
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().Unix(),
	})
}

// storeError maps repository errors onto HTTP responses.
func (a *API) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found", "not_found")
		return
	}
	a.Logger.Error("store failure", zap.String("what", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error", "internal")
}
