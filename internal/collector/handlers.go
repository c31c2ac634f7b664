package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/doorcount/internal/server"
	"github.com/MeKo-Tech/doorcount/internal/store"
)

// RecordJSON is the wire form of a stored record.
type RecordJSON struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	CurrentCount int       `json:"current_count"`
	Direction    *string   `json:"direction,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateData echoes the stored fields of an update.
type UpdateData struct {
	Timestamp    time.Time `json:"timestamp"`
	CurrentCount int       `json:"current_count"`
	Direction    *string   `json:"direction,omitempty"`
}

// UpdateResponse is returned for a stored update.
type UpdateResponse struct {
	Success bool       `json:"success"`
	ID      string     `json:"id"`
	Data    UpdateData `json:"data"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type dataResponse struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

func toJSON(r store.Record) RecordJSON {
	return RecordJSON{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		CurrentCount: r.CurrentCount,
		Direction:    directionPtr(r.Direction),
		CreatedAt:    r.CreatedAt,
	}
}

func directionPtr(d string) *string {
	if d == "" {
		return nil
	}
	return &d
}

// SetupRoutes configures the HTTP routes.
func (s *Service) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", server.CORS(s.corsOrigin, s.healthHandler))
	mux.HandleFunc("/api/occupancy/update", server.CORS(s.corsOrigin, s.rateLimit(s.updateHandler)))
	mux.HandleFunc("/api/occupancy", server.CORS(s.corsOrigin, s.listHandler))
	mux.HandleFunc("/api/occupancy/latest", server.CORS(s.corsOrigin, s.latestHandler))
	mux.HandleFunc("/api/occupancy/today", server.CORS(s.corsOrigin, s.todayHandler))
	mux.HandleFunc("/api/occupancy/today-trend", server.CORS(s.corsOrigin, s.trendHandler))
	mux.HandleFunc("/api/occupancy/weekly", server.CORS(s.corsOrigin, s.weeklyHandler))
	mux.HandleFunc("/api/occupancy/recent", server.CORS(s.corsOrigin, s.recentHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// rateLimit rejects clients that exceed the configured update rate.
func (s *Service) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		err := s.limiter.Allow(clientIP(r))
		var rl *RateLimitError
		if errors.As(err, &rl) {
			rateLimitHits.WithLabelValues(rl.Window).Inc()
			updatesTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", rl.RetryAfter.Seconds()))
			writeError(w, http.StatusTooManyRequests, rl.Error())
			return
		}
		next(w, r)
	}
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) updateHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		updatesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	saved, err := s.Store(r.Context(), body)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		updatesTotal.WithLabelValues("invalid").Inc()
		slog.Debug("Rejected occupancy update", "error", verr.Message, "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	case err != nil:
		updatesTotal.WithLabelValues("error").Inc()
		slog.Error("Error saving occupancy data", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	updatesTotal.WithLabelValues("stored").Inc()
	slog.Info("Stored occupancy update",
		"id", saved.ID, "current_count", saved.CurrentCount, "direction", saved.Direction)
	writeJSON(w, http.StatusCreated, UpdateResponse{
		Success: true,
		ID:      saved.ID,
		Data: UpdateData{
			Timestamp:    saved.Timestamp,
			CurrentCount: saved.CurrentCount,
			Direction:    directionPtr(saved.Direction),
		},
	})
}

func (s *Service) listHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	recs, err := s.repo.List(r.Context(), DefaultListLimit)
	if err != nil {
		internalError(w, "listing records", err)
		return
	}
	data := make([]RecordJSON, 0, len(recs))
	for _, rec := range recs {
		data = append(data, toJSON(rec))
	}
	n := len(data)
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Count: &n, Data: data})
}

func (s *Service) latestHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	rec, err := s.repo.Latest(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: nil, Message: "No records found"})
	case err != nil:
		internalError(w, "getting latest record", err)
	default:
		writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: toJSON(rec)})
	}
}

func (s *Service) todayHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sum, err := s.Today(r.Context())
	if err != nil {
		internalError(w, "getting today stats", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: sum})
}

func (s *Service) trendHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	trend, err := s.TodayTrend(r.Context())
	if err != nil {
		internalError(w, "getting today trend", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: trend})
}

func (s *Service) weeklyHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	var start time.Time
	if q := r.URL.Query().Get("week"); q != "" {
		t, err := time.ParseInLocation(DateLayout, q, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "week must be a date in YYYY-MM-DD format")
			return
		}
		start = t
	}
	week, err := s.Week(r.Context(), start)
	if err != nil {
		internalError(w, "getting weekly data", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: week})
}

func (s *Service) recentHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	activities, err := s.Recent(r.Context(), limit)
	if err != nil {
		internalError(w, "getting recent activity", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: activities})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func internalError(w http.ResponseWriter, what string, err error) {
	slog.Error("Collector query failed", "query", what, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
