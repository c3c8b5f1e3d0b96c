package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/monitor"
)

// Coordinator is the monitor surface the API exposes.
type Coordinator interface {
	Snapshot() monitor.Snapshot
	RefreshNow(ctx context.Context) error
	SetAutoRefresh(enabled bool)
	CheckReadiness(ctx context.Context) error
}

// HistoryReader serves the chart data of past readings.
type HistoryReader interface {
	HistoricalData(hours int) []domain.Reading
}

// Server exposes the gauge API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	coord      Coordinator
	history    HistoryReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, coord Coordinator, history HistoryReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		coord:   coord,
		history: history,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/current", s.handleCurrent)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("PUT /api/v1/autorefresh", s.handleAutoRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.coord.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

// historyResponse pairs the time series with the alert bands so a client can
// draw threshold overlays without hardcoding them.
type historyResponse struct {
	Hours      int              `json:"hours"`
	Series     []domain.Reading `json:"series"`
	Thresholds []domain.Tier    `json:"thresholds"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "hours must be an integer",
			})
			return
		}
		hours = n
	}
	// The store only retains 24 hours; clamp instead of erroring.
	if hours < 1 {
		hours = 1
	}
	if hours > 24 {
		hours = 24
	}

	series := s.history.HistoricalData(hours)
	if series == nil {
		series = []domain.Reading{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Hours:      hours,
		Series:     series,
		Thresholds: domain.Tiers(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.coord.RefreshNow(r.Context())
	switch {
	case errors.Is(err, monitor.ErrRefreshInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case err != nil:
		// The snapshot still carries any cached reading the monitor degraded to.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    err.Error(),
			"snapshot": s.coord.Snapshot(),
		})
	default:
		writeJSON(w, http.StatusOK, s.coord.Snapshot())
	}
}

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": `body must be {"enabled": true|false}`,
		})
		return
	}

	s.coord.SetAutoRefresh(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
