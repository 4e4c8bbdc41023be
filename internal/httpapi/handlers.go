package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantpulse/stratrun/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ErrorResponse is the standard error envelope for all API endpoints
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports process and storage liveness
type HealthResponse struct {
	Status        string                   `json:"status"`
	Time          time.Time                `json:"time"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Storage       *persistence.HealthCheck `json:"storage,omitempty"`
}

// StatsResponse aggregates archive-wide run counts
type StatsResponse struct {
	RunsByStatus map[string]int64 `json:"runs_by_status"`
	Time         time.Time        `json:"time"`
}

// Handlers serves the monitor API. The repository is optional; endpoints
// that need it answer 503 when no archive is configured.
type Handlers struct {
	repo      *persistence.Repository
	health    persistence.RepositoryHealth
	startedAt time.Time
}

// NewHandlers creates the handler set
func NewHandlers(repo *persistence.Repository, health persistence.RepositoryHealth) *Handlers {
	return &Handlers{
		repo:      repo,
		health:    health,
		startedAt: time.Now(),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value("request_id").(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Time:          time.Now().UTC(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}

	if h.health != nil {
		check := h.health.Health(r.Context())
		resp.Storage = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

// Runs handles GET /api/v1/runs
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	limit := parseLimit(r)
	var (
		runs []persistence.RunRecord
		err  error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		runs, err = h.repo.Runs.ListByStatus(r.Context(), status, limit)
	} else {
		runs, err = h.repo.Runs.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// LatestRun handles GET /api/v1/runs/latest
func (h *Handlers) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	runs, err := h.repo.Runs.ListRecent(r.Context(), 1)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if len(runs) == 0 {
		h.writeError(w, r, http.StatusNotFound, "no_runs", "The archive has no runs yet")
		return
	}
	h.writeJSON(w, http.StatusOK, runs[0])
}

// BestRuns handles GET /api/v1/runs/best
func (h *Handlers) BestRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	runs, err := h.repo.Runs.BestByScore(r.Context(), parseLimit(r))
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	runID := mux.Vars(r)["id"]
	run, err := h.repo.Runs.Get(r.Context(), runID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if run == nil {
		h.writeError(w, r, http.StatusNotFound, "run_not_found",
			"No run with id "+runID)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// RunTrades handles GET /api/v1/runs/{id}/trades
func (h *Handlers) RunTrades(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	runID := mux.Vars(r)["id"]
	trades, err := h.repo.Trades.ListByRun(r.Context(), runID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if trades == nil {
		trades = []persistence.TradeRecord{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "storage_disabled",
			"No run archive is configured")
		return
	}

	counts, err := h.repo.Runs.CountByStatus(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, StatsResponse{
		RunsByStatus: counts,
		Time:         time.Now().UTC(),
	})
}

// NotFound handles unmatched routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
