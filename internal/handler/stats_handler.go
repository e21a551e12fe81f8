package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stats-service/internal/client"
	"stats-service/internal/poll"
	"stats-service/internal/repository/scylla"
	"stats-service/internal/service"
)

// StatsHandler handles HTTP requests for activity statistics
type StatsHandler struct {
	statsService *service.StatsService
	logger       *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsService *service.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Partial bool        `json:"partial,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// GetLeaderboard handles GET /leaderboard?subjects=a,b,c&window_days=30
func (h *StatsHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjects := splitParam(r.URL.Query().Get("subjects"))
	windowDays := intParam(r.URL.Query().Get("window_days"))

	scores, err := h.statsService.BuildLeaderboard(ctx, subjects, windowDays)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, successResponse(scores, "leaderboard built"))
}

// GetOrgRollup handles GET /orgs/{org}/rollup
func (h *StatsHandler) GetOrgRollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")

	rollup, err := h.statsService.BuildOrgRollup(ctx, org)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	response := successResponse(rollup, "org rollup built")
	if rollup.FailedChildren > 0 {
		response.Partial = true
		response.Message = "org rollup built with partial data"
	}
	h.respond(w, http.StatusOK, response)
}

// GetRepoContributors handles GET /repos/{owner}/{repo}/contributors
func (h *StatsHandler) GetRepoContributors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	contributors, err := h.statsService.BuildRepoContributors(ctx, owner, repo)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, successResponse(contributors, "contributors ranked"))
}

// GetLeaderboardSnapshot handles GET /leaderboard/snapshot?window_days=30
func (h *StatsHandler) GetLeaderboardSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	windowDays := intParam(r.URL.Query().Get("window_days"))

	snapshot, err := h.statsService.LatestSnapshot(ctx, windowDays)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, successResponse(snapshot, "latest leaderboard snapshot"))
}

// GetUserActivity handles GET /users/{login}/activity?window_days=30
func (h *StatsHandler) GetUserActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	login := chi.URLParam(r, "login")
	windowDays := intParam(r.URL.Query().Get("window_days"))

	subject, err := h.statsService.BuildUserActivity(ctx, login, windowDays)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, successResponse(subject, "user activity scored"))
}

// respondError maps the service error taxonomy onto HTTP statuses. Computing
// is a distinct retryable state, never an opaque 500.
func (h *StatsHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, poll.ErrStillComputing):
		h.respond(w, http.StatusAccepted, Response{
			Success: false,
			Message: "statistics are still being computed upstream, retry shortly",
			Data:    map[string]string{"status": "computing"},
		})
	case errors.Is(err, client.ErrNotFound):
		h.respond(w, http.StatusNotFound, errorResponse(err, "entity not found upstream"))
	case errors.Is(err, scylla.ErrSnapshotNotFound):
		h.respond(w, http.StatusNotFound, errorResponse(err, "no snapshot available"))
	case errors.Is(err, service.ErrInvalidInput):
		h.respond(w, http.StatusBadRequest, errorResponse(err, "invalid request"))
	default:
		h.logger.Error("stats request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.respond(w, http.StatusBadGateway, errorResponse(err, "upstream aggregation failed"))
	}
}

func (h *StatsHandler) respond(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func intParam(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
