package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/request"
	"github.com/benvon/smart-crm/internal/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// OverviewAdminService is the subset of workers.OverviewAdmin the handler needs
type OverviewAdminService interface {
	Enable(ctx context.Context, userID uuid.UUID, req workers.EnableRequest) (*workers.WorkerStatus, error)
	Disable(ctx context.Context, userID uuid.UUID) (*workers.WorkerStatus, error)
	UpdateConfig(ctx context.Context, userID uuid.UUID, update workers.ConfigUpdate) (*workers.WorkerStatus, error)
	RunNow(ctx context.Context, userID uuid.UUID) (*workers.RunNowResult, error)
	Status(ctx context.Context, userID uuid.UUID) (*workers.WorkerStatus, error)
}

// OverviewHandler serves the overview worker admin API
type OverviewHandler struct {
	admin  OverviewAdminService
	logger *zap.Logger
}

// NewOverviewHandler creates a new overview handler
func NewOverviewHandler(admin OverviewAdminService, log *zap.Logger) *OverviewHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverviewHandler{admin: admin, logger: log}
}

// RegisterRoutes registers the admin routes on r. runNowLimit, when non-nil, wraps only the run-now route.
func (h *OverviewHandler) RegisterRoutes(r *mux.Router, runNowLimit func(http.Handler) http.Handler) {
	users := r.PathPrefix("/users/{" + request.UserIDVar + "}").Subrouter()
	users.HandleFunc("/status", h.Status).Methods("GET")
	users.HandleFunc("/enable", h.Enable).Methods("POST")
	users.HandleFunc("/disable", h.Disable).Methods("POST")
	users.HandleFunc("/config", h.UpdateConfig).Methods("PATCH")

	var runNow http.Handler = http.HandlerFunc(h.RunNow)
	if runNowLimit != nil {
		runNow = runNowLimit(runNow)
	}
	users.Handle("/run-now", runNow).Methods("POST")
}

// Status handles GET /users/{user_id}/status
func (h *OverviewHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	status, err := h.admin.Status(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, userID, "status", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Enable handles POST /users/{user_id}/enable
func (h *OverviewHandler) Enable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req workers.EnableRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	status, err := h.admin.Enable(r.Context(), userID, req)
	if err != nil {
		h.respondServiceError(w, userID, "enable", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Disable handles POST /users/{user_id}/disable
func (h *OverviewHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	status, err := h.admin.Disable(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, userID, "disable", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// UpdateConfig handles PATCH /users/{user_id}/config
func (h *OverviewHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var update workers.ConfigUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	status, err := h.admin.UpdateConfig(r.Context(), userID, update)
	if err != nil {
		h.respondServiceError(w, userID, "update_config", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// RunNow handles POST /users/{user_id}/run-now. A collapsed duplicate still answers 202.
func (h *OverviewHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	result, err := h.admin.RunNow(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, userID, "run_now", err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

func (h *OverviewHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := request.UserID(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "bad_request", "user_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OverviewHandler) respondServiceError(w http.ResponseWriter, userID uuid.UUID, op string, err error) {
	status, errType, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("overview_admin_failed",
			zap.String("operation", op),
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			logger.ErrorField(err),
		)
	}
	respondJSONError(w, status, errType, message)
}
