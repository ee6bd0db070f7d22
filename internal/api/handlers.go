package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"estate_sync/internal/domain"
	"estate_sync/internal/service"
)

// Runner is the set of sync operations exposed over HTTP.
type Runner interface {
	SyncAgents(ctx context.Context) (*domain.AgentSyncReport, error)
	SyncListings(ctx context.Context) (*domain.ListingSyncReport, error)
	RunAll(ctx context.Context) (*domain.SyncReport, error)
	ResetAndSync(ctx context.Context) (*domain.SyncReport, error)
}

type SyncHandlers struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

func NewSyncHandlers(runner Runner, timeout time.Duration, logger *slog.Logger) *SyncHandlers {
	return &SyncHandlers{
		runner:  runner,
		timeout: timeout,
		logger:  logger.With("component", "api"),
	}
}

type failureResponse struct {
	Error  string `json:"error"`
	Report any    `json:"report,omitempty"`
}

// HandleSyncAgents serves POST /api/sync/agents.
func (h *SyncHandlers) HandleSyncAgents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.runContext(r)
	defer cancel()

	report, err := h.runner.SyncAgents(ctx)
	h.respond(w, "agents", report, err)
}

// HandleSyncListings serves POST /api/sync/listings.
func (h *SyncHandlers) HandleSyncListings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.runContext(r)
	defer cancel()

	report, err := h.runner.SyncListings(ctx)
	h.respond(w, "listings", report, err)
}

// HandleSyncAll serves POST /api/sync/all.
func (h *SyncHandlers) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.runContext(r)
	defer cancel()

	report, err := h.runner.RunAll(ctx)
	h.respond(w, "all", report, err)
}

// HandleReset serves POST /api/sync/reset. It deletes every cached listing
// before syncing.
func (h *SyncHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.runContext(r)
	defer cancel()

	h.logger.Warn("reset requested", "remote_addr", r.RemoteAddr)

	report, err := h.runner.ResetAndSync(ctx)
	h.respond(w, "reset", report, err)
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runContext outlives the client connection and is bounded by the sync
// timeout.
func (h *SyncHandlers) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
}

func (h *SyncHandlers) respond(w http.ResponseWriter, op string, report any, err error) {
	switch {
	case err == nil:
		RespondWithJSON(w, http.StatusOK, report)
	case errors.Is(err, service.ErrSyncInProgress):
		WriteJSONError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("triggered sync failed", "operation", op, "error", err)
		RespondWithJSON(w, http.StatusBadGateway, failureResponse{Error: err.Error(), Report: report})
	}
}
