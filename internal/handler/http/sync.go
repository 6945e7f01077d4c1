package http

import (
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/device-sync-go/internal/handler/http/response"
	syncService "github.com/cmlabs-hris/device-sync-go/internal/service/sync"
	"github.com/go-chi/chi/v5"
)

type SyncHandler interface {
	SyncDevice(w http.ResponseWriter, r *http.Request)
	SyncAll(w http.ResponseWriter, r *http.Request)
}

type syncHandlerImpl struct {
	orchestrator *syncService.Orchestrator
}

func NewSyncHandler(orchestrator *syncService.Orchestrator) SyncHandler {
	return &syncHandlerImpl{orchestrator: orchestrator}
}

// SyncDevice implements SyncHandler. The run executes inline; the
// response carries the full summary including a failed outcome, so a
// device-side failure is still a 200 with sync_status set.
func (h *syncHandlerImpl) SyncDevice(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.SyncDevice(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		slog.Error("Failed to start device sync", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Sync completed", summary)
}

// SyncAll implements SyncHandler.
func (h *syncHandlerImpl) SyncAll(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.orchestrator.SyncAll(r.Context())
	if err != nil {
		slog.Error("Failed to run fleet sync", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Fleet sync completed", summaries)
}
