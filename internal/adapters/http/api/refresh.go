package api

import (
	"net/http"

	"github.com/okian/rks/pkg/logger"
)

type refreshResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
}

// RefreshHandler queues asynchronous refreshes.
type RefreshHandler struct {
	gw       Gateway
	failures *failureWriter
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(gw Gateway, l logger.Logger) *RefreshHandler {
	return &RefreshHandler{gw: gw, failures: &failureWriter{logger: l}}
}

// HandleEnqueue handles POST /refresh/{identity}. A new job answers 202; a
// request for an identity with a refresh already pending answers 200.
func (h *RefreshHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	jobID, queued, err := h.gw.EnqueueRefresh(r.Context(), identityParam(r))
	if err != nil {
		h.failures.write(w, r, "api.enqueue_refresh", err)
		return
	}
	if !queued {
		writeJSON(w, http.StatusOK, refreshResponse{Status: "pending"})
		return
	}
	writeJSON(w, http.StatusAccepted, refreshResponse{Status: "accepted", JobID: jobID})
}
