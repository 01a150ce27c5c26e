package api

import (
	"net/http"

	"github.com/okian/rks/pkg/logger"
)

// HistoryHandler serves recorded rating history.
type HistoryHandler struct {
	gw       Gateway
	failures *failureWriter
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(gw Gateway, l logger.Logger) *HistoryHandler {
	return &HistoryHandler{gw: gw, failures: &failureWriter{logger: l}}
}

// HandleGetHistory handles GET /history/{identity}. It never fetches.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := h.gw.History(r.Context(), identityParam(r))
	if err != nil {
		h.failures.write(w, r, "api.get_history", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandlePruneWindow handles DELETE /history/{identity}/window.
func (h *HistoryHandler) HandlePruneWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.PruneHistory(r.Context(), identityParam(r)); err != nil {
		h.failures.write(w, r, "api.prune_window", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
