package api

import (
	"net/http"

	"github.com/okian/rks/internal/domain/types"
	"github.com/okian/rks/pkg/logger"
)

// RatingHandler serves the overall rating of an identity.
type RatingHandler struct {
	gw       Gateway
	failures *failureWriter
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(gw Gateway, l logger.Logger) *RatingHandler {
	return &RatingHandler{gw: gw, failures: &failureWriter{logger: l}}
}

// HandleGetRating handles GET /rating/{identity}. It always answers 200;
// degraded results carry an advisory.
func (h *RatingHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.CurrentRating(r.Context(), identityParam(r)))
}

// HandleRefresh handles POST /rating/{identity}/refresh, a synchronous
// fetch that bypasses the recorded rating.
func (h *RatingHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_rating"
	current, previous, err := h.gw.RefreshAndRecord(r.Context(), identityParam(r))
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RatingEntry{
		Identity: identityParam(r),
		RKS:      current,
		Previous: previous,
		Delta:    current - previous,
	})
}
