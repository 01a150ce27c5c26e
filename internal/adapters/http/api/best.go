package api

import (
	"net/http"

	"github.com/okian/rks/pkg/logger"
)

// BestHandler serves best and perfect boards.
type BestHandler struct {
	gw       Gateway
	failures *failureWriter
}

// NewBestHandler creates a new best handler.
func NewBestHandler(gw Gateway, l logger.Logger) *BestHandler {
	return &BestHandler{gw: gw, failures: &failureWriter{logger: l}}
}

// HandleGetBest handles GET /best/{identity}?best=&phi=&original=&userinfo=.
func (h *BestHandler) HandleGetBest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_best"
	defBest, defPhi := h.gw.DefaultCounts()

	b, err := intQuery(r, "best", defBest)
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	p, err := intQuery(r, "phi", defPhi)
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	original, err := boolQuery(r, "original")
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	userinfo, err := boolQuery(r, "userinfo")
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}

	resp, err := h.gw.Best(r.Context(), identityParam(r), b, p, original, userinfo)
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
