package api

import (
	"net/http"

	"github.com/okian/rks/pkg/logger"
)

// SuggestHandler serves push suggestions.
type SuggestHandler struct {
	gw       Gateway
	failures *failureWriter
}

// NewSuggestHandler creates a new suggest handler.
func NewSuggestHandler(gw Gateway, l logger.Logger) *SuggestHandler {
	return &SuggestHandler{gw: gw, failures: &failureWriter{logger: l}}
}

// HandleSuggest handles GET /suggest?acc=&level=.
func (h *SuggestHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggest"
	acc, err := floatQuery(r, "acc")
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	level, err := floatQuery(r, "level")
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	s, err := h.gw.Suggest(acc, level)
	if err != nil {
		h.failures.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
