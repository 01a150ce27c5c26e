package api

import (
	"errors"
	"net/http"

	"github.com/okian/rks/internal/adapters/mq/queue"
	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/adapters/savedata"
	service "github.com/okian/rks/internal/app"
	"github.com/okian/rks/internal/domain/selector"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// statusFor maps an error kind to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, selector.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidIdentity):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, savedata.ErrNoSave):
		return http.StatusNotFound, "no_save"
	case errors.Is(err, service.ErrRemoteFetch):
		return http.StatusBadGateway, "remote_fetch_failed"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
