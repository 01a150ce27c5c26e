// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/rks/internal/domain/types"
	"github.com/okian/rks/pkg/logger"
)

// Gateway is the rating service as seen by the handlers.
type Gateway interface {
	CurrentRating(ctx context.Context, identity string) types.RatingEntry
	RefreshAndRecord(ctx context.Context, identity string) (current, previous float64, err error)
	Best(ctx context.Context, identity string, b, p int, includeOriginal, includeUser bool) (types.BestResponse, error)
	History(ctx context.Context, identity string) (types.HistoryEntry, error)
	PruneHistory(ctx context.Context, identity string) error
	Suggest(acc, level float64) (types.Suggestion, error)
	EnqueueRefresh(ctx context.Context, identity string) (jobID string, queued bool, err error)
	DefaultCounts() (best, phi int)
}

// DefaultRequestTimeout bounds a single request, fetches included.
const DefaultRequestTimeout = 60 * time.Second

// Server wires HTTP routes for the rating API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	ratingHandler  *RatingHandler
	bestHandler    *BestHandler
	historyHandler *HistoryHandler
	refreshHandler *RefreshHandler
	suggestHandler *SuggestHandler

	timeout time.Duration
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(gw Gateway, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.ratingHandler = NewRatingHandler(gw, s.logger)
	s.bestHandler = NewBestHandler(gw, s.logger)
	s.historyHandler = NewHistoryHandler(gw, s.logger)
	s.refreshHandler = NewRefreshHandler(gw, s.logger)
	s.suggestHandler = NewSuggestHandler(gw, s.logger)
	return s
}

// Routes returns a router with all endpoints and middleware attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Timeout(s.timeout))
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/rating/{identity}", func(r chi.Router) {
		r.Get("/", s.ratingHandler.HandleGetRating)
		r.Post("/refresh", s.ratingHandler.HandleRefresh)
	})
	r.Post("/refresh/{identity}", s.refreshHandler.HandleEnqueue)
	r.Get("/best/{identity}", s.bestHandler.HandleGetBest)
	r.Route("/history/{identity}", func(r chi.Router) {
		r.Get("/", s.historyHandler.HandleGetHistory)
		r.Delete("/window", s.historyHandler.HandlePruneWindow)
	})
	r.Get("/suggest", s.suggestHandler.HandleSuggest)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// failureWriter maps errors to responses and logs server-side failures.
type failureWriter struct {
	logger logger.Logger
}

func (f *failureWriter) write(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		f.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

// identityParam returns the {identity} path segment.
func identityParam(r *http.Request) string {
	return chi.URLParam(r, "identity")
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return v, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrBadRequest, name)
	}
	return v, nil
}

// floatQuery parses a required float query parameter.
func floatQuery(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrBadRequest, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrBadRequest, name)
	}
	return v, nil
}
