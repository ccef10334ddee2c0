// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/agropredict/internal/app"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit starts a round, or reports a duplicate request id.
	Submit(ctx context.Context, domain model.Domain, sub service.Submission) (service.SubmitResult, error)

	// Read operations expose session state.
	State(domain model.Domain) (model.SessionState, error)
	Await(ctx context.Context, domain model.Domain) (model.SessionState, error)
	AwaitRound(ctx context.Context, domain model.Domain, roundID uint64) (model.SessionState, error)

	// Overview returns the model catalog with comparison metrics.
	Overview(ctx context.Context) (types.Overview, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	modelsHandler  *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		predictHandler: NewPredictHandler(deps),
		modelsHandler:  NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /models", MetricsMiddleware(s.modelsHandler.HandleGetModels, "models"))
	mux.HandleFunc("POST /predict/{domain}", MetricsMiddleware(s.predictHandler.HandleSubmit, "predict_submit"))
	mux.HandleFunc("GET /predict/{domain}", MetricsMiddleware(s.predictHandler.HandleState, "predict_state"))
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

// writeServiceError translates service errors to status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrUnknownDomain):
		writeError(w, http.StatusNotFound, "unknown_domain", err)
	case errors.Is(err, service.ErrUnknownDomain):
		writeError(w, http.StatusNotFound, "unknown_domain", WrapKind(op, ErrUnknownDomain, err))
	case errors.Is(err, service.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrClosed),
		errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
