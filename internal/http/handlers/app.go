package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"astroguide/internal/domain"
	"astroguide/internal/guidance"
	"astroguide/internal/infra"
	"astroguide/internal/jobs"
	"astroguide/internal/middleware"
)

// JobService starts jobs and reads them back for their owner.
type JobService interface {
	Start(ctx context.Context, req jobs.StartRequest) (*domain.GenerationJob, error)
	Get(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error)
}

// App holds the dependencies shared by HTTP handlers.
type App struct {
	Config        *infra.Config
	Logger        infra.Logger
	Jobs          JobService
	Guidance      guidance.Reader
	JWTSecret     string
	CountryLookup middleware.CountryLookup
	// Ping reports backend readiness; nil means always ready.
	Ping func(ctx context.Context) error
	Now  func() time.Time
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// domainError maps service errors to HTTP responses.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, domain.ErrUnsupportedPlan):
		a.error(w, http.StatusForbidden, "plan_required", err.Error())
	case errors.Is(err, domain.ErrUnknownJobKind), errors.Is(err, domain.ErrInvalidDateKey):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		a.error(w, http.StatusServiceUnavailable, "queue_unavailable", "job queue unavailable, try again later")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("http: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
