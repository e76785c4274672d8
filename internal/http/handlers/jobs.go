package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"astroguide/internal/domain"
	"astroguide/internal/jobs"
	"astroguide/internal/middleware"
)

type startJobRequest struct {
	JobType string `json:"jobType"`
	Date    string `json:"date,omitempty"`
}

type jobResponse struct {
	JobID        string    `json:"jobId"`
	Kind         string    `json:"kind,omitempty"`
	Status       string    `json:"status"`
	DateKey      string    `json:"date,omitempty"`
	ResultRef    string    `json:"resultRef,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newJobResponse(job *domain.GenerationJob) jobResponse {
	return jobResponse{
		JobID:        job.ID,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		DateKey:      job.DateKey,
		ResultRef:    job.ResultRef,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

// StartJob creates (or reuses) a generation job and answers 202 with its id.
func (a *App) StartJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind, err := domain.ParseJobKind(req.JobType)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported jobType")
		return
	}
	job, err := a.Jobs.Start(r.Context(), jobs.StartRequest{
		OwnerID: userID,
		Plan:    middleware.PlanFromContext(r.Context()),
		Kind:    kind,
		DateKey: req.Date,
		Locale:  middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobResponse(job))
}

// GetJob returns the polling view of a job owned by the caller.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}
	job, err := a.Jobs.Get(r.Context(), userID, jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if !job.Status.IsTerminal() {
		w.Header().Set("Retry-After", "2")
	}
	a.json(w, http.StatusOK, newJobResponse(job))
}
