package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"astroguide/internal/domain"
	"astroguide/internal/jobs"
	"astroguide/internal/middleware"
)

type guidanceResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Date        string          `json:"date"`
	Locale      string          `json:"locale"`
	Status      string          `json:"status"`
	Title       string          `json:"title,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	GeneratedAt *time.Time      `json:"generatedAt,omitempty"`
}

type pendingResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

func newGuidanceResponse(g *domain.Guidance) guidanceResponse {
	resp := guidanceResponse{
		ID:          g.ID,
		Kind:        string(g.Kind),
		Date:        g.DateKey,
		Locale:      g.Locale,
		Status:      string(g.Status),
		Title:       g.Title,
		Provider:    g.Provider,
		GeneratedAt: g.GeneratedAt,
	}
	if len(g.Content) > 0 {
		resp.Content = g.Content
	}
	return resp
}

// GetGuidance returns a document by id, typically the resultRef of a READY job.
func (a *App) GetGuidance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	g, err := a.Guidance.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if g.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	a.json(w, http.StatusOK, newGuidanceResponse(g))
}

// DailyGuidance is the lazy read path: it returns the READY document for the
// date, or starts (or reuses) a DAILY_GUIDANCE job and answers 202 with its id.
func (a *App) DailyGuidance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	dateKey, err := domain.ParseDateKey(r.URL.Query().Get("date"), a.now())
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	g, err := a.Guidance.FindByOwnerAndDate(r.Context(), domain.JobKindDailyGuidance, userID, dateKey)
	switch {
	case err == nil && g.IsReady():
		a.json(w, http.StatusOK, newGuidanceResponse(g))
		return
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		a.domainError(w, r, err)
		return
	}

	job, err := a.Jobs.Start(r.Context(), jobs.StartRequest{
		OwnerID: userID,
		Plan:    middleware.PlanFromContext(r.Context()),
		Kind:    domain.JobKindDailyGuidance,
		DateKey: dateKey,
		Locale:  middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	w.Header().Set("Retry-After", "2")
	a.json(w, http.StatusAccepted, pendingResponse{Status: string(domain.GuidanceStatusPending), JobID: job.ID})
}
