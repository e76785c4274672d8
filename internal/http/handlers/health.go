package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the database answers.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("http: readiness check failed")
			a.error(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ready"})
}
