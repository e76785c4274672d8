package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"astroguide/internal/http/handlers"
	"astroguide/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	var (
		defaultLocale string
		corsOrigins   []string
		ratePerMin    int
		tokenPolicy   middleware.TokenPolicy
	)
	if app.Config != nil {
		defaultLocale = app.Config.DefaultLocale
		corsOrigins = app.Config.CORSOrigins
		ratePerMin = app.Config.RateLimitPerMin
		tokenPolicy = middleware.TokenPolicy{Issuer: app.Config.JWTIssuer, Audience: app.Config.JWTAudience}
	}

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(corsOrigins),
		middleware.I18N(defaultLocale, app.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.JWTSecret, tokenPolicy))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.With(middleware.RateLimit(ratePerMin, time.Minute)).Post("/start", app.StartJob)
			r.Get("/{jobId}", app.GetJob)
		})

		r.Route("/v1/guidance", func(r chi.Router) {
			r.With(middleware.RateLimit(ratePerMin, time.Minute)).Get("/daily", app.DailyGuidance)
			r.Get("/{id}", app.GetGuidance)
		})
	})

	return r
}
