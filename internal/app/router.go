// Package app wires the HTTP surface and startup helpers.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/ratelimiter"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. An
// empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
// msgLimiter throttles conversation messages per caller and may be nil;
// overview may be nil when the admin surface is disabled.
func BuildRouter(cfg config.Config, srv *httpserver.Server, msgLimiter ratelimiter.Limiter, overview domain.OverviewRepository) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPRequestTimeout))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API routes require the gateway-injected caller identity.
	r.Group(func(api chi.Router) {
		api.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		api.Use(httpserver.CallerIdentity)

		api.Get("/v1/subject-areas", srv.SubjectAreasHandler())

		api.Get("/v1/interviews", srv.ListInterviewsHandler())
		api.Get("/v1/interviews/active", srv.ActiveInterviewHandler())
		api.Get("/v1/interviews/{id}", srv.GetInterviewHandler())
		api.Post("/v1/interviews", srv.StartInterviewHandler())
		api.With(httpserver.MessageRateLimit(msgLimiter)).Post("/v1/interviews/{id}/messages", srv.MessageHandler())
		api.Post("/v1/interviews/{id}/finalize", srv.FinalizeHandler())
		api.Post("/v1/interviews/{id}/abandon", srv.AbandonHandler())

		api.Post("/v1/cv", srv.UploadCVHandler())
		api.Get("/v1/cv/{id}/report", srv.CVReportHandler())
	})

	if cfg.AdminEnabled() && overview != nil {
		r.Group(func(admin chi.Router) {
			admin.Use(httpserver.AdminBasicAuth(cfg.AdminUsername, cfg.AdminPasswordHash))
			admin.Get("/v1/admin/overview", srv.AdminOverviewHandler(overview))
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
