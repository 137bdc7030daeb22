// Package api assembles the HTTP surface of the orchestrator.
package api

import (
	"log/slog"
	"net/http"

	mw "github.com/forensiq/forensiq/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger *slog.Logger
	Auth   *mw.Auth

	HealthHandler http.HandlerFunc

	StartJobHandler  http.HandlerFunc
	ManifestHandler  http.HandlerFunc
	SubmitJobHandler http.HandlerFunc

	StatusHandler            http.HandlerFunc
	EvalAssetStatusHandler   http.HandlerFunc
	EvalEmbeddedCodesHandler http.HandlerFunc
	EvalJobProgressHandler   http.HandlerFunc
	UpdateJobHandler         http.HandlerFunc
	CancelJobHandler         http.HandlerFunc

	UpdateMMRKHandler      http.HandlerFunc
	RegisterRendersHandler http.HandlerFunc

	AssembleHandler      http.HandlerFunc
	DeleteRendersHandler http.HandlerFunc

	DeletePodsHandler http.HandlerFunc
	DeleteJobsHandler http.HandlerFunc
	JobLogsHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Logger))
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", deps.HealthHandler)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Post("/api/v1/jobs", deps.StartJobHandler)
		r.Post("/api/v1/jobs/manifest", deps.ManifestHandler)
		r.Post("/api/v1/jobs/submit", deps.SubmitJobHandler)

		r.Post("/api/v1/status", deps.StatusHandler)
		r.Post("/api/v1/status/asset", deps.EvalAssetStatusHandler)
		r.Post("/api/v1/status/codes", deps.EvalEmbeddedCodesHandler)
		r.Post("/api/v1/status/progress", deps.EvalJobProgressHandler)
		r.Post("/api/v1/status/job", deps.UpdateJobHandler)
		r.Post("/api/v1/status/cancel", deps.CancelJobHandler)

		// Worker-facing progress reports
		r.Post("/api/v1/mmrk", deps.UpdateMMRKHandler)
		r.Post("/api/v1/renders", deps.RegisterRendersHandler)

		r.Post("/api/v1/assets/assemble", deps.AssembleHandler)
		r.Post("/api/v1/renders/delete", deps.DeleteRendersHandler)

		r.Post("/api/v1/cluster/pods/delete", deps.DeletePodsHandler)
		r.Post("/api/v1/cluster/jobs/delete", deps.DeleteJobsHandler)
		r.Get("/api/v1/cluster/logs", deps.JobLogsHandler)
	})

	return r
}
