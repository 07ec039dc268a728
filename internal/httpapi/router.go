// Package httpapi exposes the job-conversion API over chi: upload,
// status, SSE progress, download, and retry, plus health/ready checks.
// Middleware stack and route-grouping style are grounded on the
// knowledge-engine API's router.go; the multipart upload handling is
// grounded on jupark12-go-job-queue's server.go; route semantics, status
// codes, and SSE framing follow original_source/app/main.py exactly.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/vppe/internal/cleanup"
	"github.com/spherical/vppe/internal/config"
	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/orchestrator"
	"github.com/spherical/vppe/internal/registry"
)

// NewRouter builds the HTTP handler for the conversion service. sweeper
// is optional; when non-nil it backs the admin-only force-cleanup route
// that vppe-admin uses, adding the operator surface the admin CLI needs
// (DESIGN.md).
func NewRouter(cfg *config.Config, reg *registry.Registry, bus *events.Registry, orch *orchestrator.Orchestrator, renderer domain.Renderer, sweeper *cleanup.Sweeper, logger *observability.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"vppe"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	h := &Handler{cfg: cfg, reg: reg, bus: bus, orch: orch, renderer: renderer, sweeper: sweeper, log: logger.WithComponent("httpapi")}

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/{jobID}", h.GetJob)
		r.Get("/{jobID}/events", h.JobEvents)
		r.Get("/{jobID}/result", h.DownloadResult)
		r.Post("/{jobID}/retry", h.RetryFailedPages)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/cleanup", h.ForceCleanup)
	})

	return r
}

// corsMiddleware allows any origin, matching SPEC_FULL.md's noted
// deviation from the original's single-origin allowlist: this service
// has no browser-session auth to protect, so a wildcard is acceptable
// and one less thing to misconfigure per deployment.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
