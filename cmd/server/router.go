package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/stockmeta/internal/api"
	apiMiddleware "github.com/phrazzld/stockmeta/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	maxUpload := int64(app.config.Server.MaxUploadMB) << 20
	jobHandler := api.NewJobHandler(app.batchService, app.previews, maxUpload, app.logger)
	batchHandler := api.NewBatchHandler(app.batchService, app.logger)
	eventsHandler := api.NewEventsHandler(app.emitter, app.batchService, 0, app.logger)

	r.Route("/api", func(r chi.Router) {
		if app.jwtService != nil {
			r.Use(apiMiddleware.NewAuthMiddleware(app.jwtService).Authenticate)
		}

		r.Post("/jobs", jobHandler.SubmitImages)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Delete("/jobs", jobHandler.ResetJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Delete("/jobs/{id}", jobHandler.RemoveJob)
		r.Put("/jobs/{id}/context", jobHandler.UpdateContext)
		r.Post("/jobs/{id}/dispatch", jobHandler.DispatchJob)
		r.Post("/jobs/{id}/cancel", jobHandler.CancelJob)

		r.Get("/previews/{token}", jobHandler.GetPreview)

		r.Post("/batch/run", batchHandler.RunBatch)
		r.Get("/batch/status", batchHandler.GetStatus)
		r.Get("/export", batchHandler.Export)

		r.Get("/settings", batchHandler.GetSettings)
		r.Put("/settings", batchHandler.SaveSettings)

		r.Get("/events", eventsHandler.Stream)
	})

	r.Get("/health", api.Health)

	return r
}
