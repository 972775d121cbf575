package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Controllers
	mux.Handle("GET /api/v1/controllers", chain(http.HandlerFunc(h.ListControllers)))
	mux.Handle("GET /api/v1/controllers/{id}", chain(http.HandlerFunc(h.GetController)))
	mux.Handle("POST /api/v1/controllers/{id}/runs", chain(http.HandlerFunc(h.StartRun)))
	mux.Handle("POST /api/v1/controllers/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	// Runs (история)
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Schedules и группы
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("GET /api/v1/groups", chain(http.HandlerFunc(h.ListGroups)))
}
