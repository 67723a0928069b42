package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/agents/{id}/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/active", chain(http.HandlerFunc(h.SetScheduleActive)))
	mux.Handle("POST /api/v1/schedules/{id}/events", chain(http.HandlerFunc(h.RecordScheduleEvent)))
	mux.Handle("GET /api/v1/schedules/{id}/stats", chain(http.HandlerFunc(h.GetScheduleStats)))

	// Manual execution
	mux.Handle("POST /api/v1/schedules/{id}/run", chain(http.HandlerFunc(h.RunSchedule)))
	mux.Handle("POST /api/v1/schedules/catch-up", chain(http.HandlerFunc(h.CatchUpSchedules)))

	// External trigger
	mux.Handle("POST /webhook/trigger-schedules", chain(http.HandlerFunc(h.TriggerSchedules)))
}
