package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Applications
	mux.Handle("GET /api/v1/applications", chain(http.HandlerFunc(h.ListApplications)))
	mux.Handle("POST /api/v1/applications", chain(http.HandlerFunc(h.SubmitApplication)))
	mux.Handle("GET /api/v1/applications/{id}", chain(http.HandlerFunc(h.GetApplication)))
	mux.Handle("POST /api/v1/applications/{id}/retry", chain(http.HandlerFunc(h.RetryApplication)))
	mux.Handle("POST /api/v1/applications/{id}/abandon", chain(http.HandlerFunc(h.AbandonApplication)))
}
