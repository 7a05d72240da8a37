// Package api exposes the tracked inventory over a JSON HTTP API. It is
// a read-mostly consumer surface: it only sees snapshots emitted by the
// engines and never touches their live maps.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the API routes.
func NewRouter(inv InventoryProvider, hp HealthProvider) *mux.Router {
	r := mux.NewRouter()

	h := newHandler(inv, hp)

	r.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.healthCheck).Methods(http.MethodGet)

	apiRoutes := r.PathPrefix("/api").Subrouter()
	apiRoutes.HandleFunc("/servers", h.getServers).Methods(http.MethodGet)
	apiRoutes.HandleFunc("/scripts", h.getScripts).Methods(http.MethodGet)
	apiRoutes.HandleFunc("/healthchecks", h.getHealthChecks).Methods(http.MethodGet)
	apiRoutes.HandleFunc("/scan", h.triggerScan).Methods(http.MethodPost)
	apiRoutes.HandleFunc("/processes/{pid:[0-9]+}/kill", h.killProcess).Methods(http.MethodPost)

	return r
}
