package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"samedaydispatch/internal/api/handlers"
	"samedaydispatch/internal/domain"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(store *domain.PackageStore, trucks []*domain.Truck) http.Handler {
	mux := http.NewServeMux()

	pkgHandler := &handlers.PackageHandler{Store: store}
	planHandler := &handlers.PlanHandler{Trucks: trucks}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/packages", pkgHandler.List)
	mux.HandleFunc("/packages/", pkgHandler.Get)
	mux.HandleFunc("/plan", planHandler.Plan)
	mux.Handle("/metrics", promhttp.Handler())

	return requestIDMiddleware(loggingMiddleware(mux))
}
