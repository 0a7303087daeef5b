package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailtrail-systems/mailtrail/internal/handlers"
	"github.com/mailtrail-systems/mailtrail/internal/middleware"
)

// NewRouter constructs a ServeMux with the pipeline API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Webhook front door and trigger
	mux.HandleFunc("/api/v1/ingest/batch", h.StoreBatch)
	mux.HandleFunc("/api/v1/ingest/notifications", h.ProcessBatch)

	// Read path
	mux.HandleFunc("/api/v1/events", h.QueryEvents)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
