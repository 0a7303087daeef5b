// Package handlers frames the pipeline's HTTP surface.
package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/mailtrail-systems/mailtrail/internal/httputil"
	"github.com/mailtrail-systems/mailtrail/internal/metrics"
	"github.com/mailtrail-systems/mailtrail/internal/models"
	"github.com/mailtrail-systems/mailtrail/internal/ratelimit"
	"github.com/mailtrail-systems/mailtrail/internal/service"
	"github.com/mailtrail-systems/mailtrail/internal/translator"
)

// BatchIDHeader carries the sender-supplied batch id on webhook requests.
const BatchIDHeader = "X-MessageSystems-Batch-ID"

// Readiness is implemented by collaborators the readiness probe checks.
type Readiness interface {
	Ping(ctx context.Context) error
}

// Handler serves the store-batch, process-batch and query-events endpoints.
type Handler struct {
	ingest  *service.IngestService
	query   *service.QueryService
	limiter ratelimit.RateLimiter
	ready   Readiness
}

func New(ingest *service.IngestService, query *service.QueryService, limiter ratelimit.RateLimiter, ready Readiness) *Handler {
	return &Handler{
		ingest:  ingest,
		query:   query,
		limiter: limiter,
		ready:   ready,
	}
}

// StoreBatch accepts one webhook delivery and stages it verbatim.
func (h *Handler) StoreBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		// A limiter outage must not drop deliveries.
		metrics.RateLimitHits.WithLabelValues("error").Inc()
		allowed = true
	}
	if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	batchID := r.Header.Get(BatchIDHeader)
	if batchID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing batch id header")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "missing request body")
		return
	}

	n, err := h.ingest.StoreBatch(r.Context(), batchID, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.StoreBatchResponse{
		BatchID: batchID,
		Bytes:   n,
	})
}

// ProcessBatch accepts a storage-change notification and runs one
// batch-processing invocation.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	outcome, err := h.ingest.ProcessNotification(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.ProcessBatchResponse{
		BatchID:   outcome.BatchID,
		Rows:      outcome.Rows,
		Duplicate: outcome.Duplicate,
	})
}

// QueryEvents serves the read path: translated filters over loaded events.
func (h *Handler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	events, err := h.query.Search(r.Context(), r.URL.Query())
	if err != nil {
		if errors.Is(err, translator.ErrInvalidFilter) {
			metrics.QueryRequests.WithLabelValues("invalid").Inc()
			httputil.WriteError(w, http.StatusBadRequest, "invalid query parameter")
			return
		}
		metrics.QueryRequests.WithLabelValues("error").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	metrics.QueryRequests.WithLabelValues("ok").Inc()
	httputil.WriteJSON(w, http.StatusOK, events)
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports whether the relational store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.Ping(r.Context()); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps coordinator outcomes to stable client responses.
// Validation failures never leak internal detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRejectedInput):
		httputil.WriteError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, service.ErrStageUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "processing failed")
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
