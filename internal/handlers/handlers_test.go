package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtrail-systems/mailtrail/internal/logging"
	"github.com/mailtrail-systems/mailtrail/internal/models"
	"github.com/mailtrail-systems/mailtrail/internal/ratelimit"
	"github.com/mailtrail-systems/mailtrail/internal/service"
	"github.com/mailtrail-systems/mailtrail/internal/stage"
)

const (
	testBucket  = "mailtrail-batches"
	testBatchID = "22222222-2222-2222-2222-222222222222"
)

var testBatchBody = []byte(`[{"msys":{"message_event":{"event_id":"1","type":"bounce","rcpt_to":"a@b.com"}}}]`)

type mockLoader struct {
	loadFunc func(ctx context.Context, batchID string, raw []byte) (int, error)
}

func (m *mockLoader) LoadBatch(ctx context.Context, batchID string, raw []byte) (int, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx, batchID, raw)
	}
	return 1, nil
}

type mockQuerier struct {
	queryFunc func(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error)
}

func (m *mockQuerier) QueryEvents(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, stmt, args)
	}
	return nil, nil
}

type mockLimiter struct {
	allowed bool
	err     error
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) { return m.allowed, m.err }
func (m *mockLimiter) Close() error                                        { return nil }

type testPinger struct{ err error }

func (p *testPinger) Ping(ctx context.Context) error { return p.err }

func newTestHandler(st stage.Stage, loader *mockLoader, querier *mockQuerier, limiter ratelimit.RateLimiter) *Handler {
	logger := logging.Default()
	ingest := service.NewIngestService(st, loader, testBucket, false, logger)
	query := service.NewQueryService(querier, logger)
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return New(ingest, query, limiter, &testPinger{})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStoreBatch(t *testing.T) {
	mem := stage.NewMemoryStage()
	h := newTestHandler(mem, &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", bytes.NewReader(testBatchBody))
	req.Header.Set(BatchIDHeader, testBatchID)
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StoreBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testBatchID, resp.BatchID)
	assert.Equal(t, len(testBatchBody), resp.Bytes)
	assert.Equal(t, 1, mem.Len())
}

func TestStoreBatch_MissingHeader(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", bytes.NewReader(testBatchBody))
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing batch id header", decodeError(t, rec))
}

func TestStoreBatch_EmptyBody(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", nil)
	req.Header.Set(BatchIDHeader, testBatchID)
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing request body", decodeError(t, rec))
}

func TestStoreBatch_InvalidBatchID(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", bytes.NewReader(testBatchBody))
	req.Header.Set(BatchIDHeader, "not-a-uuid")
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Validation detail stays server-side
	assert.Equal(t, "invalid request", decodeError(t, rec))
}

func TestStoreBatch_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/batch", nil)
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStoreBatch_RateLimited(t *testing.T) {
	mem := stage.NewMemoryStage()
	h := newTestHandler(mem, &mockLoader{}, &mockQuerier{}, &mockLimiter{allowed: false})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", bytes.NewReader(testBatchBody))
	req.Header.Set(BatchIDHeader, testBatchID)
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, mem.Len())
}

func TestStoreBatch_LimiterFailureAdmits(t *testing.T) {
	mem := stage.NewMemoryStage()
	h := newTestHandler(mem, &mockLoader{}, &mockQuerier{}, &mockLimiter{err: errors.New("redis down")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", bytes.NewReader(testBatchBody))
	req.Header.Set(BatchIDHeader, testBatchID)
	rec := httptest.NewRecorder()

	h.StoreBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mem.Len())
}

func processBatchRequest(bucket, key string) *http.Request {
	payload := `{"Records":[{"eventSource":"aws:s3","s3":{"bucket":{"name":"` + bucket +
		`"},"object":{"key":"` + key + `"}}}]}`
	return httptest.NewRequest(http.MethodPost, "/api/v1/ingest/notifications", bytes.NewReader([]byte(payload)))
}

func TestProcessBatch(t *testing.T) {
	mem := stage.NewMemoryStage()
	require.NoError(t, mem.Put(context.Background(), testBatchID, testBatchBody))
	h := newTestHandler(mem, &mockLoader{}, &mockQuerier{}, nil)

	rec := httptest.NewRecorder()
	h.ProcessBatch(rec, processBatchRequest(testBucket, testBatchID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ProcessBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testBatchID, resp.BatchID)
	assert.Equal(t, 1, resp.Rows)
	assert.False(t, resp.Duplicate)
}

func TestProcessBatch_WrongBucket(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	rec := httptest.NewRecorder()
	h.ProcessBatch(rec, processBatchRequest("someone-elses-bucket", testBatchID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request", decodeError(t, rec))
}

func TestProcessBatch_StagedObjectMissing(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	rec := httptest.NewRecorder()
	h.ProcessBatch(rec, processBatchRequest(testBucket, testBatchID))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage unavailable", decodeError(t, rec))
}

func TestProcessBatch_LoadFailure(t *testing.T) {
	mem := stage.NewMemoryStage()
	require.NoError(t, mem.Put(context.Background(), testBatchID, testBatchBody))
	loader := &mockLoader{loadFunc: func(ctx context.Context, batchID string, raw []byte) (int, error) {
		return 0, errors.New("deadlock detected")
	}}
	h := newTestHandler(mem, loader, &mockQuerier{}, nil)

	rec := httptest.NewRecorder()
	h.ProcessBatch(rec, processBatchRequest(testBucket, testBatchID))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "processing failed", decodeError(t, rec))
}

func TestQueryEvents(t *testing.T) {
	querier := &mockQuerier{queryFunc: func(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error) {
		assert.Contains(t, stmt, "type = ANY($1)")
		return []json.RawMessage{
			json.RawMessage(`{"event_id":"1","type":"bounce"}`),
		}, nil
	}}
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, querier, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?events=bounce", nil)
	rec := httptest.NewRecorder()

	h.QueryEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "bounce", events[0]["type"])
}

func TestQueryEvents_InvalidFilter(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?events=bad*chars", nil)
	rec := httptest.NewRecorder()

	h.QueryEvents(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid query parameter", decodeError(t, rec))
}

func TestQueryEvents_StoreFailure(t *testing.T) {
	querier := &mockQuerier{queryFunc: func(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}}
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, querier, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()

	h.QueryEvents(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		h := newTestHandler(stage.NewMemoryStage(), &mockLoader{}, &mockQuerier{}, nil)

		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("store down", func(t *testing.T) {
		logger := logging.Default()
		ingest := service.NewIngestService(stage.NewMemoryStage(), &mockLoader{}, testBucket, false, logger)
		query := service.NewQueryService(&mockQuerier{}, logger)
		h := New(ingest, query, &ratelimit.NoOpRateLimiter{}, &testPinger{err: errors.New("dial refused")})

		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
