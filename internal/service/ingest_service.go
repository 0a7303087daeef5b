// Package service orchestrates the two-phase ingestion pipeline and the
// read path.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailtrail-systems/mailtrail/internal/logging"
	"github.com/mailtrail-systems/mailtrail/internal/metrics"
	"github.com/mailtrail-systems/mailtrail/internal/models"
	"github.com/mailtrail-systems/mailtrail/internal/repository"
	"github.com/mailtrail-systems/mailtrail/internal/stage"
)

var (
	// ErrRejectedInput indicates a malformed webhook request or trigger
	// notification. Client-class; the stage is left untouched.
	ErrRejectedInput = errors.New("rejected input")

	// ErrStageUnavailable indicates an object-store I/O failure. Nothing was
	// mutated, so the invocation is safe to retry.
	ErrStageUnavailable = errors.New("stage unavailable")

	// ErrLoadFailed wraps any transactional failure other than a duplicate.
	// The staged object is retained for retry or inspection.
	ErrLoadFailed = errors.New("load failed")
)

// expectedEventSource is the storage source type a trigger notification must
// carry to be accepted.
const expectedEventSource = "aws:s3"

// Outcome reports the terminal result of one batch-processing invocation.
type Outcome struct {
	BatchID   string
	Rows      int
	Duplicate bool
}

// IngestService coordinates stage writes, trigger validation and batch loads.
type IngestService struct {
	stage           stage.Stage
	loader          repository.Loader
	bucket          string
	deleteAfterLoad bool
	logger          *logging.Logger
}

// NewIngestService wires the coordinator with its collaborators. The stage
// and loader handles are owned by the caller; deleteAfterLoad selects whether
// successfully loaded batches are removed from the stage or retained for
// audit.
func NewIngestService(st stage.Stage, loader repository.Loader, bucket string, deleteAfterLoad bool, logger *logging.Logger) *IngestService {
	return &IngestService{
		stage:           st,
		loader:          loader,
		bucket:          bucket,
		deleteAfterLoad: deleteAfterLoad,
		logger:          logger,
	}
}

// StoreBatch validates the sender-supplied batch id and writes the payload
// verbatim to the stage. Returns the number of bytes staged.
func (s *IngestService) StoreBatch(ctx context.Context, batchID string, body []byte) (int, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return 0, fmt.Errorf("%w: batch id must be a UUID", ErrRejectedInput)
	}
	if len(body) == 0 {
		return 0, fmt.Errorf("%w: empty batch body", ErrRejectedInput)
	}

	if err := s.stage.Put(ctx, batchID, body); err != nil {
		s.logger.ErrorContext(ctx, "Failed to stage batch",
			logging.BatchID(batchID), logging.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrStageUnavailable, err)
	}

	metrics.BatchesStored.Inc()
	metrics.BatchBytesTotal.Add(float64(len(body)))
	s.logger.InfoContext(ctx, "Batch staged",
		logging.BatchID(batchID), logging.Bytes(len(body)))

	return len(body), nil
}

// ProcessNotification runs one batch-processing invocation: validate the
// storage-change notification, fetch the staged object, load it, then apply
// the stage cleanup policy. The returned Outcome and error are mutually
// exclusive; outcome reporting is single-shot.
func (s *IngestService) ProcessNotification(ctx context.Context, payload []byte) (*Outcome, error) {
	batchID, err := s.validateNotification(payload)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	raw, err := s.stage.Get(ctx, batchID)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.ErrorContext(ctx, "Failed to fetch staged batch",
			logging.BatchID(batchID), logging.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStageUnavailable, err)
	}

	start := time.Now()
	rows, err := s.loader.LoadBatch(ctx, batchID, raw)
	metrics.LoadDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, repository.ErrDuplicateBatch):
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		s.logger.InfoContext(ctx, "Duplicate batch skipped", logging.BatchID(batchID))
		// Compensating action outside the transaction: best effort only,
		// a failed delete is logged and never escalated.
		if derr := s.stage.Delete(ctx, batchID); derr != nil {
			s.logger.WarnContext(ctx, "Failed to delete staged duplicate",
				logging.BatchID(batchID), logging.Error(derr))
		}
		return &Outcome{BatchID: batchID, Duplicate: true}, nil

	case err != nil:
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.ErrorContext(ctx, "Batch load failed",
			logging.BatchID(batchID), logging.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	metrics.LoadsTotal.WithLabelValues(metrics.OutcomeLoaded).Inc()
	metrics.RowsInserted.Add(float64(rows))
	s.logger.InfoContext(ctx, "Batch loaded",
		logging.BatchID(batchID), logging.Rows(rows))

	if s.deleteAfterLoad {
		if derr := s.stage.Delete(ctx, batchID); derr != nil {
			s.logger.WarnContext(ctx, "Failed to delete staged batch after load",
				logging.BatchID(batchID), logging.Error(derr))
		}
	}

	return &Outcome{BatchID: batchID, Rows: rows}, nil
}

// validateNotification checks the trigger names exactly one object from the
// expected source and bucket, and that the object key is a batch UUID.
func (s *IngestService) validateNotification(payload []byte) (string, error) {
	var n models.StorageNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return "", fmt.Errorf("%w: notification is not valid JSON", ErrRejectedInput)
	}

	if len(n.Records) != 1 {
		return "", fmt.Errorf("%w: notification must contain exactly one record", ErrRejectedInput)
	}

	rec := n.Records[0]
	if rec.EventSource != expectedEventSource {
		return "", fmt.Errorf("%w: unexpected event source", ErrRejectedInput)
	}
	if rec.S3.Bucket.Name != s.bucket {
		return "", fmt.Errorf("%w: unexpected bucket", ErrRejectedInput)
	}

	key := rec.S3.Object.Key
	if _, err := uuid.Parse(key); err != nil {
		return "", fmt.Errorf("%w: object key is not a batch UUID", ErrRejectedInput)
	}

	return key, nil
}
