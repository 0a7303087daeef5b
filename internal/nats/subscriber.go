// Package nats consumes storage-change notifications from a NATS subject and
// routes them into the ingestion coordinator. Bucket notifications published
// by MinIO-compatible stores arrive here in the same S3 event shape the HTTP
// trigger accepts.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mailtrail-systems/mailtrail/internal/logging"
	"github.com/mailtrail-systems/mailtrail/internal/service"
)

// Config holds the subscriber connection settings.
type Config struct {
	URL     string
	Subject string
	Queue   string
}

// Subscriber feeds bucket notifications into the coordinator.
type Subscriber struct {
	conn    *nats.Conn
	subject string
	queue   string
	svc     *service.IngestService
	sub     *nats.Subscription
	logger  *logging.Logger
}

// NewSubscriber connects to NATS. Reconnects are unbounded; short-lived
// broker outages must not lose the subscription.
func NewSubscriber(cfg Config, svc *service.IngestService, logger *logging.Logger) (*Subscriber, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("mailtrail-loader"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		conn:    conn,
		subject: cfg.Subject,
		queue:   cfg.Queue,
		svc:     svc,
		logger:  logger,
	}, nil
}

// Start subscribes with a queue group so concurrent loader instances split
// the notification stream.
func (s *Subscriber) Start() error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub

	s.logger.Info("Notification subscriber started",
		"subject", s.subject, "queue", s.queue)
	return nil
}

// Stop drains the subscription and closes the connection.
func (s *Subscriber) Stop() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn("Failed to drain subscription", logging.Error(err))
		}
	}
	s.conn.Close()
}

func (s *Subscriber) handle(msg *nats.Msg) {
	ctx := context.Background()

	outcome, err := s.svc.ProcessNotification(ctx, msg.Data)
	switch {
	case errors.Is(err, service.ErrRejectedInput):
		// Malformed trigger; redelivery cannot fix it, drop with a log.
		s.logger.Warn("Rejected notification", logging.Error(err))
	case err != nil:
		// The staged object is retained; the next notification retries it.
		s.logger.Error("Notification processing failed", logging.Error(err))
	case outcome.Duplicate:
		s.logger.Info("Duplicate batch skipped", logging.BatchID(outcome.BatchID))
	default:
		s.logger.Info("Batch loaded",
			logging.BatchID(outcome.BatchID), logging.Rows(outcome.Rows))
	}
}
