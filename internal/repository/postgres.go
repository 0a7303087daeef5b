package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailtrail-systems/mailtrail/internal/extractor"
	"github.com/mailtrail-systems/mailtrail/internal/models"
)

// ErrDuplicateBatch reports that the batch id has already been registered.
// It is an expected outcome under at-least-once delivery, not a failure.
var ErrDuplicateBatch = errors.New("batch already loaded")

// registrationPK is the primary-key constraint on the batches table. Only a
// uniqueness violation on exactly this constraint takes the duplicate path;
// any other constraint violation is a plain load failure.
const registrationPK = "batches_pkey"

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Ping reports store reachability for readiness checks.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

// LoadBatch registers the batch id and bulk-inserts its extracted event rows
// in one transaction. Exactly one of three outcomes results: the row count on
// first load, ErrDuplicateBatch when the id was already registered, or an
// error with no partial writes.
//
// The registration insert is issued and awaited before extraction runs, so
// the duplicate path never pays for row extraction or statement building.
func (r *PostgresRepository) LoadBatch(ctx context.Context, batchID string, raw []byte) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO batches (batch_id) VALUES ($1)`, batchID,
	); err != nil {
		if isDuplicateRegistration(err) {
			return 0, ErrDuplicateBatch
		}
		return 0, fmt.Errorf("failed to register batch: %w", err)
	}

	records, err := extractor.Extract(raw)
	if err != nil {
		return 0, err
	}

	if len(records) > 0 {
		stmt, args := buildEventInsert(batchID, records)
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("failed to insert event rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit load: %w", err)
	}

	return len(records), nil
}

// isDuplicateRegistration reports whether err is a uniqueness violation on
// exactly the batches primary key. Violations of any other constraint, and
// any other error class, are plain load failures.
func isDuplicateRegistration(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == registrationPK
}

// eventColumns lists the insert columns in placeholder order.
var eventColumns = []string{
	"batch_id",
	"event_id",
	"timestamp",
	"type",
	"bounce_class",
	"campaign_id",
	"friendly_from",
	"message_id",
	"reason",
	"rcpt_to",
	"subaccount_id",
	"template_id",
	"transmission_id",
	"event",
}

// buildEventInsert renders one multi-row INSERT covering every record, so the
// whole batch loads in a single round-trip inside the open transaction.
func buildEventInsert(batchID string, records []models.EventRecord) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO events (")
	sb.WriteString(strings.Join(eventColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(eventColumns))
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range eventColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(eventColumns)+j+1)
		}
		sb.WriteString(")")

		args = append(args,
			batchID,
			rec.EventID,
			rec.Timestamp,
			rec.Type,
			rec.BounceClass,
			rec.CampaignID,
			rec.FriendlyFrom,
			rec.MessageID,
			rec.Reason,
			rec.RcptTo,
			rec.SubaccountID,
			rec.TemplateID,
			rec.TransmissionID,
			rec.Event,
		)
	}

	return sb.String(), args
}

// QueryEvents runs a translated statement and returns the serialized event
// payloads in statement order.
func (r *PostgresRepository) QueryEvents(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]json.RawMessage, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event payload: %w", err)
		}
		events = append(events, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}

	return events, nil
}
