package repository

import (
	"context"
	"encoding/json"
)

// Loader owns the atomic register-then-bulk-insert transaction for one batch.
type Loader interface {
	LoadBatch(ctx context.Context, batchID string, raw []byte) (int, error)
}

// EventQuerier executes a translated event query against the store.
type EventQuerier interface {
	QueryEvents(ctx context.Context, stmt string, args []any) ([]json.RawMessage, error)
}
