// Package stage provides the durable object store holding raw batch payloads
// between webhook receipt and load.
package stage

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested object does not exist in the stage.
var ErrNotFound = errors.New("staged object not found")

// Stage is the object-store capability the pipeline depends on. The batch id
// is the object key.
type Stage interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
