package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStage()

	require.NoError(t, m.Put(ctx, "k1", []byte("payload")))
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, m.Delete(ctx, "k1"))
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStage_GetMissing(t *testing.T) {
	m := NewMemoryStage()

	_, err := m.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStage_DeleteMissingIsIdempotent(t *testing.T) {
	m := NewMemoryStage()

	assert.NoError(t, m.Delete(context.Background(), "absent"))
}

func TestMemoryStage_CopiesOnPutAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStage()

	body := []byte("original")
	require.NoError(t, m.Put(ctx, "k", body))
	body[0] = 'X'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}
