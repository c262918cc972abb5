package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

func TestResultStore_SaveLoad(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	q, err := domain.NewQuery(domain.KindFetch, map[string]any{"url": "https://example.com", "path": "a"})
	require.NoError(t, err)
	results := domain.NewResultSet()
	results.Put(domain.Cancelled(q, 0))

	require.NoError(t, store.Save(ctx, results))
	assert.Equal(t, 1, store.Saves())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, results.Sorted(), loaded.Sorted())
}

func TestResultStore_Isolation(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()

	q, err := domain.NewQuery(domain.KindShell, map[string]any{"path": "p"})
	require.NoError(t, err)
	results := domain.NewResultSet()
	require.NoError(t, store.Save(ctx, results))

	// changes after Save do not leak into the store
	results.Put(domain.Cancelled(q, 0))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	// and changes to a loaded set do not either
	loaded.Put(domain.Cancelled(q, 0))
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Len())
	assert.Equal(t, "memory", store.Location())
}
