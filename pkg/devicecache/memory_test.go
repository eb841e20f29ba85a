package devicecache_test

import (
	"context"
	"testing"

	"github.com/reloadsync/reloadsync/pkg/devicecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetPutRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := devicecache.NewMemoryStore()

	_, ok, err := store.Get(ctx, devicecache.LastSchemaKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, devicecache.LastSchemaKey, []byte(`{"version":"1.0"}`)))

	v, ok, err := store.Get(ctx, devicecache.LastSchemaKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"version":"1.0"}`, string(v))
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := devicecache.NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", []byte("first")))
	require.NoError(t, store.Put(ctx, "k", []byte("second")))

	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(v))
}
