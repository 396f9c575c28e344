package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shotapi/internal/storage"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	assert.NoError(t, storage.ValidateKey("0f3a9c"))
	assert.NoError(t, storage.ValidateKey("abc_DEF-123"))
	assert.Error(t, storage.ValidateKey(""))
	assert.Error(t, storage.ValidateKey("../etc/passwd"))
	assert.Error(t, storage.ValidateKey("a/b"))
	assert.Error(t, storage.ValidateKey("key.bin"))
}

func TestNoOpProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var p storage.Provider = storage.NoOpProvider{}
	require.NoError(t, p.Put(ctx, "k", []byte("v")))
	_, err := p.Get(ctx, "k")
	require.ErrorIs(t, err, storage.ErrNotFound)
	keys, err := p.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	require.NoError(t, p.Delete(ctx, "k"))
	require.NoError(t, p.Clear(ctx))
}
