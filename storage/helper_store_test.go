package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundtrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("helper bundle payload")
	ref, err := store.Store(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, ref, 64)

	got, err := store.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalStoreContentAddressing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref1, err := store.Store(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	ref2, err := store.Store(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	ref3, err := store.Store(context.Background(), []byte("other bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref3)
}

func TestLocalStoreDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ref, err := store.Store(context.Background(), []byte("original"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ref+".helper"), []byte("tampered"), 0o600))

	_, err = store.Retrieve(context.Background(), ref)
	assert.Error(t, err)
}

func TestLocalStoreMissingReference(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Retrieve(context.Background(), "deadbeef")
	assert.Error(t, err)
}
