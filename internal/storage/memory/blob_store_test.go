package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/out.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://path/out.json", uri)

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "path/out.json")
	require.NoError(t, err)
	require.Equal(t, "content", string(got))
	require.Equal(t, 1, store.Puts("path/out.json"))
}

func TestBlobStoreGetMissingAndDelete(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.GetObject(ctx, "nope")
	require.ErrorIs(t, err, catalog.ErrObjectNotFound)

	_, err = store.PutObject(ctx, "x", "", bytes.NewReader([]byte("1")))
	require.NoError(t, err)
	require.NoError(t, store.DeleteObject(ctx, "x"))
	_, err = store.GetObject(ctx, "x")
	require.ErrorIs(t, err, catalog.ErrObjectNotFound)
}
