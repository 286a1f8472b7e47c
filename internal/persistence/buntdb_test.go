package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/persistence"
)

func TestRecordSaveLoadDeleteRoundTrip(t *testing.T) {
	store, err := persistence.NewDefault(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, "p1", "r1", []byte("payload")))

	blob, ok, err := store.LoadRecord(ctx, "p1", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), blob)

	require.NoError(t, store.DeleteRecord(ctx, "p1", "r1"))
	_, ok, err = store.LoadRecord(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRecordOnMissingKeyIsNotAnError(t *testing.T) {
	store, err := persistence.NewDefault(":memory:")
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.DeleteRecord(context.Background(), "p1", "never-stored"))
}

func TestListIDsReturnsOnlyThatProcessorsRecords(t *testing.T) {
	store, err := persistence.NewDefault(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, "p1", "a", []byte("1")))
	require.NoError(t, store.SaveRecord(ctx, "p1", "b", []byte("2")))
	require.NoError(t, store.SaveRecord(ctx, "p2", "c", []byte("3")))

	ids, err := store.ListIDs(ctx, "p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	store, err := persistence.NewDefault(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveIndex(ctx, "p1", "email", []byte("idx-blob")))

	blob, ok, err := store.LoadIndex(ctx, "p1", "email")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("idx-blob"), blob)

	_, ok, err = store.LoadIndex(ctx, "p1", "never-saved")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchSaveLoadRoundTrip(t *testing.T) {
	store, err := persistence.NewDefault(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveBatch(ctx, "p1", "b1", []byte("batch-blob")))

	blob, ok, err := store.LoadBatch(ctx, "p1", "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("batch-blob"), blob)
}
