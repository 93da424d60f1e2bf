package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicgraph/domain/core/aggregates"
	pkgerrors "topicgraph/pkg/errors"
)

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	registry := aggregates.NewTopicRegistry()
	_, err = registry.AddTopic("machine learning", true)
	require.NoError(t, err)
	saved := registry.Snapshot(map[string][]string{"machine learning": {"neural"}})

	require.NoError(t, store.Save(ctx, saved, 0))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"machine learning"}, loaded.CoreTopics)
	assert.Equal(t, map[string][]string{"machine learning": {"neural"}}, loaded.Seeds)

	// The stored copy is isolated from later mutation
	loaded.CoreTopics = nil
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"machine learning"}, again.CoreTopics)
}

func TestSnapshotStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, aggregates.NewTopicRegistry().Snapshot(nil), time.Hour))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap)

	now = now.Add(2 * time.Hour)
	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_NilSnapshot(t *testing.T) {
	err := NewSnapshotStore().Save(context.Background(), nil, 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
