package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/crowdews/internal/adapters/repository"
	"github.com/okian/crowdews/internal/domain/model"
)

func openInMemory(t *testing.T) *repository.BadgerStore {
	t.Helper()
	s, err := repository.OpenBadgerStore(repository.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := repository.OpenBadgerStore(repository.BadgerConfig{})
	require.Error(t, err)
}

func TestBadgerStore_OrderingAcrossZones(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	// appended out of time order on purpose; reads follow timestamps
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, s.Append(ctx, rec("ghat-1", i)))
	}
	require.NoError(t, s.Append(ctx, rec("ghat-10", 9)))
	require.NoError(t, s.Append(ctx, rec("ghat-2", 0)))

	latest, err := s.Latest(ctx, "ghat-1")
	require.NoError(t, err)
	assert.Equal(t, "ghat-1-4", latest.ID)
	assert.Equal(t, model.Yellow, latest.Alert)
	assert.True(t, latest.Timestamp.Equal(base.Add(20*time.Minute)))

	recent, err := s.Recent(ctx, "ghat-1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"ghat-1-2", "ghat-1-3", "ghat-1-4"}, []string{recent[0].ID, recent[1].ID, recent[2].ID})

	all, err := s.Recent(ctx, "ghat-1", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	zones, err := s.Zones(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghat-1", "ghat-10", "ghat-2"}, zones)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestBadgerStore_SameTimestampKeepsBoth(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	a, b := rec("ghat-1", 0), rec("ghat-1", 0)
	a.ID, b.ID = "first", "second"
	require.NoError(t, s.Append(ctx, a))
	require.NoError(t, s.Append(ctx, b))

	recent, err := s.Recent(ctx, "ghat-1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "first", recent[0].ID)
	assert.Equal(t, "second", recent[1].ID)
}

func TestBadgerStore_PreEpochTimestampsSortFirst(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	old := rec("ghat-1", 0)
	old.ID = "old"
	old.Timestamp = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, rec("ghat-1", 0)))
	require.NoError(t, s.Append(ctx, old))

	latest, err := s.Latest(ctx, "ghat-1")
	require.NoError(t, err)
	assert.Equal(t, "ghat-1-0", latest.ID)
}

func TestBadgerStore_MissingZone(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	_, err := s.Latest(ctx, "nowhere")
	require.ErrorIs(t, err, repository.ErrNotFound)

	recent, err := s.Recent(ctx, "nowhere", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	_, err = s.Recent(ctx, "nowhere", -1)
	require.ErrorIs(t, err, repository.ErrInvalidLimit)

	zones, err := s.Zones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestBadgerStore_Retention(t *testing.T) {
	ctx := context.Background()
	cfg := repository.InMemoryBadgerConfig()
	cfg.Retention = time.Second
	s, err := repository.OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, rec("ghat-1", 0)))
	_, err = s.Latest(ctx, "ghat-1")
	require.NoError(t, err)

	// badger TTLs have one-second resolution
	time.Sleep(2100 * time.Millisecond)

	_, err = s.Latest(ctx, "ghat-1")
	require.ErrorIs(t, err, repository.ErrNotFound)
	zones, err := s.Zones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := repository.DefaultBadgerConfig(t.TempDir())
	cfg.GCInterval = 0

	s, err := repository.OpenBadgerStore(cfg)
	require.NoError(t, err)
	r := rec("ghat-1", 2)
	r.Alert = model.Orange
	r.State = model.AlertState{Level: model.Orange, Down: 1}
	require.NoError(t, s.Append(ctx, r))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = repository.OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Latest(ctx, "ghat-1")
	require.NoError(t, err)
	assert.Equal(t, model.AlertState{Level: model.Orange, Down: 1}, got.State)

	require.ErrorIs(t, s.Append(ctx, rec("a/b", 0)), repository.ErrInvalidZone)
}
