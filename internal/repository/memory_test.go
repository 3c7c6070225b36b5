package repository

import (
	"context"
	"testing"
	"time"

	"PlaceAtlas/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func place(id, name string, updatedAt time.Time) *model.PlaceRecord {
	return &model.PlaceRecord{
		ExternalID: id,
		Source:     model.SourceGeoScout,
		Name:       name,
		Latitude:   41.72,
		Longitude:  1.82,
		Country:    "Spain",
		City:       "Manresa",
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
}

func TestMemoryUpsertPreservesIdentity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := place("P1", "La Morera", t0)
	created, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	update := place("P1", "La Morera del Mig", t0.Add(time.Hour))
	created, err = store.Upsert(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, update.ID)
	assert.Equal(t, t0, update.CreatedAt, "creation time survives updates")

	got, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "La Morera del Mig", got.Name)
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := place("P1", "La Morera", time.Now())
	rec.Tags = map[string][]string{"style": {"Art Nouveau"}}
	_, err := store.Upsert(ctx, rec)
	require.NoError(t, err)

	got, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	got.Name = "scribbled"
	got.Tags["style"][0] = "scribbled"

	fresh, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "La Morera", fresh.Name)
	assert.Equal(t, []string{"Art Nouveau"}, fresh.Tags["style"])
}

func TestSortRecordsTieBreak(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []*model.PlaceRecord{
		place("B", "Same", at),
		place("C", "Same", at.Add(time.Minute)),
		place("A", "Same", at),
	}
	SortRecords(recs, OrderUpdatedDesc)
	assert.Equal(t, "C", recs[0].ExternalID)
	assert.Equal(t, "A", recs[1].ExternalID)
	assert.Equal(t, "B", recs[2].ExternalID)

	SortRecords(recs, OrderNameAsc)
	assert.Equal(t, []string{"A", "B", "C"}, []string{recs[0].ExternalID, recs[1].ExternalID, recs[2].ExternalID})
}

func TestMemoryScanChunkStableOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"P3", "P1", "P2"} {
		_, err := store.Upsert(ctx, place(id, id, time.Now()))
		require.NoError(t, err)
	}

	first, err := store.ScanChunk(ctx, ListFilter{}, 0, 2)
	require.NoError(t, err)
	rest, err := store.ScanChunk(ctx, ListFilter{}, 2, 2)
	require.NoError(t, err)
	// Chunks follow insertion (id) order, so a paged walk sees every record
	// exactly once.
	require.Len(t, first, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "P3", first[0].ExternalID)
	assert.Equal(t, "P1", first[1].ExternalID)
	assert.Equal(t, "P2", rest[0].ExternalID)

	empty, err := store.ScanChunk(ctx, ListFilter{}, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryFindNearby(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	center := place("A1", "La Morera", time.Now())
	_, err := store.Upsert(ctx, center)
	require.NoError(t, err)

	near := place("B7", "La Morera", time.Now())
	near.Latitude = 41.72027 // roughly 30 m north
	_, err = store.Upsert(ctx, near)
	require.NoError(t, err)

	far := place("C9", "La Morera", time.Now())
	far.Latitude = 41.738
	_, err = store.Upsert(ctx, far)
	require.NoError(t, err)

	got, err := store.FindNearby(ctx, center.Latitude, center.Longitude, 50, "A1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B7", got[0].ExternalID)
}

func TestMemoryCategoryFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	structured := place("S1", "Viewpoint", time.Now())
	structured.CategorySlug = "landmark"
	_, err := store.Upsert(ctx, structured)
	require.NoError(t, err)

	legacy := place("L1", "Town Hall", time.Now())
	legacy.CategoryLegacy = "Architecture"
	legacy.CategorySlug = "architecture"
	_, err = store.Upsert(ctx, legacy)
	require.NoError(t, err)

	n, err := store.Count(ctx, ListFilter{CategorySlug: "landmark", CategoryLegacy: "Landmark"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.Count(ctx, ListFilter{CategorySlug: "nonexistent", CategoryLegacy: "ARCHITECTURE"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "legacy string matches case-insensitively")
}
