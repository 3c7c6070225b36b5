package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/interfaces"
	"PlaceAtlas/internal/model"
	"PlaceAtlas/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu        sync.Mutex
	source    model.SourceType
	responses map[string]*model.RawPlaceAttributes
	errSeq    map[string][]error
	calls     map[string]int
}

func newFakeAdapter(source model.SourceType) *fakeAdapter {
	return &fakeAdapter{
		source:    source,
		responses: make(map[string]*model.RawPlaceAttributes),
		errSeq:    make(map[string][]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeAdapter) Name() string             { return string(f.source) }
func (f *fakeAdapter) Source() model.SourceType { return f.source }

func (f *fakeAdapter) FetchByExternalID(_ context.Context, id string) (*model.RawPlaceAttributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if seq := f.errSeq[id]; len(seq) > 0 {
		err := seq[0]
		f.errSeq[id] = seq[1:]
		return nil, err
	}
	raw, ok := f.responses[id]
	if !ok {
		return nil, fmt.Errorf("%w: place %s", catalog.ErrNotFound, id)
	}
	return raw, nil
}

type fakeResolver struct {
	adapters map[model.SourceType]interfaces.ProviderAdapter
}

func (f *fakeResolver) GetAdapter(source model.SourceType) (interfaces.ProviderAdapter, error) {
	a, ok := f.adapters[source]
	if !ok {
		return nil, fmt.Errorf("provider %s has no initialized adapter", source)
	}
	return a, nil
}

type staleCounter struct{ n atomic.Int64 }

func (s *staleCounter) MarkStale() { s.n.Add(1) }

func testConfig() *config.Config {
	return &config.Config{
		Catalog: config.CatalogConfig{DuplicateRadiusM: 50},
		Providers: map[string]config.ProviderConfig{
			"geoscout": {RetryCount: 2, BackoffBaseMS: 1},
		},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestIngestor(t *testing.T, fa *fakeAdapter) (*Ingestor, repository.PlaceStore, *staleCounter) {
	t.Helper()
	store := repository.NewMemoryStore()
	stale := &staleCounter{}
	resolver := &fakeResolver{adapters: map[model.SourceType]interfaces.ProviderAdapter{}}
	if fa != nil {
		resolver.adapters[fa.source] = fa
	}
	return NewIngestor(store, resolver, stale, testConfig(), quietLogger()), store, stale
}

func rawPlace(id, name string, lat, lng float64) *model.RawPlaceAttributes {
	return &model.RawPlaceAttributes{
		ExternalID:     id,
		Source:         model.SourceGeoScout,
		Name:           name,
		Latitude:       lat,
		Longitude:      lng,
		Country:        "Spain",
		City:           "Manresa",
		Rating:         4.2,
		CategoryLegacy: "Architecture",
	}
}

func TestIngestCreateThenIdempotent(t *testing.T) {
	ing, store, stale := newTestIngestor(t, nil)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, rawPlace("P1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)
	assert.EqualValues(t, 1, stale.n.Load())

	// Re-ingesting identical input changes nothing and marks nothing stale.
	res, err = ing.Ingest(ctx, rawPlace("P1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)
	assert.EqualValues(t, 1, stale.n.Load())

	rec, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "La Morera", rec.Name)
}

func TestIngestMergeKeepsPopulatedFields(t *testing.T) {
	ing, store, _ := newTestIngestor(t, nil)
	ctx := context.Background()

	first := rawPlace("P1", "La Morera", 41.72, 1.82)
	first.Images = []string{"https://img.example/1.jpg"}
	_, err := ing.Ingest(ctx, first)
	require.NoError(t, err)

	update := rawPlace("P1", "La Morera", 41.72, 1.82)
	update.Rating = 0
	update.Images = nil
	_, err = ing.Ingest(ctx, update)
	require.NoError(t, err)

	rec, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 4.2, rec.Rating)
	assert.Equal(t, []string{"https://img.example/1.jpg"}, rec.Images)
}

func TestIngestMalformedInput(t *testing.T) {
	ing, _, stale := newTestIngestor(t, nil)
	raw := rawPlace("P1", "La Morera", 0, 0)
	_, err := ing.Ingest(context.Background(), raw)
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
	assert.EqualValues(t, 0, stale.n.Load())
}

func TestIngestDuplicateAdvisory(t *testing.T) {
	ing, store, _ := newTestIngestor(t, nil)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, rawPlace("A1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)

	// Same name ~30m north under a different provider id.
	other := rawPlace("B7", "La Morera", 41.72027, 1.82)
	other.Source = model.SourceCityIndex
	res, err := ing.Ingest(ctx, other)
	require.NoError(t, err)

	require.NotNil(t, res.Duplicate)
	assert.Equal(t, "B7", res.Duplicate.ExternalID)
	assert.Equal(t, "A1", res.Duplicate.OtherExternalID)
	assert.InDelta(t, 30, res.Duplicate.DistanceMeters, 10)

	// Advisory only: both records exist, nothing was merged.
	_, err = store.GetByExternalID(ctx, "A1")
	require.NoError(t, err)
	_, err = store.GetByExternalID(ctx, "B7")
	require.NoError(t, err)
}

func TestIngestNoAdvisoryForDistantPlaces(t *testing.T) {
	ing, _, _ := newTestIngestor(t, nil)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, rawPlace("A1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)

	// Same name, 2km away: not a duplicate candidate.
	res, err := ing.Ingest(ctx, rawPlace("B7", "La Morera", 41.738, 1.82))
	require.NoError(t, err)
	assert.Nil(t, res.Duplicate)
}

func TestIngestBatchPartialSuccess(t *testing.T) {
	fa := newFakeAdapter(model.SourceGeoScout)
	fa.responses["ok"] = rawPlace("ok", "Casa Batlló", 41.3917, 2.165)
	fa.responses["flaky"] = rawPlace("flaky", "Sagrada Família", 41.4036, 2.1744)
	fa.errSeq["flaky"] = []error{
		fmt.Errorf("%w: 429", catalog.ErrTransientProvider),
		fmt.Errorf("%w: timeout", catalog.ErrTransientProvider),
	}
	fa.responses["nocoords"] = rawPlace("nocoords", "Ghost Place", 0, 0)

	ing, store, _ := newTestIngestor(t, fa)
	report := ing.IngestBatch(context.Background(), model.SourceGeoScout, []string{"ok", "flaky", "missing", "nocoords"})

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.NotEmpty(t, report.BatchID)
	require.Len(t, report.Items, 4)

	byID := make(map[string]BatchItem)
	for _, item := range report.Items {
		byID[item.ExternalID] = item
	}
	assert.Equal(t, "created", byID["ok"].Status)
	assert.Equal(t, "created", byID["flaky"].Status)
	assert.Equal(t, "failed", byID["missing"].Status)
	assert.Equal(t, "failed", byID["nocoords"].Status)

	// Transient failures were retried until success.
	assert.Equal(t, 3, fa.calls["flaky"])
	// Permanent failures are not retried.
	assert.Equal(t, 1, fa.calls["missing"])

	// Failing siblings did not block the good items.
	_, err := store.GetByExternalID(context.Background(), "flaky")
	require.NoError(t, err)
}

func TestIngestBatchTransientExhausted(t *testing.T) {
	fa := newFakeAdapter(model.SourceGeoScout)
	fa.errSeq["down"] = []error{
		fmt.Errorf("%w: 503", catalog.ErrTransientProvider),
		fmt.Errorf("%w: 503", catalog.ErrTransientProvider),
		fmt.Errorf("%w: 503", catalog.ErrTransientProvider),
	}

	ing, _, _ := newTestIngestor(t, fa)
	report := ing.IngestBatch(context.Background(), model.SourceGeoScout, []string{"down"})

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items, 1)
	assert.Contains(t, report.Items[0].Error, "ingest failed")
	// retry_count=2 bounds the attempts at 3.
	assert.Equal(t, 3, fa.calls["down"])
}

func TestIngestBatchUnknownProvider(t *testing.T) {
	ing, _, _ := newTestIngestor(t, nil)
	report := ing.IngestBatch(context.Background(), model.SourceCityIndex, []string{"X1", "X2"})
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Succeeded)
}

func TestApplyManualEdit(t *testing.T) {
	ing, store, stale := newTestIngestor(t, nil)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, rawPlace("P1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)
	marksBefore := stale.n.Load()

	rec, err := ing.ApplyManualEdit(ctx, "P1", &ManualEdit{
		CategorySlug:    "landmark",
		CategoryDisplay: map[string]string{"en": "Landmark"},
		Tags:            map[string][]string{"style": {"Art Nouveau"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, rec.Source)
	assert.Equal(t, "landmark", rec.CategorySlug)
	assert.Equal(t, []string{"Art Nouveau"}, rec.Tags["style"])
	// Original legacy category survives the correction.
	assert.Equal(t, "Architecture", rec.CategoryLegacy)
	assert.Greater(t, stale.n.Load(), marksBefore)

	// A later automated re-ingestion must not revert the manual correction.
	_, err = ing.Ingest(ctx, rawPlace("P1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)
	rec, err = store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, rec.Source)
	assert.Equal(t, []string{"Art Nouveau"}, rec.Tags["style"])
}

func TestApplyManualEditUnknownID(t *testing.T) {
	ing, _, _ := newTestIngestor(t, nil)
	_, err := ing.ApplyManualEdit(context.Background(), "nope", &ManualEdit{CategorySlug: "cafe"})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestIngestConcurrentSameID(t *testing.T) {
	ing, store, _ := newTestIngestor(t, nil)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, rawPlace("P1", "La Morera", 41.72, 1.82))
	require.NoError(t, err)

	// Concurrent ingestion of the same id must serialize so every appended
	// tag survives the read-modify-write.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := rawPlace("P1", "La Morera", 41.72, 1.82)
			raw.Tags = map[string][]string{"theme": {fmt.Sprintf("theme-%d", i)}}
			_, err := ing.Ingest(ctx, raw)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := store.GetByExternalID(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, rec.Tags["theme"], 10)
}
