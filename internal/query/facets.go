package query

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/model"
	"PlaceAtlas/internal/repository"

	"github.com/sirupsen/logrus"
)

// FacetOption is one selectable filter value with the number of records it
// would yield. For categories Value is the canonical slug.
type FacetOption struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	Count   int64  `json:"count"`
}

// Facets lists the filter options meaningful under a base filter. Each
// dimension's counts are computed over the records matching every base
// filter except that dimension (drill-down consistency), so a selected
// category still shows accurate counts for its sibling categories.
type Facets struct {
	Categories  []FacetOption `json:"categories"`
	Tags        []FacetOption `json:"tags"`
	Countries   []FacetOption `json:"countries"`
	Cities      []FacetOption `json:"cities"`
	Approximate bool          `json:"approximate"`
}

// facetRow is the per-record projection the index cross-tabulates.
type facetRow struct {
	externalID string
	country    string
	city       string
	catSlug    string
	catDisplay string
	catLegacy  string
	nameLower  string
	tagValues  []string // original casing
	tagLower   []string
}

type facetSnapshot struct {
	epoch       int64
	rows        []facetRow
	approximate bool
}

// FacetIndex caches a consistent cross-tabulation snapshot keyed by an epoch
// counter. Writers bump the epoch (monotonic stale mark); the first read
// after a stale mark rebuilds lazily via a bounded full scan, and readers
// always observe one snapshot — it is never mutated in place.
type FacetIndex struct {
	store  repository.PlaceStore
	cfg    config.CatalogConfig
	logger *logrus.Logger

	epoch     atomic.Int64
	rebuildMu sync.Mutex
	snap      atomic.Pointer[facetSnapshot]
}

func NewFacetIndex(store repository.PlaceStore, cfg config.CatalogConfig, logger *logrus.Logger) *FacetIndex {
	if cfg.ScanCeiling <= 0 {
		cfg.ScanCeiling = 15000
	}
	if cfg.ScanChunkSize <= 0 {
		cfg.ScanChunkSize = 500
	}
	return &FacetIndex{store: store, cfg: cfg, logger: logger}
}

// MarkStale records that at least one write happened since the last rebuild.
// Safe under concurrent writers.
func (x *FacetIndex) MarkStale() {
	x.epoch.Add(1)
}

// FacetsFor computes the facet counts for a base filter against the current
// snapshot, rebuilding it first if any write landed since the last rebuild.
func (x *FacetIndex) FacetsFor(ctx context.Context, base Filter) (*Facets, error) {
	snap, err := x.current(ctx)
	if err != nil {
		return nil, err
	}

	out := &Facets{Approximate: snap.approximate}
	out.Categories = x.tabulate(snap.rows, base, "category", func(row *facetRow) []FacetOption {
		if row.catSlug == "" {
			return nil
		}
		return []FacetOption{{Value: row.catSlug, Display: row.catDisplay}}
	})
	out.Tags = x.tabulate(snap.rows, base, "tag", func(row *facetRow) []FacetOption {
		opts := make([]FacetOption, 0, len(row.tagValues))
		for _, v := range row.tagValues {
			opts = append(opts, FacetOption{Value: v})
		}
		return opts
	})
	out.Countries = x.tabulate(snap.rows, base, "country", func(row *facetRow) []FacetOption {
		if row.country == "" {
			return nil
		}
		return []FacetOption{{Value: row.country}}
	})
	out.Cities = x.tabulate(snap.rows, base, "city", func(row *facetRow) []FacetOption {
		if row.city == "" {
			return nil
		}
		return []FacetOption{{Value: row.city}}
	})
	return out, nil
}

// tabulate counts option occurrences over the rows matching base with the
// listed dimension excluded. A row contributes at most once per distinct
// option value.
func (x *FacetIndex) tabulate(rows []facetRow, base Filter, exclude string, project func(*facetRow) []FacetOption) []FacetOption {
	counts := make(map[string]*FacetOption)
	for i := range rows {
		row := &rows[i]
		if !rowMatches(row, base, exclude) {
			continue
		}
		seen := make(map[string]bool)
		for _, opt := range project(row) {
			key := strings.ToLower(opt.Value)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if have, ok := counts[key]; ok {
				have.Count++
			} else {
				opt.Count = 1
				counts[key] = &opt
			}
		}
	}

	out := make([]FacetOption, 0, len(counts))
	for _, opt := range counts {
		out = append(out, *opt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func rowMatches(row *facetRow, f Filter, exclude string) bool {
	if exclude != "country" && f.Country != "" && !strings.EqualFold(row.country, f.Country) {
		return false
	}
	if exclude != "city" && f.City != "" && !strings.EqualFold(row.city, f.City) {
		return false
	}
	if exclude != "category" && f.Category != "" {
		slugHit := row.catSlug != "" && row.catSlug == catalog.Slugify(f.Category)
		legacyHit := row.catLegacy != "" && strings.EqualFold(row.catLegacy, f.Category)
		if !slugHit && !legacyHit {
			return false
		}
	}
	if exclude != "tag" && f.Tag != "" {
		needle := strings.ToLower(f.Tag)
		found := false
		for _, v := range row.tagLower {
			if strings.Contains(v, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Name != "" && !strings.Contains(row.nameLower, strings.ToLower(f.Name)) {
		return false
	}
	return true
}

// current returns the snapshot for the present epoch, rebuilding at most
// once per stale mark.
func (x *FacetIndex) current(ctx context.Context) (*facetSnapshot, error) {
	epoch := x.epoch.Load()
	if snap := x.snap.Load(); snap != nil && snap.epoch == epoch {
		return snap, nil
	}

	x.rebuildMu.Lock()
	defer x.rebuildMu.Unlock()
	// Another reader may have rebuilt while this one waited.
	epoch = x.epoch.Load()
	if snap := x.snap.Load(); snap != nil && snap.epoch == epoch {
		return snap, nil
	}
	snap, err := x.rebuild(ctx, epoch)
	if err != nil {
		return nil, err
	}
	x.snap.Store(snap)
	return snap, nil
}

// rebuild full-scans the store (bounded by the scan ceiling) and projects
// every record into a facet row.
func (x *FacetIndex) rebuild(ctx context.Context, epoch int64) (*facetSnapshot, error) {
	snap := &facetSnapshot{epoch: epoch}
	scanned := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		limit := x.cfg.ScanChunkSize
		if scanned+limit > x.cfg.ScanCeiling {
			limit = x.cfg.ScanCeiling - scanned
		}
		if limit <= 0 {
			break
		}
		chunk, err := x.store.ScanChunk(ctx, repository.ListFilter{}, scanned, limit)
		if err != nil {
			return nil, err
		}
		for _, rec := range chunk {
			snap.rows = append(snap.rows, projectRecord(rec))
		}
		scanned += len(chunk)
		if len(chunk) < limit {
			x.logger.WithField("records", scanned).Debug("facet snapshot rebuilt")
			return snap, nil
		}
	}

	// Ceiling reached: counts may be clipped. Flag it rather than silently
	// undercounting.
	if total, err := x.store.Count(ctx, repository.ListFilter{}); err == nil {
		snap.approximate = total > int64(scanned)
	} else {
		snap.approximate = true
	}
	return snap, nil
}

func projectRecord(rec *model.PlaceRecord) facetRow {
	slug, display := catalog.CanonicalCategory(rec)
	row := facetRow{
		externalID: rec.ExternalID,
		country:    rec.Country,
		city:       rec.City,
		catSlug:    slug,
		catDisplay: display,
		catLegacy:  rec.CategoryLegacy,
		nameLower:  strings.ToLower(rec.Name),
		tagValues:  rec.AllTagValues(),
	}
	row.tagLower = make([]string, len(row.tagValues))
	for i, v := range row.tagValues {
		row.tagLower[i] = strings.ToLower(v)
	}
	return row
}
