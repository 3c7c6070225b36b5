package query

import (
	"context"
	"fmt"
	"strings"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/model"
	"PlaceAtlas/internal/repository"

	"github.com/sirupsen/logrus"
)

// Filter is a conjunction of at most one value per dimension. Category
// matches by slug or legacy string (case-insensitive equality); tag and name
// match by case-insensitive substring containment.
type Filter struct {
	Country  string `form:"country" json:"country,omitempty"`
	City     string `form:"city" json:"city,omitempty"`
	Category string `form:"category" json:"category,omitempty"`
	Tag      string `form:"tag" json:"tag,omitempty"`
	Name     string `form:"q" json:"name,omitempty"`
}

func (f Filter) listFilter() repository.ListFilter {
	lf := repository.ListFilter{Country: f.Country, City: f.City}
	if f.Category != "" {
		lf.CategorySlug = catalog.Slugify(f.Category)
		lf.CategoryLegacy = f.Category
	}
	return lf
}

// needsScan reports whether the filter requires the bounded full-scan path.
// Tag data is heterogeneous (dimensioned maps plus legacy lists), so tag and
// free-text filters cannot use an equality index.
func (f Filter) needsScan() bool {
	return f.Tag != "" || f.Name != ""
}

// QueryResult is one page plus the post-filter total. Approximate reports
// that the bounded scan hit its ceiling, so Total may undercount.
type QueryResult struct {
	Items       []*model.PlaceRecord `json:"items"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"page_size"`
	Approximate bool                 `json:"approximate"`
}

// Engine answers paged, filtered catalog queries.
type Engine struct {
	store  repository.PlaceStore
	cfg    config.CatalogConfig
	logger *logrus.Logger
}

func NewEngine(store repository.PlaceStore, cfg config.CatalogConfig, logger *logrus.Logger) *Engine {
	if cfg.ScanCeiling <= 0 {
		cfg.ScanCeiling = 15000
	}
	if cfg.ScanChunkSize <= 0 {
		cfg.ScanChunkSize = 500
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Query validates pagination before any scan begins, then either pages
// directly off equality lookups or runs the bounded scan. Out-of-range pages
// return empty items with the correct total, never an error. Ordering is
// stable: equal sort keys fall back to external id ascending.
func (e *Engine) Query(ctx context.Context, f Filter, page, pageSize int, order repository.Order) (*QueryResult, error) {
	if page <= 0 {
		return nil, fmt.Errorf("%w: page must be >= 1", catalog.ErrInvalidQuery)
	}
	if pageSize <= 0 || pageSize > e.cfg.MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be 1..%d", catalog.ErrInvalidQuery, e.cfg.MaxPageSize)
	}

	lf := f.listFilter()
	if !f.needsScan() {
		total, err := e.store.Count(ctx, lf)
		if err != nil {
			return nil, err
		}
		items, err := e.store.ListPage(ctx, lf, order, (page-1)*pageSize, pageSize)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []*model.PlaceRecord{}
		}
		return &QueryResult{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
	}

	matched, approximate, err := e.boundedScan(ctx, lf, func(rec *model.PlaceRecord) bool {
		return matchesScanFilter(rec, f)
	})
	if err != nil {
		return nil, err
	}
	repository.SortRecords(matched, order)

	total := int64(len(matched))
	start := (page - 1) * pageSize
	items := []*model.PlaceRecord{}
	if start < len(matched) {
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		items = matched[start:end]
	}
	return &QueryResult{Items: items, Total: total, Page: page, PageSize: pageSize, Approximate: approximate}, nil
}

// boundedScan walks the store in chunks, applying pred in memory. The
// working set is capped by the configured ceiling so latency stays bounded
// as the store grows; cancellation is checked between chunks so an
// abandoned caller does not keep the scan running.
func (e *Engine) boundedScan(ctx context.Context, lf repository.ListFilter, pred func(*model.PlaceRecord) bool) ([]*model.PlaceRecord, bool, error) {
	var matched []*model.PlaceRecord
	scanned := 0
	ceilingHit := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		limit := e.cfg.ScanChunkSize
		if scanned+limit > e.cfg.ScanCeiling {
			limit = e.cfg.ScanCeiling - scanned
		}
		if limit <= 0 {
			ceilingHit = true
			break
		}
		chunk, err := e.store.ScanChunk(ctx, lf, scanned, limit)
		if err != nil {
			return nil, false, err
		}
		for _, rec := range chunk {
			if pred(rec) {
				matched = append(matched, rec)
			}
		}
		scanned += len(chunk)
		if len(chunk) < limit {
			return matched, false, nil
		}
	}

	// Ceiling reached: only report approximation when rows actually remain.
	approximate := ceilingHit
	if ceilingHit {
		total, err := e.store.Count(ctx, lf)
		if err == nil {
			approximate = total > int64(scanned)
		}
	}
	return matched, approximate, nil
}

func matchesScanFilter(rec *model.PlaceRecord, f Filter) bool {
	if f.Tag != "" {
		needle := strings.ToLower(f.Tag)
		found := false
		for _, v := range rec.AllTagValues() {
			if strings.Contains(strings.ToLower(v), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(f.Name)) {
		return false
	}
	return true
}
