package repository

import (
	"context"
	"sort"

	"PlaceAtlas/internal/model"
)

// ListFilter carries the equality-indexable filter dimensions. Category
// matches by canonical slug OR by case-insensitive legacy string; the query
// engine fills both fields from the single user-supplied value.
type ListFilter struct {
	Country        string
	City           string
	CategorySlug   string
	CategoryLegacy string
}

func (f ListFilter) hasCategory() bool {
	return f.CategorySlug != "" || f.CategoryLegacy != ""
}

// Order is the result ordering of a paged listing.
type Order int

const (
	// OrderUpdatedDesc is most recently touched first, external_id ascending
	// on equal timestamps.
	OrderUpdatedDesc Order = iota
	// OrderNameAsc is name ascending, external_id ascending on equal names.
	OrderNameAsc
)

// SortRecords orders records in place per the given ordering, falling back
// to external id ascending on equal keys so repeated queries against an
// unchanged store are deterministic.
func SortRecords(recs []*model.PlaceRecord, order Order) {
	sort.SliceStable(recs, func(i, j int) bool {
		if order == OrderNameAsc {
			if recs[i].Name != recs[j].Name {
				return recs[i].Name < recs[j].Name
			}
		} else if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
		}
		return recs[i].ExternalID < recs[j].ExternalID
	})
}

// PlaceStore is the record store behind the ingestor, filter engine and
// facet index. The gorm/Postgres implementation backs production; the
// in-memory implementation carries identical semantics for tests and
// embedded use.
type PlaceStore interface {
	// GetByExternalID returns the record or catalog.ErrNotFound.
	GetByExternalID(ctx context.Context, externalID string) (*model.PlaceRecord, error)
	// Upsert commits the full record transactionally, keyed by external_id.
	// Partial field writes are never observable. Reports whether the record
	// was created.
	Upsert(ctx context.Context, rec *model.PlaceRecord) (bool, error)
	// Count returns the number of records matching the equality filter.
	Count(ctx context.Context, f ListFilter) (int64, error)
	// ListPage returns one ordered page of records matching the filter.
	ListPage(ctx context.Context, f ListFilter, order Order, offset, limit int) ([]*model.PlaceRecord, error)
	// ScanChunk returns records matching the filter in stable insertion
	// order, for chunked bounded scans.
	ScanChunk(ctx context.Context, f ListFilter, offset, limit int) ([]*model.PlaceRecord, error)
	// FindNearby returns coarse bounding-box candidates around a coordinate,
	// excluding the given external id. Exact distance is the caller's job.
	FindNearby(ctx context.Context, lat, lng, radiusM float64, excludeExternalID string) ([]*model.PlaceRecord, error)
}
