package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/model"

	"gorm.io/gorm"
)

type placeRepository struct {
	db *gorm.DB
}

// NewPlaceRepository creates the Postgres-backed PlaceStore.
func NewPlaceRepository(db *gorm.DB) PlaceStore {
	return &placeRepository{db: db}
}

func (r *placeRepository) applyFilter(ctx context.Context, f ListFilter) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.PlaceRecord{})
	if f.Country != "" {
		db = db.Where("LOWER(country) = LOWER(?)", f.Country)
	}
	if f.City != "" {
		db = db.Where("LOWER(city) = LOWER(?)", f.City)
	}
	if f.hasCategory() {
		db = db.Where("category_slug = ? OR LOWER(category_legacy) = LOWER(?)", f.CategorySlug, f.CategoryLegacy)
	}
	return db
}

func (r *placeRepository) GetByExternalID(ctx context.Context, externalID string) (*model.PlaceRecord, error) {
	var rec model.PlaceRecord
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: place %s", catalog.ErrNotFound, externalID)
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert commits the record in one transaction so a concurrent reader never
// observes a partially written row.
func (r *placeRepository) Upsert(ctx context.Context, rec *model.PlaceRecord) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.PlaceRecord
		err := tx.Select("id", "created_at").Where("external_id = ?", rec.ExternalID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(rec).Error
		case err != nil:
			return err
		default:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			return tx.Save(rec).Error
		}
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *placeRepository) Count(ctx context.Context, f ListFilter) (int64, error) {
	var total int64
	if err := r.applyFilter(ctx, f).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *placeRepository) ListPage(ctx context.Context, f ListFilter, order Order, offset, limit int) ([]*model.PlaceRecord, error) {
	orderExpr := "updated_at DESC, external_id ASC"
	if order == OrderNameAsc {
		orderExpr = "name ASC, external_id ASC"
	}
	var recs []*model.PlaceRecord
	if err := r.applyFilter(ctx, f).
		Order(orderExpr).
		Offset(offset).
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *placeRepository) ScanChunk(ctx context.Context, f ListFilter, offset, limit int) ([]*model.PlaceRecord, error) {
	var recs []*model.PlaceRecord
	if err := r.applyFilter(ctx, f).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// FindNearby does a coarse bounding-box prefilter; the ingestor applies the
// exact haversine cut afterwards.
func (r *placeRepository) FindNearby(ctx context.Context, lat, lng, radiusM float64, excludeExternalID string) ([]*model.PlaceRecord, error) {
	latDelta := radiusM / 111320.0
	lngDelta := latDelta
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lngDelta = radiusM / (111320.0 * cos)
	}
	var recs []*model.PlaceRecord
	if err := r.db.WithContext(ctx).Model(&model.PlaceRecord{}).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
		Where("external_id <> ?", excludeExternalID).
		Limit(25).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
