package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/model"
)

// memoryStore is an in-process PlaceStore with the same filter and ordering
// semantics as the Postgres repository. Used by tests and embeddable runs.
type memoryStore struct {
	mu     sync.RWMutex
	seq    uint64
	byID   map[string]int
	places []*model.PlaceRecord // insertion order, mirrors id ASC
}

// NewMemoryStore creates an empty in-memory PlaceStore.
func NewMemoryStore() PlaceStore {
	return &memoryStore{byID: make(map[string]int)}
}

func matches(rec *model.PlaceRecord, f ListFilter) bool {
	if f.Country != "" && !strings.EqualFold(rec.Country, f.Country) {
		return false
	}
	if f.City != "" && !strings.EqualFold(rec.City, f.City) {
		return false
	}
	if f.hasCategory() {
		slugHit := f.CategorySlug != "" && rec.CategorySlug == f.CategorySlug
		legacyHit := f.CategoryLegacy != "" && rec.CategoryLegacy != "" && strings.EqualFold(rec.CategoryLegacy, f.CategoryLegacy)
		if !slugHit && !legacyHit {
			return false
		}
	}
	return true
}

func (s *memoryStore) GetByExternalID(ctx context.Context, externalID string) (*model.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: place %s", catalog.ErrNotFound, externalID)
	}
	return s.places[idx].Clone(), nil
}

func (s *memoryStore) Upsert(ctx context.Context, rec *model.PlaceRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := rec.Clone()
	if idx, ok := s.byID[rec.ExternalID]; ok {
		stored.ID = s.places[idx].ID
		stored.CreatedAt = s.places[idx].CreatedAt
		s.places[idx] = stored
		rec.ID = stored.ID
		rec.CreatedAt = stored.CreatedAt
		return false, nil
	}
	s.seq++
	stored.ID = s.seq
	s.byID[rec.ExternalID] = len(s.places)
	s.places = append(s.places, stored)
	rec.ID = stored.ID
	return true, nil
}

func (s *memoryStore) filtered(f ListFilter) []*model.PlaceRecord {
	var out []*model.PlaceRecord
	for _, rec := range s.places {
		if matches(rec, f) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *memoryStore) Count(ctx context.Context, f ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filtered(f))), nil
}

func (s *memoryStore) ListPage(ctx context.Context, f ListFilter, order Order, offset, limit int) ([]*model.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	recs := s.filtered(f)
	s.mu.RUnlock()

	SortRecords(recs, order)
	return clonePage(recs, offset, limit), nil
}

func (s *memoryStore) ScanChunk(ctx context.Context, f ListFilter, offset, limit int) ([]*model.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePage(s.filtered(f), offset, limit), nil
}

func (s *memoryStore) FindNearby(ctx context.Context, lat, lng, radiusM float64, excludeExternalID string) ([]*model.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PlaceRecord
	for _, rec := range s.places {
		if rec.ExternalID == excludeExternalID || !rec.HasCoordinates() {
			continue
		}
		if catalog.HaversineMeters(lat, lng, rec.Latitude, rec.Longitude) <= radiusM {
			out = append(out, rec.Clone())
			if len(out) == 25 {
				break
			}
		}
	}
	return out, nil
}

func clonePage(recs []*model.PlaceRecord, offset, limit int) []*model.PlaceRecord {
	if offset >= len(recs) {
		return nil
	}
	end := len(recs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*model.PlaceRecord, 0, end-offset)
	for _, rec := range recs[offset:end] {
		out = append(out, rec.Clone())
	}
	return out
}
