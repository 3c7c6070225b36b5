package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/interfaces"
	"PlaceAtlas/internal/model"
	"PlaceAtlas/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Invalidator receives a stale mark after every committed write. The facet
// index implements it; marking is monotonic, so exact tracking is not
// needed under concurrent writers.
type Invalidator interface {
	MarkStale()
}

// AdapterResolver yields the provider adapter for a source. Satisfied by
// *adapter.ProviderRegistry.
type AdapterResolver interface {
	GetAdapter(source model.SourceType) (interfaces.ProviderAdapter, error)
}

// IngestResult is the outcome of a single-record ingestion.
type IngestResult struct {
	Record    *model.PlaceRecord         `json:"record,omitempty"`
	Created   bool                       `json:"created"`
	Changed   bool                       `json:"changed"`
	Duplicate *catalog.PossibleDuplicate `json:"possible_duplicate,omitempty"`
}

// BatchItem is the per-identifier outcome inside a batch report.
type BatchItem struct {
	ExternalID string                     `json:"external_id"`
	Status     string                     `json:"status"` // created/updated/unchanged/failed
	Error      string                     `json:"error,omitempty"`
	Duplicate  *catalog.PossibleDuplicate `json:"possible_duplicate,omitempty"`
}

// BatchReport lists every item of a batch; one failing item never aborts
// its siblings.
type BatchReport struct {
	BatchID   string      `json:"batch_id"`
	Provider  string      `json:"provider"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// ManualEdit is the admin-surface correction payload. It may only raise the
// record to manual provenance, append tag values and set category fields;
// it can never remove anything.
type ManualEdit struct {
	CategorySlug    string              `json:"category_slug,omitempty"`
	CategoryDisplay map[string]string   `json:"category_display,omitempty"`
	CategoryLegacy  string              `json:"category_legacy,omitempty"`
	Tags            map[string][]string `json:"tags,omitempty"`
	TagsLegacy      []model.LegacyTag   `json:"tags_legacy,omitempty"`
}

// Ingestor runs the fetch → normalize → upsert pipeline with per-id
// serialization and duplicate advisories.
type Ingestor struct {
	store       repository.PlaceStore
	providers   AdapterResolver
	invalidator Invalidator
	cfg         *config.Config
	logger      *logrus.Logger
	locks       *keyedLocks
}

func NewIngestor(store repository.PlaceStore, providers AdapterResolver, invalidator Invalidator, cfg *config.Config, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		store:       store,
		providers:   providers,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      logger,
		locks:       newKeyedLocks(),
	}
}

// Ingest normalizes raw attributes against the stored record for the same
// external id and commits the merge. Idempotent: re-ingesting identical
// input changes nothing.
func (ing *Ingestor) Ingest(ctx context.Context, raw *model.RawPlaceAttributes) (*IngestResult, error) {
	if raw == nil || strings.TrimSpace(raw.ExternalID) == "" {
		return nil, fmt.Errorf("%w: missing external id", catalog.ErrMalformedInput)
	}
	release := ing.locks.acquire(raw.ExternalID)
	defer release()

	existing, err := ing.store.GetByExternalID(ctx, raw.ExternalID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}

	rec, changed, err := catalog.Normalize(raw, existing)
	if err != nil {
		return nil, err
	}

	created := false
	if changed {
		created, err = ing.store.Upsert(ctx, rec)
		if err != nil {
			return nil, err
		}
		ing.invalidator.MarkStale()
	}

	res := &IngestResult{Record: rec, Created: created, Changed: changed}
	if dup, err := ing.findDuplicate(ctx, rec); err != nil {
		// Advisory only: a failed proximity probe never fails the ingest.
		ing.logger.WithError(err).WithField("external_id", rec.ExternalID).Warn("duplicate probe failed")
	} else {
		res.Duplicate = dup
	}
	return res, nil
}

// findDuplicate looks for a record under a different external id that sits
// within the duplicate radius and carries a matching normalized name. The
// catalog never merges such pairs automatically — provider identifiers are
// the only dedup key it trusts — so the pair is surfaced for review.
func (ing *Ingestor) findDuplicate(ctx context.Context, rec *model.PlaceRecord) (*catalog.PossibleDuplicate, error) {
	if !rec.HasCoordinates() {
		return nil, nil
	}
	radius := ing.cfg.Catalog.DuplicateRadiusM
	if radius <= 0 {
		radius = 50
	}
	candidates, err := ing.store.FindNearby(ctx, rec.Latitude, rec.Longitude, radius, rec.ExternalID)
	if err != nil {
		return nil, err
	}
	name := catalog.NormalizeName(rec.Name)
	for _, c := range candidates {
		dist := catalog.HaversineMeters(rec.Latitude, rec.Longitude, c.Latitude, c.Longitude)
		if dist > radius {
			continue
		}
		other := catalog.NormalizeName(c.Name)
		if other == "" || name == "" {
			continue
		}
		if other == name || strings.Contains(other, name) || strings.Contains(name, other) {
			return &catalog.PossibleDuplicate{
				ExternalID:      rec.ExternalID,
				OtherExternalID: c.ExternalID,
				DistanceMeters:  dist,
			}, nil
		}
	}
	return nil, nil
}

// IngestBatch fetches every identifier from the provider and ingests each
// one in isolation. Transient fetch failures are retried with exponential
// backoff; malformed input is permanent and fails only its own item.
func (ing *Ingestor) IngestBatch(ctx context.Context, source model.SourceType, externalIDs []string) *BatchReport {
	report := &BatchReport{
		BatchID:  uuid.NewString(),
		Provider: string(source),
	}
	log := ing.logger.WithFields(logrus.Fields{"batch_id": report.BatchID, "provider": source})

	providerAdapter, err := ing.providers.GetAdapter(source)
	if err != nil {
		for _, id := range externalIDs {
			report.Items = append(report.Items, BatchItem{ExternalID: id, Status: "failed", Error: err.Error()})
		}
		report.Failed = len(externalIDs)
		log.WithError(err).Error("batch aborted: no adapter")
		return report
	}

	providerCfg := ing.cfg.Providers[string(source)]
	for _, id := range externalIDs {
		item := BatchItem{ExternalID: id}
		raw, err := ing.fetchWithRetry(ctx, providerAdapter.FetchByExternalID, id, &providerCfg)
		if err == nil {
			var res *IngestResult
			res, err = ing.Ingest(ctx, raw)
			if err == nil {
				switch {
				case res.Created:
					item.Status = "created"
				case res.Changed:
					item.Status = "updated"
				default:
					item.Status = "unchanged"
				}
				item.Duplicate = res.Duplicate
				report.Succeeded++
				report.Items = append(report.Items, item)
				continue
			}
		}
		item.Status = "failed"
		item.Error = err.Error()
		report.Failed++
		report.Items = append(report.Items, item)
		log.WithError(err).WithField("external_id", id).Warn("batch item failed")
	}

	log.WithFields(logrus.Fields{"succeeded": report.Succeeded, "failed": report.Failed}).Info("batch finished")
	return report
}

type fetchFunc func(ctx context.Context, externalID string) (*model.RawPlaceAttributes, error)

// fetchWithRetry retries transient provider failures with exponential
// backoff and a bounded attempt count. Permanent failures (malformed input,
// not found) return immediately.
func (ing *Ingestor) fetchWithRetry(ctx context.Context, fetch fetchFunc, externalID string, cfg *config.ProviderConfig) (*model.RawPlaceAttributes, error) {
	attempts := cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(cfg.BackoffBaseMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff << (attempt - 1)):
			}
		}
		raw, err := fetch(ctx, externalID)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, catalog.ErrTransientProvider) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts for %s: %v", catalog.ErrIngestFailed, attempts, externalID, lastErr)
}

// ApplyManualEdit applies an admin correction: provenance is raised to
// manual, tags are appended, category fields set. A later automated
// re-ingestion of the same external id can still refresh descriptive fields
// but never reverts the manual provenance or removes appended tags.
func (ing *Ingestor) ApplyManualEdit(ctx context.Context, externalID string, edit *ManualEdit) (*model.PlaceRecord, error) {
	release := ing.locks.acquire(externalID)
	defer release()

	existing, err := ing.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	raw := &model.RawPlaceAttributes{
		ExternalID:      externalID,
		Source:          model.SourceManual,
		CategorySlug:    edit.CategorySlug,
		CategoryDisplay: edit.CategoryDisplay,
		CategoryLegacy:  edit.CategoryLegacy,
		Tags:            edit.Tags,
		TagsLegacy:      edit.TagsLegacy,
	}
	rec, changed, err := catalog.Normalize(raw, existing)
	if err != nil {
		return nil, err
	}
	if changed {
		if _, err := ing.store.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		ing.invalidator.MarkStale()
	}
	return rec, nil
}
