package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PlaceAtlas/internal/model"
)

// Normalize reconciles raw provider attributes with whatever is already
// stored for the same external id and returns the canonical record. It is
// applied on every write path, so records ingested under the legacy schema
// and the structured schema coexist without a migration.
//
// Merge policy: a field is overwritten only when the incoming value is
// non-empty; empty incoming values never erase populated ones. Source is
// monotonic — once manual, automated passes may still refresh descriptive
// fields but never downgrade provenance or remove manually appended tags.
//
// The returned changed flag reports whether any canonical field differs from
// existing; UpdatedAt is bumped only in that case.
func Normalize(raw *model.RawPlaceAttributes, existing *model.PlaceRecord) (*model.PlaceRecord, bool, error) {
	if raw == nil {
		return nil, false, fmt.Errorf("%w: nil raw attributes", ErrMalformedInput)
	}
	if existing == nil {
		if strings.TrimSpace(raw.ExternalID) == "" {
			return nil, false, fmt.Errorf("%w: missing external id", ErrMalformedInput)
		}
		if strings.TrimSpace(raw.Name) == "" {
			return nil, false, fmt.Errorf("%w: missing name for %s", ErrMalformedInput, raw.ExternalID)
		}
		if !raw.HasCoordinates() {
			return nil, false, fmt.Errorf("%w: missing coordinates for %s", ErrMalformedInput, raw.ExternalID)
		}
	}
	if raw.HasCoordinates() {
		if raw.Latitude < -90 || raw.Latitude > 90 || raw.Longitude < -180 || raw.Longitude > 180 {
			return nil, false, fmt.Errorf("%w: coordinates out of range for %s", ErrMalformedInput, raw.ExternalID)
		}
	}

	var rec *model.PlaceRecord
	if existing != nil {
		rec = existing.Clone()
	} else {
		rec = &model.PlaceRecord{ExternalID: raw.ExternalID}
	}
	changed := false
	set := func(dst *string, v string) {
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}

	// Provenance is monotonic: manual is never downgraded.
	if rec.Source != model.SourceManual && raw.Source != "" && raw.Source != rec.Source {
		rec.Source = raw.Source
		changed = true
	}

	set(&rec.Name, strings.TrimSpace(raw.Name))
	if raw.HasCoordinates() && (raw.Latitude != rec.Latitude || raw.Longitude != rec.Longitude) {
		rec.Latitude = raw.Latitude
		rec.Longitude = raw.Longitude
		changed = true
	}
	set(&rec.Country, strings.TrimSpace(raw.Country))
	set(&rec.City, strings.TrimSpace(raw.City))
	set(&rec.Address, strings.TrimSpace(raw.Address))
	if raw.Rating != 0 && raw.Rating != rec.Rating {
		rec.Rating = raw.Rating
		changed = true
	}
	if len(raw.Images) > 0 && !equalStrings(raw.Images, rec.Images) {
		rec.Images = append([]string(nil), raw.Images...)
		changed = true
	}

	if mergeCategory(rec, raw) {
		changed = true
	}
	if mergeTags(rec, raw) {
		changed = true
	}

	// Keep the raw provider payload around for offline re-normalization; not
	// a canonical field, so it does not count as a change on its own. Manual
	// edits are not provider payloads.
	if raw.Source != model.SourceManual {
		if payload, err := json.Marshal(raw); err == nil {
			rec.ProviderPayload = payload
		}
	}

	now := time.Now().UTC()
	if existing == nil {
		rec.CreatedAt = now
		rec.UpdatedAt = now
	} else if changed {
		rec.UpdatedAt = now
	}
	return rec, changed || existing == nil, nil
}

// mergeCategory resolves the category into slug + display while retaining
// the legacy string forever. A slug derived from legacy text only ever fills
// an empty slug; it does not clobber a structured one.
func mergeCategory(rec *model.PlaceRecord, raw *model.RawPlaceAttributes) bool {
	changed := false
	if slug := Slugify(raw.CategorySlug); slug != "" {
		if slug != rec.CategorySlug {
			rec.CategorySlug = slug
			changed = true
		}
		for locale, display := range raw.CategoryDisplay {
			if display == "" {
				continue
			}
			if rec.CategoryDisplay[locale] != display {
				if rec.CategoryDisplay == nil {
					rec.CategoryDisplay = make(map[string]string)
				}
				rec.CategoryDisplay[locale] = display
				changed = true
			}
		}
	}
	if legacy := strings.TrimSpace(raw.CategoryLegacy); legacy != "" {
		if legacy != rec.CategoryLegacy {
			rec.CategoryLegacy = legacy
			changed = true
		}
		if rec.CategorySlug == "" {
			rec.CategorySlug = Slugify(legacy)
			changed = true
		}
	}
	// A set slug guarantees at least an "en" display name.
	if rec.CategorySlug != "" && rec.CategoryDisplay["en"] == "" {
		if rec.CategoryDisplay == nil {
			rec.CategoryDisplay = make(map[string]string)
		}
		if rec.CategoryLegacy != "" && Slugify(rec.CategoryLegacy) == rec.CategorySlug {
			rec.CategoryDisplay["en"] = DisplayFromLegacy(rec.CategoryLegacy)
		} else {
			rec.CategoryDisplay["en"] = DisplayFromLegacy(strings.ReplaceAll(rec.CategorySlug, "-", " "))
		}
		changed = true
	}
	return changed
}

// mergeTags appends structured tags per dimension and legacy tags verbatim.
// Legacy tags are never redistributed into dimensions: the source rarely
// reveals which dimension a legacy tag belongs to, so guessing is off the
// table. Tag values are only ever appended, never removed.
func mergeTags(rec *model.PlaceRecord, raw *model.RawPlaceAttributes) bool {
	changed := false
	for dim, values := range raw.Tags {
		dim = strings.TrimSpace(dim)
		if dim == "" {
			continue
		}
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" || containsFold(rec.Tags[dim], v) {
				continue
			}
			if rec.Tags == nil {
				rec.Tags = make(map[string][]string)
			}
			rec.Tags[dim] = append(rec.Tags[dim], v)
			changed = true
		}
	}
	for _, lt := range raw.TagsLegacy {
		value := strings.TrimSpace(lt.Value)
		if value == "" {
			continue
		}
		idx := -1
		for i, have := range rec.TagsLegacy {
			if strings.EqualFold(have.Value, value) {
				idx = i
				break
			}
		}
		if idx < 0 {
			rec.TagsLegacy = append(rec.TagsLegacy, model.LegacyTag{Value: value, Translations: cloneStringMap(lt.Translations)})
			changed = true
			continue
		}
		for locale, display := range lt.Translations {
			if display == "" || rec.TagsLegacy[idx].Translations[locale] == display {
				continue
			}
			if rec.TagsLegacy[idx].Translations == nil {
				rec.TagsLegacy[idx].Translations = make(map[string]string)
			}
			rec.TagsLegacy[idx].Translations[locale] = display
			changed = true
		}
	}
	return changed
}

// CanonicalCategory returns the slug and English display for a record,
// deriving from the legacy string for records that predate normalization.
func CanonicalCategory(rec *model.PlaceRecord) (slug, display string) {
	if rec.CategorySlug != "" {
		display = rec.CategoryDisplay["en"]
		if display == "" {
			display = DisplayFromLegacy(strings.ReplaceAll(rec.CategorySlug, "-", " "))
		}
		return rec.CategorySlug, display
	}
	if rec.CategoryLegacy != "" {
		return Slugify(rec.CategoryLegacy), DisplayFromLegacy(rec.CategoryLegacy)
	}
	return "", ""
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
