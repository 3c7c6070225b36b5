package model

import (
	"time"

	"gorm.io/datatypes"
)

// SourceType identifies which provider a record came from.
type SourceType string

const (
	SourceGeoScout  SourceType = "geoscout"
	SourceCityIndex SourceType = "cityindex"
	SourceManual    SourceType = "manual"
)

// LegacyTag is a free-text tag as delivered by providers that never migrated
// to the dimensioned tag schema. Some entries carry display translations.
type LegacyTag struct {
	Value        string            `json:"value"`
	Translations map[string]string `json:"translations,omitempty"`
}

// PlaceRecord is the canonical catalog entity, one row per external_id.
// Legacy and structured category/tag representations are persisted side by
// side and never collapsed into each other.
type PlaceRecord struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ExternalID string     `gorm:"column:external_id;type:varchar(64);uniqueIndex;not null" json:"external_id"`
	Source     SourceType `gorm:"column:source;type:varchar(32);index;not null" json:"source"`
	Name       string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Latitude   float64    `gorm:"column:latitude;type:decimal(10,7);not null" json:"latitude"`
	Longitude  float64    `gorm:"column:longitude;type:decimal(10,7);not null" json:"longitude"`
	Country    string     `gorm:"column:country;type:varchar(128);index" json:"country,omitempty"`
	City       string     `gorm:"column:city;type:varchar(128);index" json:"city,omitempty"`
	Address    string     `gorm:"column:address;type:varchar(512)" json:"address,omitempty"`
	Rating     float64    `gorm:"column:rating;type:decimal(3,1)" json:"rating,omitempty"`
	Images     []string   `gorm:"column:images;type:jsonb;serializer:json" json:"images,omitempty"`

	CategoryLegacy  string            `gorm:"column:category_legacy;type:varchar(255)" json:"category_legacy,omitempty"`
	CategorySlug    string            `gorm:"column:category_slug;type:varchar(128);index" json:"category_slug,omitempty"`
	CategoryDisplay map[string]string `gorm:"column:category_display;type:jsonb;serializer:json" json:"category_display,omitempty"`

	Tags       map[string][]string `gorm:"column:tags;type:jsonb;serializer:json" json:"tags,omitempty"`
	TagsLegacy []LegacyTag         `gorm:"column:tags_legacy;type:jsonb;serializer:json" json:"tags_legacy,omitempty"`

	// Last raw attribute payload the record was normalized from, kept for
	// offline backfill jobs that re-run normalization.
	ProviderPayload datatypes.JSON `gorm:"column:provider_payload;type:jsonb" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now()" json:"updated_at"`
}

func (PlaceRecord) TableName() string { return "place_records" }

// HasCoordinates reports whether the record carries usable coordinates.
// Providers return null coordinates as (0,0), which the catalog treats as
// missing.
func (p *PlaceRecord) HasCoordinates() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Clone returns a deep copy safe to mutate independently of the receiver.
func (p *PlaceRecord) Clone() *PlaceRecord {
	out := *p
	out.Images = append([]string(nil), p.Images...)
	if p.CategoryDisplay != nil {
		out.CategoryDisplay = make(map[string]string, len(p.CategoryDisplay))
		for k, v := range p.CategoryDisplay {
			out.CategoryDisplay[k] = v
		}
	}
	if p.Tags != nil {
		out.Tags = make(map[string][]string, len(p.Tags))
		for dim, vs := range p.Tags {
			out.Tags[dim] = append([]string(nil), vs...)
		}
	}
	if p.TagsLegacy != nil {
		out.TagsLegacy = make([]LegacyTag, len(p.TagsLegacy))
		for i, lt := range p.TagsLegacy {
			cp := LegacyTag{Value: lt.Value}
			if lt.Translations != nil {
				cp.Translations = make(map[string]string, len(lt.Translations))
				for k, v := range lt.Translations {
					cp.Translations[k] = v
				}
			}
			out.TagsLegacy[i] = cp
		}
	}
	if p.ProviderPayload != nil {
		out.ProviderPayload = append(out.ProviderPayload[:0:0], p.ProviderPayload...)
	}
	return &out
}

// AllTagValues returns the union of every structured tag value (any
// dimension) and every legacy tag value. This is the queryable tag surface
// of a record.
func (p *PlaceRecord) AllTagValues() []string {
	var values []string
	for _, vs := range p.Tags {
		values = append(values, vs...)
	}
	for _, lt := range p.TagsLegacy {
		values = append(values, lt.Value)
	}
	return values
}
