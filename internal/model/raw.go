package model

// RawPlaceAttributes is the provider-shaped input to normalization: whatever
// a provider knows about a place, before any schema reconciliation. Category
// and tags may arrive in the structured form, the legacy free-text form, or
// both.
type RawPlaceAttributes struct {
	ExternalID string     `json:"external_id"`
	Source     SourceType `json:"source"`
	Name       string     `json:"name"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Providers encode missing coordinates as (0,0). A true (0,0) must be
	// explicitly confirmed by the provider payload to be kept.
	CoordsConfirmed bool `json:"coords_confirmed,omitempty"`

	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`

	Rating float64  `json:"rating,omitempty"`
	Images []string `json:"images,omitempty"`

	CategorySlug    string            `json:"category_slug,omitempty"`
	CategoryDisplay map[string]string `json:"category_display,omitempty"`
	CategoryLegacy  string            `json:"category_legacy,omitempty"`

	Tags       map[string][]string `json:"tags,omitempty"`
	TagsLegacy []LegacyTag         `json:"tags_legacy,omitempty"`
}

// HasCoordinates reports whether the raw input carries usable coordinates.
func (r *RawPlaceAttributes) HasCoordinates() bool {
	if r.Latitude == 0 && r.Longitude == 0 {
		return r.CoordsConfirmed
	}
	return true
}
