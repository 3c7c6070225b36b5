package geoscout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"PlaceAtlas/internal/adapter"
	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/interfaces"
	"PlaceAtlas/internal/model"
	"PlaceAtlas/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

func init() {
	adapter.Register(model.SourceGeoScout, New)
}

// Adapter speaks the GeoScout REST API, which already serves the structured
// category/tag schema (slug + display map, dimensioned tags).
type Adapter struct {
	cfg        *config.ProviderConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func New(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.ProviderAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (a *Adapter) Name() string             { return "GeoScout" }
func (a *Adapter) Source() model.SourceType { return model.SourceGeoScout }

// place is the GeoScout wire shape.
type place struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location struct {
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
		Verified bool    `json:"verified"`
	} `json:"location"`
	Address struct {
		Country   string `json:"country"`
		City      string `json:"city"`
		Formatted string `json:"formatted"`
	} `json:"address"`
	Rating   float64  `json:"rating"`
	Images   []string `json:"images"`
	Category struct {
		Slug    string            `json:"slug"`
		Display map[string]string `json:"display"`
	} `json:"category"`
	Tags map[string][]string `json:"tags"`
}

func (a *Adapter) FetchByExternalID(ctx context.Context, externalID string) (*model.RawPlaceAttributes, error) {
	url := fmt.Sprintf("%s/v2/places/%s", a.cfg.BaseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build geoscout request: %w", err)
	}
	if a.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.AuthToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: geoscout fetch %s: %v", catalog.ErrTransientProvider, externalID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: geoscout place %s", catalog.ErrNotFound, externalID)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: geoscout status %d for %s", catalog.ErrTransientProvider, resp.StatusCode, externalID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: geoscout status %d for %s", catalog.ErrMalformedInput, resp.StatusCode, externalID)
	}

	var p place
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode geoscout place %s: %v", catalog.ErrMalformedInput, externalID, err)
	}
	return a.toRaw(externalID, &p), nil
}

func (a *Adapter) toRaw(externalID string, p *place) *model.RawPlaceAttributes {
	id := p.ID
	if id == "" {
		id = externalID
	}
	return &model.RawPlaceAttributes{
		ExternalID:      id,
		Source:          model.SourceGeoScout,
		Name:            p.Name,
		Latitude:        p.Location.Lat,
		Longitude:       p.Location.Lng,
		CoordsConfirmed: p.Location.Verified,
		Country:         p.Address.Country,
		City:            p.Address.City,
		Address:         p.Address.Formatted,
		Rating:          p.Rating,
		Images:          p.Images,
		CategorySlug:    p.Category.Slug,
		CategoryDisplay: p.Category.Display,
		Tags:            p.Tags,
	}
}
