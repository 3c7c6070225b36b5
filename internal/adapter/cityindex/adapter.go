package cityindex

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
	adapter.Register(model.SourceCityIndex, New)
}

// Adapter speaks the CityIndex REST API, a provider that never migrated off
// the legacy schema: one free-text category string and a flat tag list whose
// entries are either bare strings or objects with display translations.
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

func (a *Adapter) Name() string             { return "CityIndex" }
func (a *Adapter) Source() model.SourceType { return model.SourceCityIndex }

// poi is the CityIndex wire shape. Score is on a 0-10 scale.
type poi struct {
	PoiID    string    `json:"poi_id"`
	Title    string    `json:"title"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Country  string    `json:"country"`
	Town     string    `json:"town"`
	Street   string    `json:"street"`
	Score    float64   `json:"score"`
	Photos   []string  `json:"photos"`
	Category string    `json:"category"`
	Tags     []wireTag `json:"tags"`
}

// wireTag tolerates the two historical tag encodings: a bare string, or an
// object carrying a value plus optional per-locale translations.
type wireTag struct {
	Value        string
	Translations map[string]string
}

func (t *wireTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Value = s
		return nil
	}
	var obj struct {
		Value        string            `json:"value"`
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Value != "" {
		t.Value = obj.Value
		t.Translations = obj.Translations
		return nil
	}
	// Oldest encoding: a plain locale→display object with no value field.
	var locales map[string]string
	if err := json.Unmarshal(data, &locales); err != nil {
		return err
	}
	t.Translations = locales
	if v, ok := locales["en"]; ok {
		t.Value = v
	} else {
		for _, v := range locales {
			t.Value = v
			break
		}
	}
	return nil
}

func (a *Adapter) FetchByExternalID(ctx context.Context, externalID string) (*model.RawPlaceAttributes, error) {
	url := fmt.Sprintf("%s/api/poi/%s", a.cfg.BaseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cityindex request: %w", err)
	}
	if a.cfg.AuthToken != "" {
		req.Header.Set("X-Api-Key", a.cfg.AuthToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cityindex fetch %s: %v", catalog.ErrTransientProvider, externalID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: cityindex poi %s", catalog.ErrNotFound, externalID)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: cityindex status %d for %s", catalog.ErrTransientProvider, resp.StatusCode, externalID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: cityindex status %d for %s", catalog.ErrMalformedInput, resp.StatusCode, externalID)
	}

	var p poi
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode cityindex poi %s: %v", catalog.ErrMalformedInput, externalID, err)
	}
	return a.toRaw(externalID, &p), nil
}

func (a *Adapter) toRaw(externalID string, p *poi) *model.RawPlaceAttributes {
	id := p.PoiID
	if id == "" {
		id = externalID
	}
	raw := &model.RawPlaceAttributes{
		ExternalID:     id,
		Source:         model.SourceCityIndex,
		Name:           p.Title,
		Latitude:       p.Lat,
		Longitude:      p.Lon,
		Country:        p.Country,
		City:           p.Town,
		Address:        p.Street,
		Rating:         p.Score / 2, // 0-10 scale to 0-5
		Images:         p.Photos,
		CategoryLegacy: p.Category,
	}
	for _, t := range p.Tags {
		if t.Value == "" {
			continue
		}
		raw.TagsLegacy = append(raw.TagsLegacy, model.LegacyTag{Value: t.Value, Translations: t.Translations})
	}
	return raw
}
