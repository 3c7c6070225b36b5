package interfaces

import (
	"context"

	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/model"

	"github.com/sirupsen/logrus"
)

// ProviderAdapter is the contract every backing data provider implements.
// FetchByExternalID returns catalog.ErrNotFound for an unknown id and wraps
// catalog.ErrTransientProvider for failures worth retrying (timeouts, rate
// limits, 5xx).
type ProviderAdapter interface {
	Name() string
	Source() model.SourceType
	FetchByExternalID(ctx context.Context, externalID string) (*model.RawPlaceAttributes, error)
}

// Factory builds a provider adapter from its config section.
type Factory func(cfg *config.ProviderConfig, logger *logrus.Logger) ProviderAdapter
