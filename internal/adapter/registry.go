// internal/adapter/registry.go
package adapter

import (
	"fmt"

	"PlaceAtlas/internal/config"
	"PlaceAtlas/internal/interfaces"
	"PlaceAtlas/internal/model"

	"github.com/sirupsen/logrus"
)

// Factory registry, populated by each provider package's init.
var factoryRegistry = make(map[model.SourceType]interfaces.Factory)

// Register is called from provider init functions.
func Register(source model.SourceType, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("nil factory for provider %s", source))
	}
	if _, exists := factoryRegistry[source]; exists {
		logrus.Warnf("provider %s already registered, overriding", source)
	}
	factoryRegistry[source] = factory
}

// GetFactory returns the factory registered for a provider source.
func GetFactory(source model.SourceType) (interfaces.Factory, bool) {
	factory, ok := factoryRegistry[source]
	return factory, ok
}

// ProviderRegistry holds the initialized adapter instances for every
// configured provider.
type ProviderRegistry struct {
	cfg      *config.Config
	logger   *logrus.Logger
	adapters map[model.SourceType]interfaces.ProviderAdapter
}

// NewProviderRegistry builds adapter instances for each configured provider
// that has a registered factory.
func NewProviderRegistry(cfg *config.Config, logger *logrus.Logger) *ProviderRegistry {
	r := &ProviderRegistry{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[model.SourceType]interfaces.ProviderAdapter),
	}
	for name, providerCfg := range cfg.Providers {
		source := model.SourceType(name)
		factory, ok := GetFactory(source)
		if !ok {
			logger.WithField("provider", name).Error("no factory registered for configured provider")
			continue
		}
		providerCfg := providerCfg
		ins := factory(&providerCfg, logger)
		if ins == nil {
			logger.WithField("provider", name).Error("factory returned nil adapter")
			continue
		}
		if ins.Source() != source {
			logger.WithFields(logrus.Fields{
				"config_provider":  source,
				"adapter_provider": ins.Source(),
			}).Error("adapter source does not match config section")
			continue
		}
		r.adapters[source] = ins
		logger.WithField("provider", name).Info("provider adapter initialized")
	}
	return r
}

// GetAdapter returns the adapter instance for a provider source.
func (r *ProviderRegistry) GetAdapter(source model.SourceType) (interfaces.ProviderAdapter, error) {
	ins, ok := r.adapters[source]
	if !ok {
		var registered []string
		for s := range r.adapters {
			registered = append(registered, string(s))
		}
		return nil, fmt.Errorf("provider %s has no initialized adapter (initialized: %v)", source, registered)
	}
	return ins, nil
}

// Sources lists the initialized provider sources.
func (r *ProviderRegistry) Sources() []model.SourceType {
	var sources []model.SourceType
	for s := range r.adapters {
		sources = append(sources, s)
	}
	return sources
}
