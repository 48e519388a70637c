package adapters

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// Registry resolves adapters by integration type
type Registry struct {
	adapters map[models.IntegrationType]interfaces.Adapter
}

// NewRegistry builds a registry with all provider adapters wired in
func NewRegistry(config *common.Config, logger arbor.ILogger) *Registry {
	r := &Registry{
		adapters: make(map[models.IntegrationType]interfaces.Adapter),
	}
	r.Register(NewGitHubAdapter(config, logger))
	r.Register(NewJiraAdapter(config, logger))
	r.Register(NewTrelloAdapter(config, logger))
	return r
}

// Register adds an adapter, replacing any existing one for its type
func (r *Registry) Register(adapter interfaces.Adapter) {
	r.adapters[adapter.Type()] = adapter
}

// ForType returns the adapter registered for a provider type
func (r *Registry) ForType(t models.IntegrationType) (interfaces.Adapter, error) {
	adapter, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for type %s", t)
	}
	return adapter, nil
}

// ForIntegration returns the adapter for an integration's type
func (r *Registry) ForIntegration(integration *models.Integration) (interfaces.Adapter, error) {
	return r.ForType(integration.Type)
}

// Ensure interface compliance
var _ interfaces.AdapterRegistry = (*Registry)(nil)
