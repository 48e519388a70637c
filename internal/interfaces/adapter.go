package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// Adapter defines the common interface for all provider adapter implementations.
// An adapter knows how to validate an integration's configuration and fetch
// its raw activity from the provider API.
type Adapter interface {
	// Type returns the provider type this adapter serves
	Type() models.IntegrationType

	// ValidateConfig checks the integration's parsed config and credentials
	// before any network call. Failures are terminal (ConfigError).
	ValidateConfig(integration *models.Integration) error

	// FetchActivity retrieves raw activity for the window ending at now.
	// Provider failures are mapped to the typed sync errors.
	FetchActivity(ctx context.Context, integration *models.Integration, window time.Duration) (*models.Activity, error)
}

// AdapterRegistry resolves the adapter for an integration by its type
type AdapterRegistry interface {
	// ForType returns the adapter registered for a provider type
	ForType(t models.IntegrationType) (Adapter, error)

	// ForIntegration returns the adapter for an integration's type
	ForIntegration(integration *models.Integration) (Adapter, error)
}
