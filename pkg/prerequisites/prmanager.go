package prerequisites

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
)

// Manager makes sure the APIs a document needs are enabled.
type Manager struct {
	client ServiceAPIClient
	logger zerolog.Logger
}

// NewManager creates a prerequisite manager.
func NewManager(client ServiceAPIClient, logger zerolog.Logger) (*Manager, error) {
	if client == nil {
		return nil, errors.New("service API client (ServiceAPIClient interface) cannot be nil")
	}
	return &Manager{
		client: client,
		logger: logger.With().Str("component", "PrerequisiteManager").Logger(),
	}, nil
}

// CheckAndEnable enables every API doc needs on projectID that is not enabled
// yet and returns those APIs. With dryRun the missing APIs are only reported.
// Running it again once everything is enabled changes nothing.
func (m *Manager) CheckAndEnable(ctx context.Context, projectID string, doc *config.Document, dryRun bool) ([]string, error) {
	required := PlanRequiredServices(doc)
	if len(required) == 0 {
		m.logger.Info().Msg("No cloud services are required by the document. Skipping checks.")
		return nil, nil
	}
	if projectID == "" {
		return nil, errors.New("a project is required to check service APIs")
	}
	m.logger.Info().Strs("required_apis", required).Msg("Planned required APIs from document.")

	enabled, err := m.client.GetEnabledServices(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get currently enabled services: %w", err)
	}

	missing := slices.DeleteFunc(slices.Clone(required), func(api string) bool {
		return enabled.Contains(api)
	})
	if len(missing) == 0 {
		m.logger.Info().Msg("All required service APIs are already enabled.")
		return missing, nil
	}
	if dryRun {
		m.logger.Warn().Strs("apis_to_enable", missing).Msg("Required APIs are not enabled, would enable.")
		return missing, nil
	}

	m.logger.Warn().Strs("apis_to_enable", missing).Msg("Required APIs are not enabled. Enabling now...")
	if err := m.client.EnableServices(ctx, projectID, missing); err != nil {
		return nil, fmt.Errorf("failed to enable required services: %w", err)
	}
	m.logger.Info().Strs("enabled_apis", missing).Msg("Enabled all required service APIs.")
	return missing, nil
}
