package prerequisites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	serviceusage "cloud.google.com/go/serviceusage/apiv1"
	"cloud.google.com/go/serviceusage/apiv1/serviceusagepb"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ServiceAPIClient checks for and enables cloud service APIs on a project.
type ServiceAPIClient interface {
	GetEnabledServices(ctx context.Context, projectID string) (mapset.Set[string], error)
	EnableServices(ctx context.Context, projectID string, services []string) error
	Close() error
}

// googleServiceAPIClient implements ServiceAPIClient with the Service Usage API.
type googleServiceAPIClient struct {
	client *serviceusage.Client
	logger zerolog.Logger
}

// NewGoogleServiceAPIClient creates a Service Usage API client.
func NewGoogleServiceAPIClient(ctx context.Context, logger zerolog.Logger, opts ...option.ClientOption) (ServiceAPIClient, error) {
	client, err := serviceusage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create serviceusage client: %w", err)
	}
	return &googleServiceAPIClient{
		client: client,
		logger: logger.With().Str("component", "ServiceUsageClient").Logger(),
	}, nil
}

// GetEnabledServices returns the hostnames of the APIs enabled on projectID.
func (c *googleServiceAPIClient) GetEnabledServices(ctx context.Context, projectID string) (mapset.Set[string], error) {
	enabled := mapset.NewSet[string]()
	it := c.client.ListServices(ctx, &serviceusagepb.ListServicesRequest{
		Parent: "projects/" + projectID,
		Filter: "state:ENABLED",
	})
	for {
		service, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list enabled services: %w", err)
		}
		// Names look like "projects/12345/services/storage.googleapis.com".
		if i := strings.LastIndex(service.GetName(), "/"); i != -1 {
			enabled.Add(service.GetName()[i+1:])
		}
	}
	return enabled, nil
}

// EnableServices enables services in one batch and waits for the operation.
func (c *googleServiceAPIClient) EnableServices(ctx context.Context, projectID string, services []string) error {
	op, err := c.client.BatchEnableServices(ctx, &serviceusagepb.BatchEnableServicesRequest{
		Parent:     "projects/" + projectID,
		ServiceIds: services,
	})
	if err != nil {
		return fmt.Errorf("failed to start batch enable services operation: %w", err)
	}
	res, err := op.Wait(ctx)
	if err != nil {
		return fmt.Errorf("batch enable services operation failed: %w", err)
	}
	c.logger.Info().Int("enabled", len(res.GetServices())).Strs("services", services).Msg("Enabled services.")
	return nil
}

func (c *googleServiceAPIClient) Close() error {
	return c.client.Close()
}
