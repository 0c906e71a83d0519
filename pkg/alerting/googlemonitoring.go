package alerting

import (
	"context"
	"errors"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

// alertPolicyAPI is satisfied by *monitoring.AlertPolicyClient.
type alertPolicyAPI interface {
	GetAlertPolicy(ctx context.Context, req *monitoringpb.GetAlertPolicyRequest, opts ...gax.CallOption) (*monitoringpb.AlertPolicy, error)
	CreateAlertPolicy(ctx context.Context, req *monitoringpb.CreateAlertPolicyRequest, opts ...gax.CallOption) (*monitoringpb.AlertPolicy, error)
	UpdateAlertPolicy(ctx context.Context, req *monitoringpb.UpdateAlertPolicyRequest, opts ...gax.CallOption) (*monitoringpb.AlertPolicy, error)
	DeleteAlertPolicy(ctx context.Context, req *monitoringpb.DeleteAlertPolicyRequest, opts ...gax.CallOption) error
	Close() error
}

// notificationChannelAPI is satisfied by *monitoring.NotificationChannelClient.
type notificationChannelAPI interface {
	GetNotificationChannel(ctx context.Context, req *monitoringpb.GetNotificationChannelRequest, opts ...gax.CallOption) (*monitoringpb.NotificationChannel, error)
	Close() error
}

// googleMonitoringClient adapts the Cloud Monitoring gapic clients to AlertPolicyClient.
type googleMonitoringClient struct {
	alerts   alertPolicyAPI
	channels notificationChannelAPI
	logger   zerolog.Logger
}

// NewGoogleMonitoringClient creates the alert policy and notification channel
// clients. Both are closed by Close.
func NewGoogleMonitoringClient(ctx context.Context, logger zerolog.Logger, opts ...option.ClientOption) (AlertPolicyClient, error) {
	alertClient, err := monitoring.NewAlertPolicyClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert policy client: %w", err)
	}

	channelClient, err := monitoring.NewNotificationChannelClient(ctx, opts...)
	if err != nil {
		_ = alertClient.Close() // Clean up already created client
		return nil, fmt.Errorf("failed to create notification channel client: %w", err)
	}

	return newGoogleMonitoringClient(alertClient, channelClient, logger), nil
}

func newGoogleMonitoringClient(alerts alertPolicyAPI, channels notificationChannelAPI, logger zerolog.Logger) *googleMonitoringClient {
	return &googleMonitoringClient{
		alerts:   alerts,
		channels: channels,
		logger:   logger.With().Str("component", "GoogleMonitoringClient").Logger(),
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (c *googleMonitoringClient) GetAlertPolicy(ctx context.Context, name string) (*monitoringpb.AlertPolicy, error) {
	p, err := c.alerts.GetAlertPolicy(ctx, &monitoringpb.GetAlertPolicyRequest{Name: name})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrAlertPolicyNotFound, name)
	}
	return p, err
}

func (c *googleMonitoringClient) CreateAlertPolicy(ctx context.Context, projectID string, policy *monitoringpb.AlertPolicy) (*monitoringpb.AlertPolicy, error) {
	return c.alerts.CreateAlertPolicy(ctx, &monitoringpb.CreateAlertPolicyRequest{
		Name:        "projects/" + projectID,
		AlertPolicy: policy,
	})
}

func (c *googleMonitoringClient) UpdateAlertPolicy(ctx context.Context, policy *monitoringpb.AlertPolicy, paths []string) (*monitoringpb.AlertPolicy, error) {
	return c.alerts.UpdateAlertPolicy(ctx, &monitoringpb.UpdateAlertPolicyRequest{
		AlertPolicy: policy,
		UpdateMask:  &fieldmaskpb.FieldMask{Paths: paths},
	})
}

func (c *googleMonitoringClient) DeleteAlertPolicy(ctx context.Context, name string) error {
	err := c.alerts.DeleteAlertPolicy(ctx, &monitoringpb.DeleteAlertPolicyRequest{Name: name})
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrAlertPolicyNotFound, name)
	}
	return err
}

func (c *googleMonitoringClient) GetNotificationChannel(ctx context.Context, name string) (*monitoringpb.NotificationChannel, error) {
	ch, err := c.channels.GetNotificationChannel(ctx, &monitoringpb.GetNotificationChannelRequest{Name: name})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotificationChannelNotFound, name)
	}
	return ch, err
}

// Close closes both underlying clients, logging and returning any failures.
func (c *googleMonitoringClient) Close() error {
	var errs []error
	if c.alerts != nil {
		if err := c.alerts.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing alert policy client")
			errs = append(errs, err)
		}
	}
	if c.channels != nil {
		if err := c.channels.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing notification channel client")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
