package alerting

import (
	"context"
	"errors"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
)

var (
	// ErrAlertPolicyNotFound is returned by an AlertPolicyClient when the named
	// policy does not exist.
	ErrAlertPolicyNotFound = errors.New("alert policy does not exist")
	// ErrNotificationChannelNotFound is returned by an AlertPolicyClient when the
	// named notification channel does not exist.
	ErrNotificationChannelNotFound = errors.New("notification channel does not exist")
)

// AlertPolicyClient is the subset of the Cloud Monitoring API the Manager
// needs. Policies are exchanged as monitoringpb messages.
type AlertPolicyClient interface {
	GetAlertPolicy(ctx context.Context, name string) (*monitoringpb.AlertPolicy, error)
	// CreateAlertPolicy creates policy under "projects/<projectID>". The server
	// assigns the policy's name.
	CreateAlertPolicy(ctx context.Context, projectID string, policy *monitoringpb.AlertPolicy) (*monitoringpb.AlertPolicy, error)
	// UpdateAlertPolicy writes only the fields named in paths.
	UpdateAlertPolicy(ctx context.Context, policy *monitoringpb.AlertPolicy, paths []string) (*monitoringpb.AlertPolicy, error)
	DeleteAlertPolicy(ctx context.Context, name string) error
	GetNotificationChannel(ctx context.Context, name string) (*monitoringpb.NotificationChannel, error)
	Close() error
}
