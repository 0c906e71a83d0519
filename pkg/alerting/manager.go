package alerting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// Manager reconciles Cloud Monitoring alert policies against declared specs.
type Manager struct {
	client    AlertPolicyClient
	logger    zerolog.Logger
	projectID string
}

// NewManager creates a manager. projectID resolves spec ids and is the project
// new policies are created in when the spec carries no full name.
func NewManager(client AlertPolicyClient, logger zerolog.Logger, projectID string) (*Manager, error) {
	if client == nil {
		return nil, errors.New("alert policy client (AlertPolicyClient interface) cannot be nil")
	}
	return &Manager{
		client:    client,
		logger:    logger.With().Str("component", "AlertPolicyManager").Logger(),
		projectID: projectID,
	}, nil
}

// ReconcileAll reconciles every spec concurrently and returns results in spec order.
func (m *Manager) ReconcileAll(ctx context.Context, specs []AlertPolicySpec, dryRun bool) ([]*AlertPolicyResult, error) {
	m.logger.Info().Int("alert_policies", len(specs)).Bool("dry_run", dryRun).Msg("Starting alert policy reconciliation")

	var wg sync.WaitGroup
	errChan := make(chan error, len(specs))
	results := make([]*AlertPolicyResult, len(specs))

	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec AlertPolicySpec) {
			defer wg.Done()
			result, err := m.Reconcile(ctx, spec, dryRun)
			results[i] = result
			if err != nil {
				errChan <- err
			}
		}(i, spec)
	}

	wg.Wait()
	close(errChan)

	var allErrors []error
	for err := range errChan {
		allErrors = append(allErrors, err)
	}
	if len(allErrors) > 0 {
		return results, fmt.Errorf("alert policy reconciliation completed with errors: %w", errors.Join(allErrors...))
	}

	m.logger.Info().Msg("Alert policy reconciliation completed successfully.")
	return results, nil
}

// Reconcile brings one alert policy to the state its spec declares. With dryRun
// the result reports the same change set a real run would, without writing.
func (m *Manager) Reconcile(ctx context.Context, spec AlertPolicySpec, dryRun bool) (*AlertPolicyResult, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	name, err := spec.ResourceName(m.projectID)
	if err != nil {
		return nil, err
	}

	log := m.logger.With().Str("alert_policy", name).Str("state", string(spec.State)).Bool("dry_run", dryRun).Logger()

	var current *monitoringpb.AlertPolicy
	if name != "" {
		current, err = m.client.GetAlertPolicy(ctx, name)
		if errors.Is(err, ErrAlertPolicyNotFound) {
			current = nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to check existence of alert policy '%s': %w", name, err)
		}
	}

	result := newAlertPolicyResult(name, spec.State)
	switch spec.State {
	case StateAbsent:
		err = m.ensureAbsent(ctx, log, current, dryRun, result)
	case StatePresent:
		err = m.ensurePresent(ctx, log, current, spec, name, dryRun, result)
	}
	if err != nil {
		return result, err
	}

	log.Info().Bool("changed", result.Changed).Strs("fields", result.Changes.Fields).Msg("Alert policy reconciled.")
	return result, nil
}

func (m *Manager) ensureAbsent(ctx context.Context, log zerolog.Logger, current *monitoringpb.AlertPolicy, dryRun bool, result *AlertPolicyResult) error {
	if current == nil {
		log.Info().Msg("Alert policy does not exist, skipping deletion.")
		return nil
	}
	result.Changed = true
	result.Changes.Conditions = reconcile.NewDiff(conditionSet(current), conditionSet(nil))
	result.Changes.NotificationChannels = reconcile.NewDiff(channelSet(current), channelSet(nil))

	view, err := renderPolicy(current)
	if err != nil {
		return err
	}
	result.AlertPolicy = view

	if dryRun {
		log.Info().Msg("Alert policy exists, would delete.")
		return nil
	}
	if err := m.client.DeleteAlertPolicy(ctx, current.GetName()); err != nil && !errors.Is(err, ErrAlertPolicyNotFound) {
		return fmt.Errorf("failed to delete alert policy '%s': %w", current.GetName(), err)
	}
	log.Info().Msg("Alert policy deleted successfully.")
	return nil
}

func (m *Manager) ensurePresent(ctx context.Context, log zerolog.Logger, current *monitoringpb.AlertPolicy, spec AlertPolicySpec, name string, dryRun bool, result *AlertPolicyResult) error {
	desired, paths, err := buildDesired(current, spec, name)
	if err != nil {
		return err
	}
	if err := m.checkChannels(ctx, current, desired); err != nil {
		return err
	}

	result.Changes.Conditions = reconcile.NewDiff(conditionSet(current), conditionSet(desired))
	result.Changes.NotificationChannels = reconcile.NewDiff(channelSet(current), channelSet(desired))

	if current == nil {
		return m.create(ctx, log, desired, paths, name, dryRun, result)
	}

	fields := changedFields(current, desired, paths)
	if len(fields) == 0 {
		log.Debug().Msg("Alert policy already matches.")
		view, err := renderPolicy(current)
		result.AlertPolicy = view
		return err
	}
	result.Changed = true
	result.Changes.Fields = fields

	written := desired
	if dryRun {
		log.Info().Strs("fields", fields).Msg("Alert policy differs, would update.")
	} else {
		log.Info().Strs("fields", fields).Msg("Alert policy differs, updating.")
		written, err = m.client.UpdateAlertPolicy(ctx, desired, fields)
		if err != nil {
			return fmt.Errorf("failed to update alert policy '%s': %w", name, err)
		}
	}
	view, err := renderPolicy(written)
	result.AlertPolicy = view
	return err
}

func (m *Manager) create(ctx context.Context, log zerolog.Logger, desired *monitoringpb.AlertPolicy, paths []string, name string, dryRun bool, result *AlertPolicyResult) error {
	projectID := m.projectID
	if name != "" {
		parsed, err := ParseAlertPolicyName(name)
		if err != nil {
			return err
		}
		projectID = parsed.ProjectID
		log.Warn().Msg("Named alert policy does not exist, the created policy will get a server-assigned id.")
	}
	if projectID == "" {
		return fmt.Errorf("%w: a project is required to create an alert policy", reconcile.ErrValidation)
	}
	result.Changed = true
	result.Changes.Fields = paths

	// The server assigns the name on create.
	desired.Name = ""
	written := desired
	if dryRun {
		log.Info().Str("project_id", projectID).Msg("Alert policy does not exist, would create.")
	} else {
		log.Info().Str("project_id", projectID).Msg("Alert policy does not exist, creating.")
		var err error
		written, err = m.client.CreateAlertPolicy(ctx, projectID, desired)
		if err != nil {
			return fmt.Errorf("failed to create alert policy in project '%s': %w", projectID, err)
		}
		result.Name = written.GetName()
		log.Info().Str("alert_policy", written.GetName()).Msg("Alert policy created successfully.")
	}
	view, err := renderPolicy(written)
	result.AlertPolicy = view
	return err
}

// checkChannels verifies that every channel the desired policy adds exists.
// Channels already on the policy are not looked up again.
func (m *Manager) checkChannels(ctx context.Context, current, desired *monitoringpb.AlertPolicy) error {
	added := channelSet(desired).Difference(channelSet(current)).ToSlice()
	slices.Sort(added)
	var errs []error
	for _, ch := range added {
		_, err := m.client.GetNotificationChannel(ctx, string(ch))
		switch {
		case errors.Is(err, ErrNotificationChannelNotFound):
			errs = append(errs, fmt.Errorf("%w: notification channel '%s' does not exist", reconcile.ErrValidation, ch))
		case err != nil:
			errs = append(errs, fmt.Errorf("failed to look up notification channel '%s': %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
