package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/alerting"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/storage"
)

// IBucketManager is implemented by storage.BucketManager.
type IBucketManager interface {
	ReconcileAll(ctx context.Context, specs []storage.BucketSpec, dryRun bool) ([]*storage.BucketResult, error)
}

// IAlertPolicyManager is implemented by alerting.Manager.
type IAlertPolicyManager interface {
	ReconcileAll(ctx context.Context, specs []alerting.AlertPolicySpec, dryRun bool) ([]*alerting.AlertPolicyResult, error)
}

// Report is the combined outcome of one run over a Document.
type Report struct {
	Environment   string                        `yaml:"environment" json:"environment"`
	CheckMode     bool                          `yaml:"check_mode" json:"check_mode"`
	Changed       bool                          `yaml:"changed" json:"changed"`
	Buckets       []*storage.BucketResult       `yaml:"buckets" json:"buckets"`
	AlertPolicies []*alerting.AlertPolicyResult `yaml:"alert_policies" json:"alert_policies"`
	Errors        []string                      `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// Conductor runs every resource category of a Document. Categories run
// concurrently and independently: a failure in one never stops or undoes
// another.
type Conductor struct {
	buckets IBucketManager
	alerts  IAlertPolicyManager
	logger  zerolog.Logger
}

// NewConductor creates a Conductor. A nil manager is allowed as long as the
// documents it runs declare nothing for that category.
func NewConductor(buckets IBucketManager, alerts IAlertPolicyManager, logger zerolog.Logger) *Conductor {
	return &Conductor{
		buckets: buckets,
		alerts:  alerts,
		logger:  logger.With().Str("component", "Conductor").Logger(),
	}
}

// Run reconciles doc. The report is returned even when err is non-nil and
// holds every result that was produced.
func (c *Conductor) Run(ctx context.Context, doc *config.Document, dryRun bool) (*Report, error) {
	log := c.logger.With().Str("environment", doc.Environment.Name).Bool("dry_run", dryRun).Logger()
	log.Info().
		Int("buckets", len(doc.Buckets)).
		Int("alert_policies", len(doc.AlertPolicies)).
		Msg("Starting reconciliation run...")

	report := &Report{
		Environment:   doc.Environment.Name,
		CheckMode:     dryRun,
		Buckets:       []*storage.BucketResult{},
		AlertPolicies: []*alerting.AlertPolicyResult{},
	}

	if len(doc.Buckets) > 0 && c.buckets == nil {
		return report, errors.New("document declares buckets but no bucket manager is configured")
	}
	if len(doc.AlertPolicies) > 0 && c.alerts == nil {
		return report, errors.New("document declares alert policies but no alert policy manager is configured")
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if len(doc.Buckets) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := c.buckets.ReconcileAll(ctx, doc.Buckets, dryRun)
			report.Buckets = results
			if err != nil {
				errChan <- fmt.Errorf("buckets: %w", err)
			}
		}()
	}

	if len(doc.AlertPolicies) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := c.alerts.ReconcileAll(ctx, doc.AlertPolicies, dryRun)
			report.AlertPolicies = results
			if err != nil {
				errChan <- fmt.Errorf("alert policies: %w", err)
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var allErrors []error
	for err := range errChan {
		allErrors = append(allErrors, err)
		report.Errors = append(report.Errors, err.Error())
	}

	for _, r := range report.Buckets {
		if r != nil && r.Changed {
			report.Changed = true
		}
	}
	for _, r := range report.AlertPolicies {
		if r != nil && r.Changed {
			report.Changed = true
		}
	}

	if len(allErrors) > 0 {
		log.Error().Int("failed_categories", len(allErrors)).Msg("Reconciliation run completed with errors.")
		return report, fmt.Errorf("reconciliation run completed with errors: %w", errors.Join(allErrors...))
	}
	log.Info().Bool("changed", report.Changed).Msg("Reconciliation run completed successfully.")
	return report, nil
}
