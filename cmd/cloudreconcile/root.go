package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/alerting"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/orchestration"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/prerequisites"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/storage"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	settings config.Settings
	logger   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	root := &cobra.Command{
		Use:           "cloudreconcile",
		Short:         "Reconcile GCS buckets and Cloud Monitoring alert policies against a declared state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return a.fail(err)
			}
			settings, err := config.LoadSettings(v)
			if err != nil {
				return a.fail(err)
			}
			a.settings = settings
			a.logger = zerolog.New(os.Stderr).Level(settings.LogLevel).With().Timestamp().Logger()
			return nil
		},
	}
	config.AddFlags(root.PersistentFlags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return a.fail(err)
	})

	root.AddCommand(newApplyCmd(a), newBucketCmd(a), newAlertPolicyCmd(a))
	return root
}

func newApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile every resource declared in a config document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.settings.ConfigPath == "" {
				return a.fail(errors.New("--config is required"))
			}
			doc, err := config.LoadDocument(a.settings.ConfigPath, config.WithDefaultProject(a.settings.ProjectID))
			if err != nil {
				return a.fail(err)
			}
			return a.apply(cmd.Context(), doc)
		},
	}
	cmd.Flags().String("config", "", "Path to the YAML config document")
	return cmd
}

func newBucketCmd(a *app) *cobra.Command {
	var args string
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Reconcile a single bucket given inline as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := config.ParseBucketArgs([]byte(args))
			if err != nil {
				return a.fail(err)
			}
			doc := &config.Document{
				Environment: config.Environment{ProjectID: a.settings.ProjectID},
				Buckets:     []storage.BucketSpec{spec},
			}
			return a.apply(cmd.Context(), doc)
		},
	}
	cmd.Flags().StringVar(&args, "args", "", "Bucket spec as YAML, e.g. '{name: my-bucket, state: get}'")
	_ = cmd.MarkFlagRequired("args")
	return cmd
}

func newAlertPolicyCmd(a *app) *cobra.Command {
	var args string
	cmd := &cobra.Command{
		Use:   "alert-policy",
		Short: "Reconcile a single alert policy given inline as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := config.ParseAlertPolicyArgs([]byte(args))
			if err != nil {
				return a.fail(err)
			}
			doc := &config.Document{
				Environment:   config.Environment{ProjectID: a.settings.ProjectID},
				AlertPolicies: []alerting.AlertPolicySpec{spec},
			}
			return a.apply(cmd.Context(), doc)
		},
	}
	cmd.Flags().StringVar(&args, "args", "", "Alert policy spec as YAML")
	_ = cmd.MarkFlagRequired("args")
	return cmd
}

// apply creates only the clients doc needs, runs the conductor and writes the
// report to stdout. The report is written even when the run fails.
func (a *app) apply(ctx context.Context, doc *config.Document) error {
	if ctx == nil {
		ctx = context.Background()
	}
	projectID := doc.Environment.ProjectID

	if a.settings.EnableAPIs {
		if err := a.enableAPIs(ctx, projectID, doc); err != nil {
			return a.fail(err)
		}
	}

	var buckets orchestration.IBucketManager
	if len(doc.Buckets) > 0 {
		client, err := storage.CreateGoogleGCSClient(ctx)
		if err != nil {
			return a.fail(err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Error closing storage client")
			}
		}()
		bm, err := storage.NewBucketManager(client, a.logger, projectID)
		if err != nil {
			return a.fail(err)
		}
		buckets = bm
	}

	var alerts orchestration.IAlertPolicyManager
	if len(doc.AlertPolicies) > 0 {
		client, err := alerting.NewGoogleMonitoringClient(ctx, a.logger)
		if err != nil {
			return a.fail(err)
		}
		defer func() { _ = client.Close() }()
		am, err := alerting.NewManager(client, a.logger, projectID)
		if err != nil {
			return a.fail(err)
		}
		alerts = am
	}

	report, runErr := orchestration.NewConductor(buckets, alerts, a.logger).Run(ctx, doc, a.settings.Check)

	writer, err := orchestration.NewReportWriter(os.Stdout, a.settings.Output)
	if err != nil {
		return a.fail(err)
	}
	defer writer.Close()
	if err := writer.Write(ctx, report); err != nil {
		return a.fail(err)
	}
	if runErr != nil {
		return a.fail(runErr)
	}
	return nil
}

func (a *app) enableAPIs(ctx context.Context, projectID string, doc *config.Document) error {
	if len(prerequisites.PlanRequiredServices(doc)) == 0 {
		return nil
	}
	client, err := prerequisites.NewGoogleServiceAPIClient(ctx, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	pm, err := prerequisites.NewManager(client, a.logger)
	if err != nil {
		return err
	}
	_, err = pm.CheckAndEnable(ctx, projectID, doc, a.settings.Check)
	return err
}

func (a *app) fail(err error) error {
	a.logger.Error().Err(err).Msg("cloudreconcile failed")
	return err
}
