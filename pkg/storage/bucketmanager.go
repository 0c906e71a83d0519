package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// BucketManager reconciles buckets, their ACLs and their IAM policies against
// declared BucketSpecs through a generic StorageClient.
type BucketManager struct {
	client    StorageClient
	logger    zerolog.Logger
	projectID string
}

// NewBucketManager creates a manager. projectID is the default project for
// specs that do not name one.
func NewBucketManager(client StorageClient, logger zerolog.Logger, projectID string) (*BucketManager, error) {
	if client == nil {
		return nil, errors.New("storage client (StorageClient interface) cannot be nil")
	}
	return &BucketManager{
		client:    client,
		logger:    logger.With().Str("component", "BucketManager").Logger(),
		projectID: projectID,
	}, nil
}

// ReconcileAll reconciles every spec concurrently. Results are returned in spec
// order; a failed bucket's entry holds whatever was computed before the failure
// (or nil if validation failed). Each bucket is independent: a failure in one
// never undoes changes made to another.
func (bm *BucketManager) ReconcileAll(ctx context.Context, specs []BucketSpec, dryRun bool) ([]*BucketResult, error) {
	bm.logger.Info().Int("buckets", len(specs)).Bool("dry_run", dryRun).Msg("Starting bucket reconciliation")

	var wg sync.WaitGroup
	errChan := make(chan error, len(specs))
	results := make([]*BucketResult, len(specs))

	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec BucketSpec) {
			defer wg.Done()
			result, err := bm.Reconcile(ctx, spec, dryRun)
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
		return results, fmt.Errorf("bucket reconciliation completed with errors: %w", errors.Join(allErrors...))
	}

	bm.logger.Info().Msg("Bucket reconciliation completed successfully.")
	return results, nil
}

// Reconcile brings one bucket to the state its spec declares. With dryRun the
// returned result is what a real run would report, but nothing is written.
func (bm *BucketManager) Reconcile(ctx context.Context, spec BucketSpec, dryRun bool) (*BucketResult, error) {
	spec = spec.WithDefaults(bm.projectID)
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	log := bm.logger.With().Str("bucket", spec.Name).Str("state", string(spec.State)).Bool("dry_run", dryRun).Logger()
	handle := bm.client.Bucket(spec.Name)

	attrs, err := handle.Attrs(ctx)
	if err != nil && !errors.Is(err, ErrBucketNotExist) {
		return nil, fmt.Errorf("failed to check existence of bucket '%s': %w", spec.Name, err)
	}

	result := newBucketResult(spec)
	switch spec.State {
	case StatePresent:
		err = bm.ensurePresent(ctx, log, handle, spec, attrs, dryRun, result)
	case StateAbsent:
		err = bm.ensureAbsent(ctx, log, handle, spec, attrs, dryRun, result)
	case StateGet:
		err = bm.describe(ctx, handle, attrs, result)
	}
	if err != nil {
		return result, err
	}

	result.Changed = result.Changed ||
		result.Changes.ACL.Changed ||
		result.Changes.DefaultACL.Changed ||
		result.Changes.IAMPolicy.Changed
	log.Info().Bool("changed", result.Changed).Msg("Bucket reconciled.")
	return result, nil
}

func (bm *BucketManager) ensurePresent(ctx context.Context, log zerolog.Logger, handle BucketHandle, spec BucketSpec, attrs *BucketAttributes, dryRun bool, result *BucketResult) error {
	created := false
	if attrs == nil {
		// Only creating needs a project; existing buckets are found by name.
		if spec.Project == "" {
			return fmt.Errorf("%w: project is required to create bucket '%s'", reconcile.ErrValidation, spec.Name)
		}
		created = true
		result.Changed = true
		attrs = &BucketAttributes{
			Name:              spec.Name,
			Location:          spec.Location,
			StorageClass:      spec.StorageClass,
			VersioningEnabled: spec.VersioningEnabled,
			Labels:            spec.Labels,
		}
		if dryRun {
			log.Info().Msg("Bucket does not exist, would create.")
		} else {
			log.Info().Msg("Bucket does not exist, creating.")
			if err := handle.Create(ctx, spec.Project, attrs); err != nil {
				return fmt.Errorf("failed to create bucket '%s': %w", spec.Name, err)
			}
			log.Info().Msg("Bucket created successfully.")
		}
	}

	// A bucket that only exists in the plan has no remote state to read.
	planned := created && dryRun

	aclNext, aclDiff, err := reconcile.Run(ctx, aclPass("acl", handle.ACL(), spec.ACL, spec.ResetACL, planned), dryRun)
	result.Changes.ACL = aclDiff
	if err != nil {
		return fmt.Errorf("bucket '%s': %w", spec.Name, err)
	}

	defNext, defDiff, err := reconcile.Run(ctx, aclPass("default_acl", handle.DefaultObjectACL(), spec.DefaultACL, spec.ResetDefaultACL, planned), dryRun)
	result.Changes.DefaultACL = defDiff
	if err != nil {
		return fmt.Errorf("bucket '%s': %w", spec.Name, err)
	}

	policy, iamDiff, err := reconcile.Run(ctx, iamPass(handle, spec.IAMPolicy, spec.ResetIAMPolicy, planned), dryRun)
	result.Changes.IAMPolicy = iamDiff
	if err != nil {
		return fmt.Errorf("bucket '%s': %w", spec.Name, err)
	}

	log.Debug().
		Bool("acl_changed", aclDiff.Changed).
		Bool("default_acl_changed", defDiff.Changed).
		Bool("iam_policy_changed", iamDiff.Changed).
		Msg("Permission passes complete.")

	result.Bucket = newBucketView(attrs, aclNext, defNext, policy)
	return nil
}

func (bm *BucketManager) ensureAbsent(ctx context.Context, log zerolog.Logger, handle BucketHandle, spec BucketSpec, attrs *BucketAttributes, dryRun bool, result *BucketResult) error {
	if attrs == nil {
		log.Info().Msg("Bucket does not exist, skipping deletion.")
		return nil
	}
	result.Changed = true

	// Capture the ACLs for the report before they disappear with the bucket.
	acl, err := handle.ACL().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read acl of bucket '%s': %w", spec.Name, err)
	}
	defaultACL, err := handle.DefaultObjectACL().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read default_acl of bucket '%s': %w", spec.Name, err)
	}
	result.Bucket = newBucketView(attrs, acl, defaultACL, nil)

	if dryRun {
		log.Info().Msg("Bucket exists, would delete.")
		return nil
	}

	log.Info().Bool("force", spec.Force).Msg("Attempting to delete bucket...")
	if err := handle.Delete(ctx, spec.Force); err != nil {
		// Provide a more specific error for the common "bucket not empty" case.
		if strings.Contains(strings.ToLower(err.Error()), "not empty") {
			return fmt.Errorf("failed to delete bucket '%s' because it is not empty (set force to delete its objects): %w", spec.Name, err)
		}
		return fmt.Errorf("failed to delete bucket '%s': %w", spec.Name, err)
	}
	log.Info().Msg("Bucket deleted successfully.")
	return nil
}

func (bm *BucketManager) describe(ctx context.Context, handle BucketHandle, attrs *BucketAttributes, result *BucketResult) error {
	if attrs == nil {
		return nil
	}
	acl, err := handle.ACL().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read acl of bucket '%s': %w", attrs.Name, err)
	}
	defaultACL, err := handle.DefaultObjectACL().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read default_acl of bucket '%s': %w", attrs.Name, err)
	}
	policy, err := handle.IAMPolicy(ctx)
	if err != nil {
		return fmt.Errorf("failed to read iam_policy of bucket '%s': %w", attrs.Name, err)
	}
	result.Bucket = newBucketView(attrs, acl, defaultACL, policy)
	return nil
}

func aclPass(name string, h ACLHandle, directives []reconcile.ACLDirective, reset, planned bool) reconcile.Pass[[]reconcile.ACLEntry, reconcile.ACLEntry] {
	return reconcile.Pass[[]reconcile.ACLEntry, reconcile.ACLEntry]{
		Name: name,
		Read: func(ctx context.Context) ([]reconcile.ACLEntry, error) {
			if planned {
				return nil, nil
			}
			return h.List(ctx)
		},
		Compute: func(current []reconcile.ACLEntry) ([]reconcile.ACLEntry, reconcile.Diff[reconcile.ACLEntry]) {
			return reconcile.ReconcileACL(current, directives, reset)
		},
		Write: func(ctx context.Context, current, next []reconcile.ACLEntry) error {
			return saveACL(ctx, h, current, next)
		},
	}
}

// saveACL makes the remote ACL equal to next using only the entries that
// differ from current. Running it again with the same next does nothing.
func saveACL(ctx context.Context, h ACLHandle, current, next []reconcile.ACLEntry) error {
	existing := mapset.NewSet(current...)
	keep := mapset.NewSet[string]()
	for _, e := range next {
		keep.Add(e.Entity)
		if existing.Contains(e) {
			continue
		}
		if err := h.Set(ctx, e.Entity, e.Role); err != nil {
			return fmt.Errorf("failed to grant '%s' to '%s': %w", e.Role, e.Entity, err)
		}
	}

	deleted := mapset.NewSet[string]()
	for _, e := range current {
		if keep.Contains(e.Entity) || deleted.Contains(e.Entity) {
			continue
		}
		if err := h.Delete(ctx, e.Entity); err != nil {
			return fmt.Errorf("failed to revoke '%s': %w", e.Entity, err)
		}
		deleted.Add(e.Entity)
	}
	return nil
}

func iamPass(handle BucketHandle, directives []reconcile.IAMDirective, reset, planned bool) reconcile.Pass[reconcile.Policy, reconcile.IAMBinding] {
	return reconcile.Pass[reconcile.Policy, reconcile.IAMBinding]{
		Name: "iam_policy",
		Read: func(ctx context.Context) (reconcile.Policy, error) {
			if planned {
				return reconcile.Policy{}, nil
			}
			return handle.IAMPolicy(ctx)
		},
		Compute: func(current reconcile.Policy) (reconcile.Policy, reconcile.Diff[reconcile.IAMBinding]) {
			return reconcile.ReconcileIAM(current, directives, reset)
		},
		Write: func(ctx context.Context, _, next reconcile.Policy) error {
			return handle.SetIAMPolicy(ctx, next)
		},
	}
}
