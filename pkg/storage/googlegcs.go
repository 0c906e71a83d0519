package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/iam/apiv1/iampb"
	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// --- Conversion Functions ---

func fromGCSBucketAttrs(gcsAttrs *gcs.BucketAttrs) *BucketAttributes {
	if gcsAttrs == nil {
		return nil
	}
	return &BucketAttributes{
		Name:              gcsAttrs.Name,
		Location:          gcsAttrs.Location,
		StorageClass:      gcsAttrs.StorageClass,
		ProjectNumber:     gcsAttrs.ProjectNumber,
		VersioningEnabled: gcsAttrs.VersioningEnabled,
		Labels:            gcsAttrs.Labels,
	}
}

func toGCSBucketAttrs(attrs *BucketAttributes) *gcs.BucketAttrs {
	if attrs == nil {
		return nil
	}
	return &gcs.BucketAttrs{
		Name:              attrs.Name,
		Location:          attrs.Location,
		StorageClass:      attrs.StorageClass,
		VersioningEnabled: attrs.VersioningEnabled,
		Labels:            attrs.Labels,
	}
}

func fromGCSACLRules(rules []gcs.ACLRule) []reconcile.ACLEntry {
	entries := make([]reconcile.ACLEntry, 0, len(rules))
	for _, r := range rules {
		entries = append(entries, reconcile.ACLEntry{Entity: string(r.Entity), Role: string(r.Role)})
	}
	return entries
}

// policyFromIAM flattens the unconditional bindings of a version 3 policy into
// our typed policy. Conditional bindings are not part of the reconciled state.
func policyFromIAM(p *iam.Policy3) reconcile.Policy {
	roles := make(map[string][]string)
	for _, b := range p.Bindings {
		if b.GetCondition() != nil {
			continue
		}
		roles[b.GetRole()] = append(roles[b.GetRole()], b.GetMembers()...)
	}
	return reconcile.NewPolicy(roles)
}

// rewritePolicy edits p in place so that its unconditional bindings grant
// exactly the bindings in next. Conditional bindings are kept as they are. The
// etag fetched with p is kept, so a concurrent change makes the following
// SetPolicy fail rather than silently overwrite it.
func rewritePolicy(p *iam.Policy3, next reconcile.Policy) {
	desired := next.Map()
	bindings := make([]*iampb.Binding, 0, len(p.Bindings)+len(desired))
	for _, role := range slices.Sorted(maps.Keys(desired)) {
		bindings = append(bindings, &iampb.Binding{Role: role, Members: desired[role]})
	}
	for _, b := range p.Bindings {
		if b.GetCondition() != nil {
			bindings = append(bindings, b)
		}
	}
	p.Bindings = bindings
}

// --- GCS ACL Adapter ---

type gcsACLAdapter struct {
	acl *gcs.ACLHandle
}

func (a *gcsACLAdapter) List(ctx context.Context) ([]reconcile.ACLEntry, error) {
	rules, err := a.acl.List(ctx)
	if err != nil {
		return nil, err
	}
	return fromGCSACLRules(rules), nil
}

func (a *gcsACLAdapter) Set(ctx context.Context, entity, role string) error {
	return a.acl.Set(ctx, gcs.ACLEntity(entity), gcs.ACLRole(role))
}

func (a *gcsACLAdapter) Delete(ctx context.Context, entity string) error {
	return a.acl.Delete(ctx, gcs.ACLEntity(entity))
}

// --- GCS Handle/Client Adapters ---

type gcsBucketHandleAdapter struct {
	bucket *gcs.BucketHandle
}

func (a *gcsBucketHandleAdapter) Attrs(ctx context.Context) (*BucketAttributes, error) {
	gcsAttrs, err := a.bucket.Attrs(ctx)
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return nil, ErrBucketNotExist
	}
	if err != nil {
		return nil, err
	}
	return fromGCSBucketAttrs(gcsAttrs), nil
}

func (a *gcsBucketHandleAdapter) Create(ctx context.Context, projectID string, attrs *BucketAttributes) error {
	return a.bucket.Create(ctx, projectID, toGCSBucketAttrs(attrs))
}

func (a *gcsBucketHandleAdapter) Delete(ctx context.Context, force bool) error {
	if force {
		if err := a.deleteAllObjects(ctx); err != nil {
			return err
		}
	}
	return a.bucket.Delete(ctx)
}

// deleteAllObjects removes every object generation so that a versioned bucket
// can be deleted too.
func (a *gcsBucketHandleAdapter) deleteAllObjects(ctx context.Context) error {
	it := a.bucket.Objects(ctx, &gcs.Query{Versions: true})
	for {
		objAttrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		err = a.bucket.Object(objAttrs.Name).Generation(objAttrs.Generation).Delete(ctx)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete object '%s': %w", objAttrs.Name, err)
		}
	}
}

func (a *gcsBucketHandleAdapter) ACL() ACLHandle {
	return &gcsACLAdapter{acl: a.bucket.ACL()}
}

func (a *gcsBucketHandleAdapter) DefaultObjectACL() ACLHandle {
	return &gcsACLAdapter{acl: a.bucket.DefaultObjectACL()}
}

func (a *gcsBucketHandleAdapter) IAMPolicy(ctx context.Context) (reconcile.Policy, error) {
	policy, err := a.bucket.IAM().V3().Policy(ctx)
	if err != nil {
		return nil, err
	}
	return policyFromIAM(policy), nil
}

func (a *gcsBucketHandleAdapter) SetIAMPolicy(ctx context.Context, next reconcile.Policy) error {
	handle := a.bucket.IAM().V3()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return fmt.Errorf("failed to get policy: %w", err)
	}
	rewritePolicy(policy, next)
	return handle.SetPolicy(ctx, policy)
}

// gcsClientAdapter wraps a *storage.Client to conform to our StorageClient interface.
type gcsClientAdapter struct {
	client *gcs.Client
}

func (a *gcsClientAdapter) Bucket(name string) BucketHandle {
	return &gcsBucketHandleAdapter{bucket: a.client.Bucket(name)}
}

func (a *gcsClientAdapter) Close() error {
	return a.client.Close()
}

// NewGCSClientAdapter creates a new StorageClient adapter from a concrete *storage.Client.
func NewGCSClientAdapter(client *gcs.Client) StorageClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

// CreateGoogleGCSClient creates a real GCS client wrapped in the StorageClient interface.
func CreateGoogleGCSClient(ctx context.Context, clientOpts ...option.ClientOption) (StorageClient, error) {
	realClient, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return NewGCSClientAdapter(realClient), nil
}
