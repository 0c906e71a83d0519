package storage

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// ErrBucketNotExist is returned by BucketHandle.Attrs when the bucket is not
// found. This lets the manager test for the condition without depending on a
// specific provider's error types.
var ErrBucketNotExist = errors.New("storage: bucket does not exist")

// BucketAttributes are the bucket properties the reconciler reads and reports.
type BucketAttributes struct {
	Name              string
	Location          string
	StorageClass      string
	ProjectNumber     uint64
	VersioningEnabled bool
	Labels            map[string]string
}

// ACLHandle reads and edits one access control list of a bucket: either the
// bucket ACL itself or the default ACL applied to new objects.
type ACLHandle interface {
	List(ctx context.Context) ([]reconcile.ACLEntry, error)
	// Set grants role to entity, replacing any role the entity already had.
	Set(ctx context.Context, entity, role string) error
	Delete(ctx context.Context, entity string) error
}

// BucketHandle defines the operations the manager needs on a single bucket.
type BucketHandle interface {
	Attrs(ctx context.Context) (*BucketAttributes, error)
	Create(ctx context.Context, projectID string, attrs *BucketAttributes) error
	// Delete removes the bucket. With force, every object (and object version)
	// is deleted first.
	Delete(ctx context.Context, force bool) error

	ACL() ACLHandle
	DefaultObjectACL() ACLHandle

	IAMPolicy(ctx context.Context) (reconcile.Policy, error)
	// SetIAMPolicy replaces the bucket's bindings with exactly those in policy.
	SetIAMPolicy(ctx context.Context, policy reconcile.Policy) error
}

// StorageClient defines a generic interface for a storage client.
type StorageClient interface {
	Bucket(name string) BucketHandle
	Close() error
}
