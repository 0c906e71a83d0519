package storage

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// BucketState is the state a BucketSpec asks for.
type BucketState string

const (
	// StateGet only reports the bucket; nothing is changed.
	StateGet BucketState = "get"
	// StatePresent creates the bucket if needed and reconciles its ACLs and IAM policy.
	StatePresent BucketState = "present"
	// StateAbsent deletes the bucket if it exists.
	StateAbsent BucketState = "absent"
)

const (
	DefaultLocation     = "US-WEST1"
	DefaultStorageClass = "STANDARD"
)

// BucketSpec declares the desired state of one bucket.
type BucketSpec struct {
	Name              string            `yaml:"name"`
	State             BucketState       `yaml:"state,omitempty"`
	Location          string            `yaml:"location,omitempty"`
	Project           string            `yaml:"project,omitempty"`
	StorageClass      string            `yaml:"storage_class,omitempty"`
	VersioningEnabled bool              `yaml:"versioning_enabled,omitempty"`
	Labels            map[string]string `yaml:"labels,omitempty"`
	// Force deletes every object before deleting the bucket.
	Force bool `yaml:"force,omitempty"`

	ACL             []reconcile.ACLDirective `yaml:"acl,omitempty"`
	ResetACL        bool                     `yaml:"reset_acl,omitempty"`
	DefaultACL      []reconcile.ACLDirective `yaml:"default_acl,omitempty"`
	ResetDefaultACL bool                     `yaml:"reset_default_acl,omitempty"`
	IAMPolicy       []reconcile.IAMDirective `yaml:"iam_policy,omitempty"`
	ResetIAMPolicy  bool                     `yaml:"reset_iam_policy,omitempty"`
}

// WithDefaults fills unset fields. projectID is used when Project is empty.
func (s BucketSpec) WithDefaults(projectID string) BucketSpec {
	if s.State == "" {
		s.State = StatePresent
	}
	if s.Location == "" {
		s.Location = DefaultLocation
	}
	if s.StorageClass == "" {
		s.StorageClass = DefaultStorageClass
	}
	if s.Project == "" {
		s.Project = projectID
	}
	return s
}

// Validate checks the spec before any remote call is made.
func (s BucketSpec) Validate() error {
	var errs []error
	if !IsValidBucketName(s.Name) {
		errs = append(errs, fmt.Errorf("%w: bucket name '%s' is not valid", reconcile.ErrValidation, s.Name))
	}
	switch s.State {
	case StateGet, StatePresent, StateAbsent:
	default:
		errs = append(errs, fmt.Errorf("%w: unexpected state '%s'", reconcile.ErrValidation, s.State))
	}
	if s.StorageClass != "" && !IsValidStorageClass(s.StorageClass) {
		errs = append(errs, fmt.Errorf("%w: unknown storage class '%s'", reconcile.ErrValidation, s.StorageClass))
	}
	errs = append(errs,
		reconcile.ValidateACLDirectives(s.ACL),
		reconcile.ValidateACLDirectives(s.DefaultACL),
		reconcile.ValidateIAMDirectives(s.IAMPolicy),
	)
	return errors.Join(errs...)
}

// BucketView is the reported shape of a bucket after reconciliation.
type BucketView struct {
	Name          string               `yaml:"name" json:"name"`
	Location      string               `yaml:"location" json:"location"`
	StorageClass  string               `yaml:"storage_class" json:"storage_class"`
	ProjectNumber uint64               `yaml:"project_number" json:"project_number"`
	ACL           []reconcile.ACLEntry `yaml:"acl" json:"acl"`
	DefaultACL    []reconcile.ACLEntry `yaml:"default_acl" json:"default_acl"`
	IAMPolicy     map[string][]string  `yaml:"iam_policy" json:"iam_policy"`
}

// BucketChanges groups the three per-collection diffs of one bucket.
type BucketChanges struct {
	ACL        reconcile.Diff[reconcile.ACLEntry]   `yaml:"acl" json:"acl"`
	DefaultACL reconcile.Diff[reconcile.ACLEntry]   `yaml:"default_acl" json:"default_acl"`
	IAMPolicy  reconcile.Diff[reconcile.IAMBinding] `yaml:"iam_policy" json:"iam_policy"`
}

// BucketResult is the outcome of reconciling one BucketSpec.
type BucketResult struct {
	Name    string        `yaml:"name" json:"name"`
	Changed bool          `yaml:"changed" json:"changed"`
	State   BucketState   `yaml:"state" json:"state"`
	Bucket  *BucketView   `yaml:"bucket" json:"bucket"`
	Changes BucketChanges `yaml:"changes" json:"changes"`
}

func newBucketResult(spec BucketSpec) *BucketResult {
	return &BucketResult{
		Name:  spec.Name,
		State: spec.State,
		Changes: BucketChanges{
			ACL:        reconcile.NoChange[reconcile.ACLEntry](),
			DefaultACL: reconcile.NoChange[reconcile.ACLEntry](),
			IAMPolicy:  reconcile.NoChange[reconcile.IAMBinding](),
		},
	}
}

func newBucketView(attrs *BucketAttributes, acl, defaultACL []reconcile.ACLEntry, policy reconcile.Policy) *BucketView {
	if acl == nil {
		acl = []reconcile.ACLEntry{}
	}
	if defaultACL == nil {
		defaultACL = []reconcile.ACLEntry{}
	}
	return &BucketView{
		Name:          attrs.Name,
		Location:      attrs.Location,
		StorageClass:  attrs.StorageClass,
		ProjectNumber: attrs.ProjectNumber,
		ACL:           acl,
		DefaultACL:    defaultACL,
		IAMPolicy:     policy.Map(),
	}
}
