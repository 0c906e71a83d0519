package reconcile

import (
	"errors"
	"fmt"
)

// ACLDirective grants or revokes an entity's role. A revoke with an empty Role
// removes every role held by the entity.
type ACLDirective struct {
	Entity string `yaml:"entity" json:"entity"`
	Role   string `yaml:"role,omitempty" json:"role,omitempty"`
	Revoke bool   `yaml:"revoke,omitempty" json:"revoke,omitempty"`
}

// IAMDirective grants or revokes a member's role. A revoke with an empty Role
// removes the member from every role in the policy.
type IAMDirective struct {
	Member string `yaml:"member" json:"member"`
	Role   string `yaml:"role,omitempty" json:"role,omitempty"`
	Revoke bool   `yaml:"revoke,omitempty" json:"revoke,omitempty"`
}

// ValidateACLDirectives checks every directive has the fields its kind needs.
// All problems are reported together.
func ValidateACLDirectives(directives []ACLDirective) error {
	var errs []error
	for i, d := range directives {
		if d.Entity == "" {
			errs = append(errs, fmt.Errorf("%w: acl directive %d: entity is required", ErrValidation, i))
			continue
		}
		if !d.Revoke && d.Role == "" {
			errs = append(errs, fmt.Errorf("%w: acl directive %d (%s): role is required for a grant", ErrValidation, i, d.Entity))
		}
	}
	return errors.Join(errs...)
}

// ValidateIAMDirectives is the IAM counterpart of ValidateACLDirectives.
func ValidateIAMDirectives(directives []IAMDirective) error {
	var errs []error
	for i, d := range directives {
		if d.Member == "" {
			errs = append(errs, fmt.Errorf("%w: iam directive %d: member is required", ErrValidation, i))
			continue
		}
		if !d.Revoke && d.Role == "" {
			errs = append(errs, fmt.Errorf("%w: iam directive %d (%s): role is required for a grant", ErrValidation, i, d.Member))
		}
	}
	return errors.Join(errs...)
}
