package reconcile

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Policy maps a role to the set of members granted it. Roles with no members
// are not significant: two policies that differ only by empty roles are Equal.
type Policy map[string]mapset.Set[string]

// NewPolicy builds a policy from a plain role -> members map.
func NewPolicy(roles map[string][]string) Policy {
	p := make(Policy, len(roles))
	for role, members := range roles {
		for _, m := range members {
			p.add(role, m)
		}
	}
	return p
}

// PolicyFromBindings is the inverse of Policy.Bindings.
func PolicyFromBindings(bindings mapset.Set[IAMBinding]) Policy {
	p := make(Policy)
	bindings.Each(func(b IAMBinding) bool {
		p.add(b.Role, b.Member)
		return false
	})
	return p
}

// Clone returns a deep copy; member sets are not shared with the receiver.
func (p Policy) Clone() Policy {
	out := make(Policy, len(p))
	for role, members := range p {
		out[role] = members.Clone()
	}
	return out
}

// Bindings flattens the policy into (role, member) pairs.
func (p Policy) Bindings() mapset.Set[IAMBinding] {
	out := mapset.NewSet[IAMBinding]()
	for role, members := range p {
		members.Each(func(m string) bool {
			out.Add(IAMBinding{Role: role, Member: m})
			return false
		})
	}
	return out
}

// Equal reports whether both policies grant the same bindings.
func (p Policy) Equal(other Policy) bool {
	return p.Bindings().Equal(other.Bindings())
}

// Map renders the policy with sorted members, omitting empty roles.
func (p Policy) Map() map[string][]string {
	out := make(map[string][]string, len(p))
	for role, members := range p {
		if members.Cardinality() == 0 {
			continue
		}
		list := members.ToSlice()
		sort.Strings(list)
		out[role] = list
	}
	return out
}

func (p Policy) add(role, member string) {
	members, ok := p[role]
	if !ok {
		members = mapset.NewSet[string]()
		p[role] = members
	}
	members.Add(member)
}

func (p Policy) remove(role, member string) {
	members, ok := p[role]
	if !ok {
		return
	}
	members.Remove(member)
	if members.Cardinality() == 0 {
		delete(p, role)
	}
}

// ReconcileIAM applies directives, in order, to a copy of the current policy.
// A grant only adds the member to the named role; a revoke without a role
// removes the member from every role the policy held when the revoke ran.
func ReconcileIAM(current Policy, directives []IAMDirective, reset bool) (Policy, Diff[IAMBinding]) {
	original := current.Bindings()

	working := current.Clone()
	if reset {
		working = make(Policy)
	}

	for _, d := range directives {
		switch {
		case d.Revoke && d.Role != "":
			working.remove(d.Role, d.Member)
		case d.Revoke:
			roles := make([]string, 0, len(working))
			for role := range working {
				roles = append(roles, role)
			}
			for _, role := range roles {
				working.remove(role, d.Member)
			}
		default:
			working.add(d.Role, d.Member)
		}
	}

	return working, NewDiff(original, working.Bindings())
}
