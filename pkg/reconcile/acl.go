package reconcile

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// ReconcileACL applies directives, in order, to a snapshot of the current ACL
// and reports the resulting entries together with what changed. The input
// slice is never modified.
//
// A grant replaces whatever role the entity held before, so a later directive
// for the same entity always wins.
func ReconcileACL(current []ACLEntry, directives []ACLDirective, reset bool) ([]ACLEntry, Diff[ACLEntry]) {
	original := mapset.NewSet(current...)

	working := original.Clone()
	if reset {
		working.Clear()
	}

	for _, d := range directives {
		switch {
		case d.Revoke && d.Role != "":
			working.Remove(ACLEntry{Entity: d.Entity, Role: d.Role})
		case d.Revoke:
			removeEntity(working, d.Entity)
		default:
			removeEntity(working, d.Entity)
			working.Add(ACLEntry{Entity: d.Entity, Role: d.Role})
		}
	}

	return sortedSlice(working), NewDiff(original, working)
}

func removeEntity(s mapset.Set[ACLEntry], entity string) {
	for _, e := range s.ToSlice() {
		if e.Entity == entity {
			s.Remove(e)
		}
	}
}
