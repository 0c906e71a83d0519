package reconcile_test

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

func TestReconcileIAM(t *testing.T) {
	testCases := []struct {
		name        string
		current     map[string][]string
		directives  []reconcile.IAMDirective
		reset       bool
		wantPolicy  map[string][]string
		wantAdded   []reconcile.IAMBinding
		wantRemoved []reconcile.IAMBinding
	}{
		{
			name:       "grant adds to role without touching other roles",
			current:    map[string][]string{"roles/viewer": {"user:alice"}},
			directives: []reconcile.IAMDirective{{Member: "user:alice", Role: "roles/editor"}},
			wantPolicy: map[string][]string{
				"roles/viewer": {"user:alice"},
				"roles/editor": {"user:alice"},
			},
			wantAdded:   []reconcile.IAMBinding{{Role: "roles/editor", Member: "user:alice"}},
			wantRemoved: []reconcile.IAMBinding{},
		},
		{
			name: "revoke without role removes member everywhere",
			current: map[string][]string{
				"roles/viewer": {"user:alice"},
				"roles/editor": {"user:alice"},
			},
			directives: []reconcile.IAMDirective{{Member: "user:alice", Revoke: true}},
			wantPolicy: map[string][]string{},
			wantAdded:  []reconcile.IAMBinding{},
			wantRemoved: []reconcile.IAMBinding{
				{Role: "roles/editor", Member: "user:alice"},
				{Role: "roles/viewer", Member: "user:alice"},
			},
		},
		{
			name:        "revoke with role removes only that binding",
			current:     map[string][]string{"roles/viewer": {"user:alice", "user:bob"}},
			directives:  []reconcile.IAMDirective{{Member: "user:bob", Role: "roles/viewer", Revoke: true}},
			wantPolicy:  map[string][]string{"roles/viewer": {"user:alice"}},
			wantAdded:   []reconcile.IAMBinding{},
			wantRemoved: []reconcile.IAMBinding{{Role: "roles/viewer", Member: "user:bob"}},
		},
		{
			name:        "revoke of absent member is a no-op",
			current:     map[string][]string{"roles/viewer": {"user:alice"}},
			directives:  []reconcile.IAMDirective{{Member: "user:zed", Revoke: true}, {Member: "user:zed", Role: "roles/owner", Revoke: true}},
			wantPolicy:  map[string][]string{"roles/viewer": {"user:alice"}},
			wantAdded:   []reconcile.IAMBinding{},
			wantRemoved: []reconcile.IAMBinding{},
		},
		{
			name:        "reset clears before grants",
			current:     map[string][]string{"roles/viewer": {"user:alice"}},
			directives:  []reconcile.IAMDirective{{Member: "group:ops", Role: "roles/admin"}},
			reset:       true,
			wantPolicy:  map[string][]string{"roles/admin": {"group:ops"}},
			wantAdded:   []reconcile.IAMBinding{{Role: "roles/admin", Member: "group:ops"}},
			wantRemoved: []reconcile.IAMBinding{{Role: "roles/viewer", Member: "user:alice"}},
		},
		{
			name:    "order is respected",
			current: map[string][]string{},
			directives: []reconcile.IAMDirective{
				{Member: "user:alice", Revoke: true},
				{Member: "user:alice", Role: "roles/viewer"},
			},
			wantPolicy:  map[string][]string{"roles/viewer": {"user:alice"}},
			wantAdded:   []reconcile.IAMBinding{{Role: "roles/viewer", Member: "user:alice"}},
			wantRemoved: []reconcile.IAMBinding{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			current := reconcile.NewPolicy(tc.current)
			next, diff := reconcile.ReconcileIAM(current, tc.directives, tc.reset)

			if d := cmp.Diff(tc.wantPolicy, next.Map()); d != "" {
				t.Errorf("policy mismatch (-want +got):\n%s", d)
			}
			if d := cmp.Diff(tc.wantAdded, diff.Added); d != "" {
				t.Errorf("added mismatch (-want +got):\n%s", d)
			}
			if d := cmp.Diff(tc.wantRemoved, diff.Removed); d != "" {
				t.Errorf("removed mismatch (-want +got):\n%s", d)
			}
			assert.Equal(t, len(tc.wantAdded) > 0 || len(tc.wantRemoved) > 0, diff.Changed)

			// The input policy is a snapshot and must survive untouched.
			assert.True(t, current.Equal(reconcile.NewPolicy(tc.current)))

			_, again := reconcile.ReconcileIAM(next, tc.directives, tc.reset)
			assert.False(t, again.Changed)
		})
	}
}

func TestReconcileIAM_ResetEquivalence(t *testing.T) {
	directives := []reconcile.IAMDirective{
		{Member: "user:alice", Role: "roles/viewer"},
		{Member: "user:bob", Role: "roles/editor"},
		{Member: "user:alice", Role: "roles/viewer", Revoke: true},
	}
	start := reconcile.NewPolicy(map[string][]string{"roles/owner": {"user:root"}})

	withReset, _ := reconcile.ReconcileIAM(start, directives, true)
	fromEmpty, _ := reconcile.ReconcileIAM(reconcile.Policy{}, directives, false)

	require.True(t, withReset.Equal(fromEmpty))
}

func TestPolicy_Equal(t *testing.T) {
	a := reconcile.NewPolicy(map[string][]string{"roles/viewer": {"user:a"}, "roles/empty": nil})
	b := reconcile.NewPolicy(map[string][]string{"roles/viewer": {"user:a"}})
	assert.True(t, a.Equal(b))
	assert.True(t, reconcile.PolicyFromBindings(a.Bindings()).Equal(a))
}

func TestReconcileIAM_Properties(t *testing.T) {
	starts := []map[string][]string{
		nil,
		{"roles/viewer": {"user:alice"}},
		{"roles/viewer": {"user:alice", "user:bob"}, "roles/editor": {"user:alice", "group:ops"}},
	}
	directiveLists := [][]reconcile.IAMDirective{
		nil,
		{{Member: "user:bob", Role: "roles/editor"}},
		{{Member: "user:alice", Revoke: true}},
		{{Member: "user:alice", Role: "roles/owner"}, {Member: "user:alice", Revoke: true}},
		{{Member: "user:alice", Revoke: true}, {Member: "user:alice", Role: "roles/viewer"}},
		{{Member: "group:ops", Role: "roles/editor", Revoke: true}, {Member: "user:carol", Role: "roles/viewer"}},
	}

	for _, roles := range starts {
		for _, directives := range directiveLists {
			for _, reset := range []bool{false, true} {
				start := reconcile.NewPolicy(roles)
				next, diff := reconcile.ReconcileIAM(start, directives, reset)

				// Reapplying to the converged state yields no further change.
				_, again := reconcile.ReconcileIAM(next, directives, reset)
				require.False(t, again.Changed, "not idempotent for %v %v reset=%v", roles, directives, reset)

				// next == (original - removed) + added, and added/removed are disjoint.
				rebuilt := diff.Apply(start.Bindings())
				require.True(t, rebuilt.Equal(next.Bindings()), "diff does not rebuild %v %v reset=%v", roles, directives, reset)
				require.True(t, mapset.NewSet(diff.Added...).Intersect(mapset.NewSet(diff.Removed...)).Cardinality() == 0)
				require.Equal(t, !rebuilt.Equal(start.Bindings()), diff.Changed)

				if reset {
					fromEmpty, _ := reconcile.ReconcileIAM(reconcile.NewPolicy(nil), directives, false)
					require.True(t, fromEmpty.Equal(next), "reset differs from empty start for %v %v", roles, directives)
				}
			}
		}
	}
}
