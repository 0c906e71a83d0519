package reconcile

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Diff records what a reconciliation pass changed. Added and Removed are
// disjoint and sorted by binding key.
type Diff[B Binding] struct {
	Changed bool `yaml:"changed" json:"changed"`
	Added   []B  `yaml:"added" json:"added"`
	Removed []B  `yaml:"removed" json:"removed"`
}

// NoChange returns an empty diff. Added and Removed are non-nil so they render
// as empty lists rather than null.
func NoChange[B Binding]() Diff[B] {
	return Diff[B]{Added: []B{}, Removed: []B{}}
}

// NewDiff computes after-before and before-after.
func NewDiff[B Binding](before, after mapset.Set[B]) Diff[B] {
	added := sortedSlice(after.Difference(before))
	removed := sortedSlice(before.Difference(after))
	return Diff[B]{
		Changed: len(added) > 0 || len(removed) > 0,
		Added:   added,
		Removed: removed,
	}
}

// Apply returns (before - removed) + added.
func (d Diff[B]) Apply(before mapset.Set[B]) mapset.Set[B] {
	result := before.Clone()
	result.RemoveAll(d.Removed...)
	result.Append(d.Added...)
	return result
}

func sortedSlice[B Binding](s mapset.Set[B]) []B {
	out := s.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
