// Package progress computes which clue stage a user has unlocked.
//
// Anchors carry an integer clue index. A stage is complete once every anchor
// sharing that index is in the user's solved set; the unlocked index is the
// first incomplete stage walking the distinct indices in ascending order.
package progress

import (
	"sort"

	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// SolvedSet is the set of anchor ids a user has solved in one map.
// It only ever grows; there is no unsolve.
type SolvedSet map[string]struct{}

// NewSolvedSet builds a set from a list of solved anchor ids.
func NewSolvedSet(ids ...string) SolvedSet {
	s := make(SolvedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add records a solve. Adding the same id twice is harmless.
func (s SolvedSet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether the anchor has been solved.
func (s SolvedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// UnlockedIndex returns the clue stage currently accessible to the user.
//
// The distinct clue indices present across the anchors are walked in
// ascending order; the first index whose anchors are not all solved is the
// unlocked index. If every stage is fully solved the maximum index is
// unlocked, and with no anchors at all the result is 1.
//
// The function is pure and idempotent: the same snapshot and solved set
// always yield the same result.
func UnlockedIndex(anchors []*anchor.Anchor, solved SolvedSet) int {
	if len(anchors) == 0 {
		return 1
	}

	seen := make(map[int]struct{})
	indices := make([]int, 0, len(anchors))
	for _, a := range anchors {
		if a == nil {
			continue
		}
		if _, ok := seen[a.ClueIndex]; ok {
			continue
		}
		seen[a.ClueIndex] = struct{}{}
		indices = append(indices, a.ClueIndex)
	}
	if len(indices) == 0 {
		return 1
	}
	sort.Ints(indices)

	for _, idx := range indices {
		for _, a := range anchors {
			if a == nil || a.ClueIndex != idx {
				continue
			}
			if !solved.Has(a.ID) {
				// First stage with an unsolved anchor is the
				// current one.
				return idx
			}
		}
	}

	// Everything solved: the last stage stays unlocked.
	return indices[len(indices)-1]
}
