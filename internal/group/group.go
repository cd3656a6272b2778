// Package group partitions a linear evaluator chain into 1-3
// thread-groups along "can-overlap" boundaries, so overlappable
// endpoints (a CPU decoder, a CPU save-prep stage) can pipeline with a
// compute-heavy middle on a different device instead of serializing with
// it.
package group

import (
	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/evaluator"
)

// Group is a contiguous, thread-scoped slice of the evaluator chain.
type Group struct {
	Factories []evaluator.Factory
	// StartIndex is this group's offset into the original chain, used by
	// the evaluate worker to report EvaluatorContractViolation with the
	// right absolute evaluator index.
	StartIndex int
}

// Partition applies the factory-grouping rule to an ordered evaluator
// factory chain.
func Partition(chain []evaluator.Factory) ([]Group, error) {
	n := len(chain)
	if n == 0 {
		return nil, enginerr.CorruptMetadataf("group: evaluator chain must not be empty")
	}

	if n == 1 {
		return []Group{{Factories: chain, StartIndex: 0}}, nil
	}

	front := chain[0]
	back := chain[n-1]
	middle := chain[1: n-1]

	var groups []Group
	if front.Capabilities().CanOverlap {
		groups = append(groups, Group{Factories: chain[0:1], StartIndex: 0})
		if len(middle) > 0 {
			groups = append(groups, Group{Factories: middle, StartIndex: 1})
		}
	} else {
		groups = append(groups, Group{Factories: chain[0: n-1], StartIndex: 0})
	}

	if back.Capabilities().CanOverlap {
		groups = append(groups, Group{Factories: chain[n-1:], StartIndex: n - 1})
	} else {
		last := len(groups) - 1
		groups[last].Factories = append(groups[last].Factories, back)
	}

	if len(groups) > 3 {
		return nil, enginerr.CorruptMetadataf("group: expected at most 3 groups, computed %d", len(groups))
	}

	return groups, nil
}
