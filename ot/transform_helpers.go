// Package ot implements the Operational Transformation engine: client-side
// rebase of pending changes against newly committed server changes, and the
// server-side commit pipeline with offline-session versioning.
package ot

import (
	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// transformOpSequence transforms ops against priorOps applied in order,
// starting from baseState (the state before priorOps[0]). It returns the
// surviving, transformed ops and the state that results from applying
// priorOps (useful to callers that need to continue building on top of it).
// An op dropped by any step of the transform is omitted from the result.
func transformOpSequence(baseState any, priorOps []patch.Op, ops []patch.Op) ([]patch.Op, any, error) {
	state := baseState
	cur := ops
	for _, a := range priorOps {
		var next []patch.Op
		for _, b := range cur {
			tb, keep, err := patch.Transform(state, a, b)
			if err != nil {
				return nil, nil, err
			}
			if keep {
				next = append(next, tb)
			}
		}
		cur = next

		advanced, err := patch.Apply(state, a, patch.Strict)
		if err != nil {
			return nil, nil, err
		}
		state = advanced

		if len(cur) == 0 {
			// Nothing left to transform against the remaining prior ops,
			// but we still need the fully-advanced state for the caller.
			continue
		}
	}
	return cur, state, nil
}

// TransformIncomingChanges transforms a single incoming op list against a
// flattened sequence of already-committed ops, exposed standalone because
// both the client rebase path and the server offline-collapse path need it.
func TransformIncomingChanges(baseState any, committedOps []patch.Op, incoming []patch.Op) ([]patch.Op, error) {
	out, _, err := transformOpSequence(baseState, committedOps, incoming)
	return out, err
}

func flattenOps(changes []change.Change) []patch.Op {
	var out []patch.Op
	for _, c := range changes {
		out = append(out, c.Ops...)
	}
	return out
}
