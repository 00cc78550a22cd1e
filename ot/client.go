package ot

import (
	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
)

// Snapshot is the client's committed-state projection: the document as of
// committedRev, with no pending changes applied.
type Snapshot struct {
	State any
	Rev   int64
}

// RebaseChanges drops any local pending change already present in
// serverChanges (by id), then transforms the ops of every surviving change
// against the flattened server ops, re-stamping survivors with the new
// baseRev. baseState is the document as it stood before serverChanges were
// applied (i.e. the old committed state).
func RebaseChanges(baseState any, serverChanges []change.Change, localPending []change.Change, newBaseRev int64) ([]change.Change, error) {
	serverIDs := make(map[string]bool, len(serverChanges))
	for _, c := range serverChanges {
		serverIDs[c.ID] = true
	}

	serverOps := flattenOps(serverChanges)

	out := make([]change.Change, 0, len(localPending))
	nextRev := int64(1)
	for _, c := range localPending {
		if serverIDs[c.ID] {
			continue
		}
		transformed, _, err := transformOpSequence(baseState, serverOps, c.Ops)
		if err != nil {
			return nil, errs.TransformApplyError{Op: "rebase", Err: err}
		}
		if len(transformed) == 0 {
			continue
		}
		out = append(out, change.Change{
			ID:        c.ID,
			Rev:       newBaseRev + nextRev,
			BaseRev:   newBaseRev,
			Ops:       transformed,
			CreatedAt: c.CreatedAt,
			Metadata:  c.Metadata,
			BatchID:   c.BatchID,
		})
		nextRev++
	}
	return out, nil
}

// ApplyCommittedChanges folds newly committed serverChanges into the
// client's committed snapshot and rebases pending against them. It accepts
// a single root-replace change at any rev as a catchup snapshot, bypassing
// the usual rev-contiguity check (spec.md §9 Open Question 3 — trusted to
// only ever carry a full-state snapshot).
func ApplyCommittedChanges(snapshot Snapshot, pending []change.Change, serverChanges []change.Change) (Snapshot, []change.Change, error) {
	var newChanges []change.Change
	for _, c := range serverChanges {
		if c.Rev > snapshot.Rev {
			newChanges = append(newChanges, c)
		}
	}
	if len(newChanges) == 0 {
		return snapshot, pending, nil
	}

	first := newChanges[0]
	if !isCatchup(first) && first.Rev != snapshot.Rev+1 {
		return snapshot, pending, errs.SessionMissingError{ExpectedRev: snapshot.Rev + 1, GotRev: first.Rev}
	}

	oldState := snapshot.State
	state := snapshot.State
	for _, c := range newChanges {
		next, err := patch.ApplyAll(state, c.Ops, patch.Strict)
		if err != nil {
			return snapshot, pending, errs.TransformApplyError{Op: "apply-committed", Err: err}
		}
		state = next
	}
	newRev := newChanges[len(newChanges)-1].Rev

	rebased, err := RebaseChanges(oldState, newChanges, pending, newRev)
	if err != nil {
		return snapshot, pending, err
	}

	return Snapshot{State: state, Rev: newRev}, rebased, nil
}

func isCatchup(c change.Change) bool {
	return len(c.Ops) == 1 && c.Ops[0].Kind == patch.Replace && c.Ops[0].Path.IsRoot()
}

// LiveState applies pending changes' ops, in order, on top of committed
// state to compute the document's current live view.
func LiveState(snapshot Snapshot, pending []change.Change) (any, error) {
	state := snapshot.State
	for _, c := range pending {
		next, err := patch.ApplyAll(state, c.Ops, patch.Strict)
		if err != nil {
			return nil, errs.TransformApplyError{Op: "live-state", Err: err}
		}
		state = next
	}
	return state, nil
}
