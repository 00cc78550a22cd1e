package lww

import (
	"context"
	"sort"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

// CommitOps runs the server-side LWW commit: each incoming op evicts any
// existing op at the same path or under it, unless it is a combinable op
// that instead merges in place with an existing op of the same kind at that
// path (keeping the later ts). The store assigns each persisted op a fresh
// monotonic rev; the result carries those revs for the broadcast message.
func CommitOps(ctx context.Context, store serverstore.LWWStore, docID string, incoming []change.TimedOp) ([]change.TimedOp, error) {
	if len(incoming) == 0 {
		return nil, nil
	}

	existing, err := store.ListFieldOps(ctx, docID)
	if err != nil {
		return nil, errs.StorageError{Op: "list-field-ops", Err: err}
	}

	result := ConsolidateOps(existing, incoming)
	if len(result.OpsToSave) == 0 {
		return nil, nil
	}

	saved, err := store.SaveFieldOps(ctx, docID, result.OpsToSave, result.PathsToDelete)
	if err != nil {
		return nil, errs.StorageError{Op: "save-field-ops", Err: err}
	}
	return saved, nil
}

// Reconstruct replays a document's live field ops onto base (the prior
// baked snapshot, or nil for a brand-new document), newer-ts winning at
// each path and children of an overridden parent discarded, per spec.md
// §3's LWW replica definition ("apply snapshot then all ops").
func Reconstruct(base any, ops []change.TimedOp) (any, error) {
	byPath := make(map[string]change.TimedOp, len(ops))
	for _, op := range ops {
		key := op.Op.Path.String()
		if cur, ok := byPath[key]; !ok || op.TS >= cur.TS {
			byPath[key] = op
		}
	}

	live := make([]change.TimedOp, 0, len(byPath))
	for key, op := range byPath {
		p := patch.ParsePath(key)
		shadowed := false
		for otherKey, other := range byPath {
			if otherKey == key {
				continue
			}
			if patch.ParsePath(otherKey).StrictlyUnder(p) && other.TS >= op.TS {
				shadowed = true
				break
			}
		}
		if !shadowed {
			live = append(live, op)
		}
	}
	// Parents before children, so a surviving child lands inside its parent.
	sort.SliceStable(live, func(i, j int) bool { return len(live[i].Op.Path) < len(live[j].Op.Path) })

	state := base
	for _, op := range live {
		applyOp := op.Op
		if applyOp.Kind == patch.Replace {
			// A winning Replace may be the only surviving op at a path whose
			// establishing Add was evicted by consolidation; replaying it as
			// an upsert (Add semantics never require prior existence) keeps
			// reconstruction from-scratch safe without losing the value.
			applyOp.Kind = patch.Add
		}
		next, err := patch.Apply(state, applyOp, patch.NonStrict)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// SnapshotOptions configures a PruneWithSnapshot call.
type SnapshotOptions struct {
	// EveryN triggers a prune once at least this many field ops have
	// accumulated since the last snapshot. Zero disables pruning.
	EveryN int
}

// PruneWithSnapshot bakes the document's current live state into a version
// snapshot and reports which persisted ops (by rev) are now safe to prune,
// once the field-op count crosses opts.EveryN. Returns ok=false if pruning
// is not due yet.
func PruneWithSnapshot(ctx context.Context, store serverstore.LWWStore, docID string, opts SnapshotOptions) (prunableUpToRev int64, state any, ok bool, err error) {
	if opts.EveryN <= 0 {
		return 0, nil, false, nil
	}
	ops, err := store.ListFieldOps(ctx, docID)
	if err != nil {
		return 0, nil, false, errs.StorageError{Op: "list-field-ops", Err: err}
	}
	if len(ops) < opts.EveryN {
		return 0, nil, false, nil
	}
	state, err = Reconstruct(nil, ops)
	if err != nil {
		return 0, nil, false, err
	}
	var maxRev int64
	for _, op := range ops {
		if op.Rev > maxRev {
			maxRev = op.Rev
		}
	}
	return maxRev, state, true, nil
}
