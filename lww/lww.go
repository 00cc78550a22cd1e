// Package lww implements the Last-Write-Wins reconciliation strategy: a
// per-path timestamp ordering over JSON-Patch ops, with combinable ops
// (@inc/@bit/@min/@max) merging in place rather than evicting one another.
package lww

import (
	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// ConsolidateResult is consolidateOps' return value: the ops to persist and
// the paths whose existing op (and descendants) must be deleted first.
type ConsolidateResult struct {
	OpsToSave     []change.TimedOp
	PathsToDelete []string
}

// ConsolidateOps folds newOps into existingOps under field-level LWW:
// a new op at path P loses to an existing op at P with a later ts; a
// surviving new op evicts the existing op at P and any op at a path under P;
// a combinable op merges with an existing same-kind op at P instead of
// evicting it.
func ConsolidateOps(existingOps []change.TimedOp, newOps []change.TimedOp) ConsolidateResult {
	byPath := make(map[string]change.TimedOp, len(existingOps))
	for _, op := range existingOps {
		byPath[op.Op.Path.String()] = op
	}

	var toSave []change.TimedOp
	var toDelete []string

	for _, n := range newOps {
		key := n.Op.Path.String()
		existing, has := byPath[key]

		if has && existing.TS > n.TS {
			continue
		}

		if has && existing.TS <= n.TS && n.Op.Kind.Combinable() && existing.Op.Kind == n.Op.Kind {
			merged, ok, err := patch.Compose(existing.Op, n.Op)
			if err == nil && ok {
				combined := change.TimedOp{Op: merged, TS: n.TS}
				byPath[key] = combined
				toSave = append(toSave, combined)
				continue
			}
		}

		byPath[key] = n
		toSave = append(toSave, n)
		toDelete = append(toDelete, key)
	}

	return ConsolidateResult{OpsToSave: toSave, PathsToDelete: toDelete}
}

// MergeServerWithLocal resolves, per path, the op with the greatest ts
// between serverOps and localPendingOps; ties favor the local op (spec
// Scenario D), and children of a path an op overrides are dropped from the
// result regardless of which side supplied the parent.
func MergeServerWithLocal(serverOps []change.TimedOp, localPendingOps []change.TimedOp) []change.TimedOp {
	winners := make(map[string]change.TimedOp, len(serverOps)+len(localPendingOps))

	apply := func(op change.TimedOp, localWinsTies bool) {
		key := op.Op.Path.String()
		existing, has := winners[key]
		if !has {
			winners[key] = op
			return
		}
		if localWinsTies && op.TS >= existing.TS {
			winners[key] = op
			return
		}
		if !localWinsTies && op.TS > existing.TS {
			winners[key] = op
		}
	}

	for _, op := range serverOps {
		apply(op, false)
	}
	for _, op := range localPendingOps {
		apply(op, true)
	}

	out := make([]change.TimedOp, 0, len(winners))
	for key, op := range winners {
		p := patch.ParsePath(key)
		shadowed := false
		for otherKey, other := range winners {
			if otherKey == key {
				continue
			}
			otherPath := patch.ParsePath(otherKey)
			if otherPath.StrictlyUnder(p) && other.TS >= op.TS {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, op)
		}
	}
	return out
}
