package ot

import (
	"context"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

// GetSnapshotAtRevision finds the latest main-origin version with
// EndRev ≤ rev (or the zero version, meaning "start from empty", if none
// exists yet) and the committed changes between that version and rev.
// Applying changes to state reconstructs the document as of rev.
func GetSnapshotAtRevision(ctx context.Context, store serverstore.VersionStore, otStore serverstore.OTStore, docID string, rev int64) (state any, atRev int64, changes []change.Change, err error) {
	version, versionState, found, err := store.LatestMainVersionAtOrBefore(ctx, docID, rev)
	if err != nil {
		return nil, 0, nil, err
	}

	baseState := versionState
	baseRev := int64(0)
	if found {
		baseState = versionState
		baseRev = version.EndRev
	}

	changes, err = otStore.ChangesInRange(ctx, docID, baseRev, rev)
	if err != nil {
		return nil, 0, nil, err
	}
	return baseState, baseRev, changes, nil
}

// GetStateAtRevision reconstructs the full document state as of rev by
// applying the changes GetSnapshotAtRevision reports on top of its base
// snapshot.
func GetStateAtRevision(ctx context.Context, store serverstore.VersionStore, otStore serverstore.OTStore, docID string, rev int64) (any, error) {
	state, _, changes, err := GetSnapshotAtRevision(ctx, store, otStore, docID, rev)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		state, err = patch.ApplyAll(state, c.Ops, patch.Strict)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}
