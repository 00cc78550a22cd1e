package ot

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

// CommitOptions configures a CommitChanges call.
type CommitOptions struct {
	// SessionTimeout is the gap between consecutive changes' CreatedAt above
	// which the batch is treated as resuming after an offline session
	// (spec.md §4.3). Zero disables offline-session detection entirely.
	SessionTimeout time.Duration
	// ForceCommit keeps a change's record even when its transform against
	// already-committed ops leaves it with zero surviving ops, instead of
	// dropping the change outright (Open Question #1).
	ForceCommit bool
	// Now returns the commit wall-clock time; defaults to time.Now if nil,
	// overridable so tests get deterministic CommittedAt/CreatedAt clamping.
	Now func() time.Time
}

func (o CommitOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CommitChanges runs the server-side commit pipeline for one client batch:
// it validates the batch's shared baseRev, clamps CreatedAt to now, snapshots
// a main Version when the document has gone idle past SessionTimeout,
// version-and-collapses any changes that themselves resumed after an offline
// gap, then transforms and commits the survivors in order. It returns the
// catchup changes the client must also apply (any committed changes the
// caller's baseRev had not yet seen) followed by the newly committed changes.
func CommitChanges(ctx context.Context, store serverstore.Store, docID string, changes []change.Change, opts CommitOptions) ([]change.Change, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	baseRev := changes[0].BaseRev
	for _, c := range changes {
		if c.BaseRev != baseRev {
			return nil, errs.ValidationError{Message: "batch changes disagree on baseRev"}
		}
	}

	currentRev, err := store.CurrentRev(ctx, docID)
	if err != nil {
		return nil, errs.StorageError{Op: "current-rev", Err: err}
	}
	if baseRev > currentRev {
		return nil, errs.StaleBaseError{DocID: docID, ClientBase: baseRev, ServerCommit: currentRev}
	}

	catchup, err := store.ChangesSince(ctx, docID, baseRev)
	if err != nil {
		return nil, errs.StorageError{Op: "changes-since", Err: err}
	}

	already := make(map[string]bool, len(catchup))
	for _, c := range catchup {
		already[c.ID] = true
	}

	now := opts.now().UnixMilli()
	pending := make([]change.Change, 0, len(changes))
	for _, c := range changes {
		if already[c.ID] {
			continue
		}
		if c.CreatedAt > now || c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return catchup, nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt < pending[j].CreatedAt })

	baseState, _, sinceBase, err := GetSnapshotAtRevision(ctx, store, store, docID, baseRev)
	if err != nil {
		return nil, errs.StorageError{Op: "snapshot-at-base", Err: err}
	}
	stateAtBase := baseState
	for _, c := range sinceBase {
		stateAtBase, err = patch.ApplyAll(stateAtBase, c.Ops, patch.Strict)
		if err != nil {
			return nil, errs.TransformApplyError{Op: "replay-since-base", Err: err}
		}
	}
	state := stateAtBase
	for _, c := range catchup {
		state, err = patch.ApplyAll(state, c.Ops, patch.Strict)
		if err != nil {
			return nil, errs.TransformApplyError{Op: "replay-catchup", Err: err}
		}
	}

	if lastIdleRev := currentRev; opts.SessionTimeout > 0 {
		lastCommittedAt := lastCommittedCreatedAt(catchup, sinceBase)
		if lastCommittedAt > 0 && now-lastCommittedAt > opts.SessionTimeout.Milliseconds() {
			v := change.VersionMetadata{
				ID:        uuid.New().String(),
				Origin:    change.OriginMain,
				StartedAt: lastCommittedAt,
				EndedAt:   now,
				StartRev:  0,
				EndRev:    lastIdleRev,
				BaseRev:   0,
			}
			if err := store.SaveVersion(ctx, docID, v, state); err != nil {
				return nil, errs.StorageError{Op: "save-main-version", Err: err}
			}
		}
	}

	toCommit := pending
	if opts.SessionTimeout > 0 {
		sessions := splitIntoSessions(pending, opts.SessionTimeout)
		if len(sessions) > 1 {
			groupID := uuid.New().String()
			offlineState, err := versionOfflineSessions(ctx, store, docID, state, currentRev, sessions, groupID, func() string { return uuid.New().String() })
			if err != nil {
				return nil, errs.StorageError{Op: "version-offline-sessions", Err: err}
			}
			_ = offlineState
			toCommit = []change.Change{collapseIntoOneChange(pending, baseRev)}
		}
	}

	// sinceBase only reconstructs state as of baseRev (the client already
	// incorporated those ops); only catchup ops postdate what the client saw.
	committedSinceBaseOps := flattenOps(catchup)

	var newCommitted []change.Change
	nextRev := currentRev
	for _, c := range toCommit {
		transformed, err := TransformIncomingChanges(stateAtBase, committedSinceBaseOps, c.Ops)
		if err != nil {
			return nil, errs.TransformApplyError{Op: "commit-transform", Err: err}
		}
		if len(transformed) == 0 && !opts.ForceCommit {
			continue
		}

		nextRev++
		committed := change.Change{
			ID:          c.ID,
			Rev:         nextRev,
			BaseRev:     baseRev,
			Ops:         transformed,
			CreatedAt:   c.CreatedAt,
			CommittedAt: now,
			Metadata:    c.Metadata,
			BatchID:     c.BatchID,
		}

		if len(transformed) > 0 {
			state, err = patch.ApplyAll(state, transformed, patch.Strict)
			if err != nil {
				return nil, errs.TransformApplyError{Op: "apply-committed", Err: err}
			}
			committedSinceBaseOps = append(committedSinceBaseOps, transformed...)
		}

		newCommitted = append(newCommitted, committed)
	}

	if len(newCommitted) > 0 {
		if err := store.AppendCommitted(ctx, docID, newCommitted); err != nil {
			return nil, errs.StorageError{Op: "append-committed", Err: err}
		}
	}

	out := make([]change.Change, 0, len(catchup)+len(newCommitted))
	out = append(out, catchup...)
	out = append(out, newCommitted...)
	return out, nil
}

func lastCommittedCreatedAt(catchup, sinceBase []change.Change) int64 {
	var last int64
	for _, c := range sinceBase {
		if c.CreatedAt > last {
			last = c.CreatedAt
		}
	}
	for _, c := range catchup {
		if c.CreatedAt > last {
			last = c.CreatedAt
		}
	}
	return last
}
