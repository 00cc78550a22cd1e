package ot

import (
	"context"
	"time"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

// splitIntoSessions groups changes, already sorted by CreatedAt, into
// consecutive runs where the gap between adjacent changes stays within
// sessionTimeout.
func splitIntoSessions(changes []change.Change, sessionTimeout time.Duration) [][]change.Change {
	if len(changes) == 0 {
		return nil
	}
	gapMs := sessionTimeout.Milliseconds()
	sessions := [][]change.Change{{changes[0]}}
	for i := 1; i < len(changes); i++ {
		prev := changes[i-1]
		cur := changes[i]
		if cur.CreatedAt-prev.CreatedAt > gapMs {
			sessions = append(sessions, nil)
		}
		last := len(sessions) - 1
		sessions[last] = append(sessions[last], cur)
	}
	return sessions
}

// versionOfflineSessions persists one VersionMetadata per detected offline
// session, linked by a shared groupId and a per-session parentId chain, and
// returns the state after the last session.
func versionOfflineSessions(ctx context.Context, store serverstore.VersionStore, docID string, baseState any, baseRev int64, sessions [][]change.Change, groupID string, idFactory func() string) (any, error) {
	state := baseState
	startRev := baseRev
	parentID := ""

	for _, session := range sessions {
		for _, c := range session {
			next, err := patch.ApplyAll(state, c.Ops, patch.Strict)
			if err != nil {
				return nil, err
			}
			state = next
		}
		endRev := startRev + int64(len(session))
		v := change.VersionMetadata{
			ID:        idFactory(),
			ParentID:  parentID,
			GroupID:   groupID,
			Origin:    change.OriginOffline,
			StartedAt: session[0].CreatedAt,
			EndedAt:   session[len(session)-1].CreatedAt,
			StartRev:  startRev,
			EndRev:    endRev,
			BaseRev:   baseRev,
		}
		if err := store.SaveVersion(ctx, docID, v, state); err != nil {
			return nil, err
		}
		parentID = v.ID
		startRev = endRev
	}
	return state, nil
}

// collapseIntoOneChange concatenates a run of changes' ops into a single
// change, used to fold an entire detected offline batch into one unit before
// the transform step (spec.md §4.3 step 5).
func collapseIntoOneChange(changes []change.Change, baseRev int64) change.Change {
	first := changes[0]
	last := changes[len(changes)-1]
	var ops []patch.Op
	for _, c := range changes {
		ops = append(ops, c.Ops...)
	}
	return change.Change{
		ID:        first.ID,
		BaseRev:   baseRev,
		Ops:       ops,
		CreatedAt: last.CreatedAt,
		Metadata:  first.Metadata,
	}
}
