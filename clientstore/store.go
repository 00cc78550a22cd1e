// Package clientstore defines the client-side persistence contract (the
// local index of tracked documents, their committed-change tail, pending
// queue, and periodic snapshots) plus an in-memory reference implementation.
// clientstore/kvstore adapts the same contract onto an embedded key-value
// store for an offline-capable client.
package clientstore

import (
	"context"

	"github.com/relaydoc/core/change"
)

// DocRecord is one tracked document's local index entry.
type DocRecord struct {
	ID           string
	CommittedRev int64
	Deleted      bool
	// SnapshotID identifies the most recent compaction generation, minted
	// fresh each time the committed log is folded into a baked snapshot.
	// Only kvstore populates this; the in-memory reference has no need to
	// correlate snapshots across restarts.
	SnapshotID string
}

// DocSnapshot is the reconstructable view getDoc returns: a baked snapshot
// state (nil if the doc has never been folded), the committed changes since
// that snapshot, and the still-unacknowledged pending queue.
type DocSnapshot struct {
	State        any
	Rev          int64
	Changes      []change.Change
	Pending      []change.Change
	PendingLWW   []change.TimedOp
	SendingLWW   *change.Change
}

// Store is the OT-flavored client persistence contract (spec.md §4.6).
type Store interface {
	TrackDocs(ctx context.Context, ids []string) error
	UntrackDocs(ctx context.Context, ids []string) error
	ListDocs(ctx context.Context, includeDeleted bool) ([]DocRecord, error)
	GetDoc(ctx context.Context, id string) (DocSnapshot, bool, error)

	SavePendingChanges(ctx context.Context, id string, changes []change.Change) error
	GetPendingChanges(ctx context.Context, id string) ([]change.Change, error)

	// ApplyServerChanges atomically appends serverChanges to the committed
	// log, replaces the entire pending list with rebasedPending, and
	// advances committedRev. If the committed log reaches snapshotInterval
	// entries it is folded into a new baked snapshot and truncated.
	ApplyServerChanges(ctx context.Context, id string, serverChanges []change.Change, rebasedPending []change.Change, snapshotInterval int, fold func(state any, changes []change.Change) (any, error)) error

	DeleteDoc(ctx context.Context, id string) error
	ConfirmDeleteDoc(ctx context.Context, id string) error

	Close() error
}

// LWWStore is the LWW-flavored client persistence contract. A "sending"
// change is the in-flight batch the client has handed to the transport but
// not yet gotten an ack for; it is kept distinct from pending so a retry
// after a dropped connection resends exactly what was sent.
type LWWStore interface {
	TrackDocs(ctx context.Context, ids []string) error
	UntrackDocs(ctx context.Context, ids []string) error
	ListDocs(ctx context.Context, includeDeleted bool) ([]DocRecord, error)
	GetDoc(ctx context.Context, id string) (DocSnapshot, bool, error)

	GetPendingOps(ctx context.Context, id string, pathPrefixes []string) ([]change.TimedOp, error)
	SavePendingOps(ctx context.Context, id string, opsToSave []change.TimedOp, pathsToDelete []string) error

	GetSendingChange(ctx context.Context, id string) (change.Change, bool, error)
	SaveSendingChange(ctx context.Context, id string, c change.Change) error
	ConfirmSendingChange(ctx context.Context, id string) error

	// ApplyServerOps folds newly committed server ops into the baked
	// state without disturbing sending or pending.
	ApplyServerOps(ctx context.Context, id string, serverOps []change.TimedOp, fold func(state any, ops []change.TimedOp) (any, error)) error

	DeleteDoc(ctx context.Context, id string) error
	ConfirmDeleteDoc(ctx context.Context, id string) error

	Close() error
}
