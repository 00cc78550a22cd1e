// Package serverstore defines the server-side persistence contract for the
// sync core (committed change log, version snapshots, LWW field ops,
// branches) plus an in-memory reference implementation used by tests and
// small deployments. Tombstones are not part of this contract.
package serverstore

import (
	"context"

	"github.com/relaydoc/core/change"
)

// Store is the full server-side persistence contract. A production backend
// implements it directly; serverstore/redisstore does so over Redis.
type Store interface {
	OTStore
	LWWStore
	VersionStore
	BranchStore
}

// OTStore is the committed-change-log surface the ot package commits
// against. Implementations must serialize AppendCommitted calls per docId —
// see SPEC_FULL.md §5's single-writer requirement.
type OTStore interface {
	// CurrentRev returns the doc's latest committed rev, or 0 for a brand
	// new document.
	CurrentRev(ctx context.Context, docID string) (int64, error)
	// ChangesSince returns committed changes with rev > afterRev, in
	// ascending rev order.
	ChangesSince(ctx context.Context, docID string, afterRev int64) ([]change.Change, error)
	// ChangesInRange returns committed changes with fromRev < rev ≤ toRev.
	ChangesInRange(ctx context.Context, docID string, fromRev, toRev int64) ([]change.Change, error)
	// AppendCommitted persists newly committed changes, already carrying
	// their final rev and committedAt. CurrentRev advances to the last
	// change's rev.
	AppendCommitted(ctx context.Context, docID string, changes []change.Change) error
}

// LWWStore is the per-path field-op surface the lww package commits
// against.
type LWWStore interface {
	// ListFieldOps returns every live (non-pruned) field op for the doc.
	ListFieldOps(ctx context.Context, docID string) ([]change.TimedOp, error)
	// SaveFieldOps persists opsToSave (each assigned a fresh monotonic rev)
	// and deletes any existing op whose path is in pathsToDelete or a
	// descendant of one, atomically.
	SaveFieldOps(ctx context.Context, docID string, opsToSave []change.TimedOp, pathsToDelete []string) ([]change.TimedOp, error)
}

// VersionStore manages VersionMetadata snapshots.
type VersionStore interface {
	SaveVersion(ctx context.Context, docID string, v change.VersionMetadata, state any) error
	GetVersion(ctx context.Context, docID, versionID string) (change.VersionMetadata, error)
	// LatestMainVersionAtOrBefore returns the most recent main-origin
	// version with EndRev ≤ rev, or the zero value with ok=false if none
	// exists yet.
	LatestMainVersionAtOrBefore(ctx context.Context, docID string, rev int64) (change.VersionMetadata, any, bool, error)
	ListVersions(ctx context.Context, docID string, opts ListVersionsOptions) ([]change.VersionMetadata, error)
}

// ListVersionsOptions filters/orders a ListVersions call.
type ListVersionsOptions struct {
	Limit      int
	Reverse    bool
	Origin     change.VersionOrigin
	GroupID    string
	OrderBy    string // "endRev" | "startedAt"
	StartAfter int64
	EndBefore  int64
}

// BranchStore manages Branch records.
type BranchStore interface {
	SaveBranch(ctx context.Context, b change.Branch) error
	GetBranch(ctx context.Context, branchID string) (change.Branch, error)
	ListBranches(ctx context.Context, docID string) ([]change.Branch, error)
	UpdateBranchStatus(ctx context.Context, branchID string, status change.BranchStatus) error
}
