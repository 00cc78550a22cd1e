// Package change defines the immutable Change and VersionMetadata records
// shared by the OT and LWW engines.
package change

import (
	"github.com/relaydoc/core/ident"
	"github.com/relaydoc/core/patch"
)

// Change is one atomic unit of edit in the OT log.
type Change struct {
	ID          string         `json:"id"`
	Rev         int64          `json:"rev"`
	BaseRev     int64          `json:"baseRev"`
	Ops         []patch.Op     `json:"ops"`
	CreatedAt   int64          `json:"createdAt"`
	CommittedAt int64          `json:"committedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	BatchID     string         `json:"batchId,omitempty"`
}

// Committed reports whether the server has assigned this change a final rev.
func (c Change) Committed() bool { return c.CommittedAt > 0 }

// NewID derives a stable-unique change id from a session clock tick.
func NewID(seq ident.Seq) string { return seq.String() }

// VersionOrigin classifies why a Version snapshot was created.
type VersionOrigin string

const (
	OriginMain    VersionOrigin = "main"
	OriginOffline VersionOrigin = "offline"
	OriginBranch  VersionOrigin = "branch"
)

// VersionMetadata describes a point-in-time snapshot of a document used to
// reconstruct state-at-revision without replaying the full change log.
type VersionMetadata struct {
	ID          string        `json:"id"`
	ParentID    string        `json:"parentId,omitempty"`
	GroupID     string        `json:"groupId,omitempty"`
	Origin      VersionOrigin `json:"origin"`
	StartedAt   int64         `json:"startedAt"`
	EndedAt     int64         `json:"endedAt"`
	StartRev    int64         `json:"startRev"`
	EndRev      int64         `json:"endRev"`
	BaseRev     int64         `json:"baseRev"`
	Name        string        `json:"name,omitempty"`
	BranchName  string        `json:"branchName,omitempty"`
}

// Tombstone prevents accidental recreation of a deleted document.
type Tombstone struct {
	DocID       string `json:"docId"`
	DeletedAtRev int64 `json:"deletedAtRev"`
	DeletedBy   string `json:"deletedBy,omitempty"`
}

// BranchStatus is the lifecycle state of a Branch record.
type BranchStatus string

const (
	BranchOpen     BranchStatus = "open"
	BranchClosed   BranchStatus = "closed"
	BranchMerged   BranchStatus = "merged"
	BranchArchived BranchStatus = "archived"
	BranchAbandoned BranchStatus = "abandoned"
)

// Engine names which reconciliation strategy a document (and any branch
// forked from it) reconciles under.
type Engine string

const (
	EngineOT  Engine = "ot"
	EngineLWW Engine = "lww"
)

// Branch is a forked document with its own change stream, mergeable back to
// its source document.
type Branch struct {
	ID string `json:"id"`
	// DocID is the source document this branch was forked from; ListBranches
	// is keyed on it.
	DocID string `json:"docId"`
	// BranchDocID is the id of the new document the branch's own changes
	// accumulate against, distinct from DocID once the fork exists.
	BranchDocID   string         `json:"branchDocId"`
	Engine        Engine         `json:"engine"`
	BranchedAtRev int64          `json:"branchedAtRev"`
	Status        BranchStatus   `json:"status"`
	Name          string         `json:"name,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TimedOp is a JSON-Patch op stamped with the LWW wall-clock timestamp it
// was created at, and, once persisted, the monotonic per-doc rev the server
// store assigned it.
type TimedOp struct {
	Op  patch.Op `json:"op"`
	TS  int64    `json:"ts"`
	Rev int64    `json:"rev,omitempty"`
}
