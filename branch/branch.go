// Package branch implements BranchManager: forking a document at a
// revision (or current LWW state), and merging a branch's accumulated
// changes back into its source document (spec.md §4.7).
package branch

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/lww"
	"github.com/relaydoc/core/ot"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

// Clock mints branch and branch-document ids. IDs only need to be unique
// and roughly time-sortable; a snowflake node gives that without a round
// trip to the store.
type Clock interface {
	NextID() string
}

// SnowflakeClock mints ids from a bwmarrin/snowflake node, which keeps ids
// sortable by creation order across multiple server processes sharing a
// small node-id space.
type SnowflakeClock struct {
	node *snowflake.Node
}

// NewSnowflakeClock creates a SnowflakeClock for the given node id (0-1023,
// one per server process).
func NewSnowflakeClock(nodeID int64) (*SnowflakeClock, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("branch: new snowflake node: %w", err)
	}
	return &SnowflakeClock{node: node}, nil
}

func (c *SnowflakeClock) NextID() string { return c.node.Generate().String() }

// branchDocIDPrefix marks documents minted by CreateBranch, letting a
// later CreateBranch call reject forking a branch document itself without
// needing a reverse source-doc index.
const branchDocIDPrefix = "branch-"

// Manager creates and merges branches against a server store.
type Manager struct {
	store serverstore.Store
	clock Clock
}

// NewManager builds a Manager. clock mints branch and branch-document ids.
func NewManager(store serverstore.Store, clock Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// CreateBranchOptions configures a fork.
type CreateBranchOptions struct {
	// AtRev is the source revision to fork at. Ignored for LWW documents,
	// which always fork from current state (field ops have no single
	// revision axis to pin).
	AtRev    int64
	Name     string
	Metadata map[string]any
}

// CreateBranch forks sourceDocID into a new document, seeded with the
// source's state at AtRev (OT) or current state (LWW), and returns the new
// branch record. Returns a ValidationError if sourceDocID is itself a
// branch document.
func (m *Manager) CreateBranch(ctx context.Context, sourceDocID string, engine change.Engine, opts CreateBranchOptions) (change.Branch, error) {
	if strings.HasPrefix(sourceDocID, branchDocIDPrefix) {
		return change.Branch{}, errs.ValidationError{Message: fmt.Sprintf("doc %s is itself a branch, cannot branch again", sourceDocID)}
	}

	branchDocID := branchDocIDPrefix + m.clock.NextID()
	b := change.Branch{
		ID:          m.clock.NextID(),
		DocID:       sourceDocID,
		BranchDocID: branchDocID,
		Engine:      engine,
		Status:      change.BranchOpen,
		Name:        opts.Name,
		Metadata:    opts.Metadata,
	}

	switch engine {
	case change.EngineOT:
		state, err := ot.GetStateAtRevision(ctx, m.store, m.store, sourceDocID, opts.AtRev)
		if err != nil {
			return change.Branch{}, err
		}
		b.BranchedAtRev = opts.AtRev
		seed := change.Change{
			ID:          branchDocID + "-seed",
			Rev:         opts.AtRev,
			CommittedAt: 1,
			Ops:         []patch.Op{{Kind: patch.Replace, Path: patch.Path{}, Value: state}},
		}
		if err := m.store.AppendCommitted(ctx, branchDocID, []change.Change{seed}); err != nil {
			return change.Branch{}, err
		}

	case change.EngineLWW:
		ops, err := m.store.ListFieldOps(ctx, sourceDocID)
		if err != nil {
			return change.Branch{}, err
		}
		state, err := lww.Reconstruct(nil, ops)
		if err != nil {
			return change.Branch{}, err
		}
		seed := change.TimedOp{Op: patch.Op{Kind: patch.Replace, Path: patch.Path{}, Value: state}, TS: 1}
		if _, err := m.store.SaveFieldOps(ctx, branchDocID, []change.TimedOp{seed}, nil); err != nil {
			return change.Branch{}, err
		}

	default:
		return change.Branch{}, errs.ValidationError{Message: "unknown branch engine: " + string(engine)}
	}

	if err := m.store.SaveBranch(ctx, b); err != nil {
		return change.Branch{}, err
	}
	return b, nil
}

// MergeBranchOptions tunes how branch changes are committed back.
type MergeBranchOptions struct {
	ot.CommitOptions
}

// MergeBranch commits a branch's accumulated changes back onto its source
// document: transformed against any source-side progress for OT, or
// resolved by timestamp for LWW. On success the branch status becomes
// merged, and MergeBranch rejects any later merge of it; commits to the
// branch document itself are not checked against that status.
func (m *Manager) MergeBranch(ctx context.Context, branchID string, opts MergeBranchOptions) ([]change.Change, error) {
	b, err := m.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if b.Status != change.BranchOpen {
		return nil, errs.ValidationError{Message: fmt.Sprintf("branch %s is not open (status=%s)", branchID, b.Status)}
	}

	switch b.Engine {
	case change.EngineOT:
		branchChanges, err := m.store.ChangesSince(ctx, b.BranchDocID, b.BranchedAtRev)
		if err != nil {
			return nil, err
		}
		if len(branchChanges) == 0 {
			if err := m.store.UpdateBranchStatus(ctx, branchID, change.BranchMerged); err != nil {
				return nil, err
			}
			return nil, nil
		}
		sourceRev, err := m.store.CurrentRev(ctx, b.DocID)
		if err != nil {
			return nil, err
		}
		incoming := make([]change.Change, len(branchChanges))
		for i, c := range branchChanges {
			incoming[i] = change.Change{
				ID:        c.ID,
				BaseRev:   sourceRev,
				Ops:       c.Ops,
				CreatedAt: c.CreatedAt,
			}
		}
		committed, err := ot.CommitChanges(ctx, m.store, b.DocID, incoming, opts.CommitOptions)
		if err != nil {
			return nil, err
		}
		if err := m.store.UpdateBranchStatus(ctx, branchID, change.BranchMerged); err != nil {
			return nil, err
		}
		return committed, nil

	case change.EngineLWW:
		ops, err := m.store.ListFieldOps(ctx, b.BranchDocID)
		if err != nil {
			return nil, err
		}
		if _, err := lww.CommitOps(ctx, m.store, b.DocID, ops); err != nil {
			return nil, err
		}
		if err := m.store.UpdateBranchStatus(ctx, branchID, change.BranchMerged); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, errs.ValidationError{Message: "unknown branch engine: " + string(b.Engine)}
	}
}

// CloseBranch updates a branch's lifecycle status to closed, archived, or
// abandoned. A branch in any of these states can no longer be merged.
func (m *Manager) CloseBranch(ctx context.Context, branchID string, status change.BranchStatus) error {
	switch status {
	case change.BranchClosed, change.BranchArchived, change.BranchAbandoned:
	default:
		return errs.ValidationError{Message: "closeBranch: invalid terminal status " + string(status)}
	}
	return m.store.UpdateBranchStatus(ctx, branchID, status)
}
