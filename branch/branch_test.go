package branch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/ot"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

type seqClock struct{ n int }

func (c *seqClock) NextID() string {
	c.n++
	return string(rune('a' + c.n - 1))
}

func TestCreateBranchOTSeedsSnapshotAtRev(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	require.NoError(t, store.AppendCommitted(ctx, "doc-1", []change.Change{
		{ID: "c1", Rev: 1, CommittedAt: 100, Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/title"), Value: "v1"}}},
		{ID: "c2", Rev: 2, CommittedAt: 200, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "v2"}}},
	}))

	m := NewManager(store, &seqClock{})
	b, err := m.CreateBranch(ctx, "doc-1", change.EngineOT, CreateBranchOptions{AtRev: 1})
	require.NoError(t, err)
	require.Equal(t, change.BranchOpen, b.Status)
	require.Equal(t, "doc-1", b.DocID)

	state, err := ot.GetStateAtRevision(ctx, store, store, b.BranchDocID, 1)
	require.NoError(t, err)
	require.Equal(t, "v1", state.(map[string]any)["title"])
}

func TestCreateBranchRejectsForkingABranch(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	require.NoError(t, store.AppendCommitted(ctx, "doc-1", []change.Change{
		{ID: "c1", Rev: 1, CommittedAt: 100, Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/x"), Value: 1.0}}},
	}))
	m := NewManager(store, &seqClock{})
	b, err := m.CreateBranch(ctx, "doc-1", change.EngineOT, CreateBranchOptions{AtRev: 1})
	require.NoError(t, err)

	_, err = m.CreateBranch(ctx, b.BranchDocID, change.EngineOT, CreateBranchOptions{AtRev: 1})
	require.Error(t, err)
}

func TestMergeBranchOTCommitsBackToSource(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	require.NoError(t, store.AppendCommitted(ctx, "doc-1", []change.Change{
		{ID: "c1", Rev: 1, CommittedAt: 100, Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/count"), Value: 1.0}}},
	}))

	m := NewManager(store, &seqClock{})
	b, err := m.CreateBranch(ctx, "doc-1", change.EngineOT, CreateBranchOptions{AtRev: 1})
	require.NoError(t, err)

	require.NoError(t, store.AppendCommitted(ctx, b.BranchDocID, []change.Change{
		{ID: "branch-c1", Rev: 2, BaseRev: 1, CommittedAt: 150, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/count"), Value: 2.0}}},
	}))

	committed, err := m.MergeBranch(ctx, b.ID, MergeBranchOptions{})
	require.NoError(t, err)
	require.Len(t, committed, 1)

	state, err := ot.GetStateAtRevision(ctx, store, store, "doc-1", 2)
	require.NoError(t, err)
	require.Equal(t, 2.0, state.(map[string]any)["count"])

	merged, err := store.GetBranch(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, change.BranchMerged, merged.Status)
}

func TestCloseBranchRejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	m := NewManager(store, &seqClock{})
	require.NoError(t, store.SaveBranch(ctx, change.Branch{ID: "b1", DocID: "doc-1", Status: change.BranchOpen}))

	err := m.CloseBranch(ctx, "b1", change.BranchOpen)
	require.Error(t, err)

	err = m.CloseBranch(ctx, "b1", change.BranchClosed)
	require.NoError(t, err)

	b, err := store.GetBranch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, change.BranchClosed, b.Status)
}
