package clientstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

func TestMemStoreTrackAndListDocs(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.TrackDocs(ctx, []string{"a", "b"}))

	docs, err := s.ListDocs(ctx, false)
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestMemStoreSavePendingChangesCreatesDoc(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	c := change.Change{ID: "c1", Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/x"), Value: 1.0}}}
	require.NoError(t, s.SavePendingChanges(ctx, "doc-1", []change.Change{c}))

	pending, err := s.GetPendingChanges(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "c1", pending[0].ID)
}

func TestMemStoreApplyServerChangesFoldsSnapshotAtInterval(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))

	committed := change.Change{
		ID:          "remote-1",
		Rev:         1,
		CommittedAt: 1000,
		Ops:         []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/n"), Value: 1.0}},
	}
	folded := false
	err := s.ApplyServerChanges(ctx, "doc-1", []change.Change{committed}, nil, 1, func(state any, changes []change.Change) (any, error) {
		folded = true
		return patch.ApplyAll(state, changes[0].Ops, patch.Strict)
	})
	require.NoError(t, err)
	require.True(t, folded)

	snap, ok, err := s.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), snap.Rev)
	require.Empty(t, snap.Changes, "folded changes must be truncated")
	require.Equal(t, 1.0, snap.State.(map[string]any)["n"])
}

func TestMemStoreDeleteAndConfirmDoc(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))
	require.NoError(t, s.DeleteDoc(ctx, "doc-1"))

	_, ok, err := s.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.False(t, ok)

	docs, err := s.ListDocs(ctx, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.True(t, docs[0].Deleted)

	require.NoError(t, s.ConfirmDeleteDoc(ctx, "doc-1"))
	docs, err = s.ListDocs(ctx, true)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestMemStoreLWWSendingChangeClearsPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-lww"}))

	op := change.TimedOp{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "a"}, TS: 1}
	require.NoError(t, s.SavePendingOps(ctx, "doc-lww", []change.TimedOp{op}, nil))

	pending, err := s.GetPendingOps(ctx, "doc-lww", nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.SaveSendingChange(ctx, "doc-lww", change.Change{ID: "send-1"}))

	pending, err = s.GetPendingOps(ctx, "doc-lww", nil)
	require.NoError(t, err)
	require.Empty(t, pending, "sending must atomically clear pending")

	sending, ok, err := s.GetSendingChange(ctx, "doc-lww")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "send-1", sending.ID)

	require.NoError(t, s.ConfirmSendingChange(ctx, "doc-lww"))
	_, ok, err = s.GetSendingChange(ctx, "doc-lww")
	require.NoError(t, err)
	require.False(t, ok)
}
