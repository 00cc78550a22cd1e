package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVStoreTrackListGetDoc(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))
	docs, err := s.ListDocs(ctx, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "doc-1", docs[0].ID)

	_, ok, err := s.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKVStoreSavePendingChangesPersists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))

	c := change.Change{ID: "c1", Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/x"), Value: 1.0}}}
	require.NoError(t, s.SavePendingChanges(ctx, "doc-1", []change.Change{c}))

	pending, err := s.GetPendingChanges(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "c1", pending[0].ID)
}

func TestKVStoreApplyServerChangesFoldsAndAssignsSnapshotID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))

	committed := change.Change{
		ID:          "remote-1",
		Rev:         1,
		CommittedAt: 1000,
		Ops:         []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/n"), Value: 1.0}},
	}
	err := s.ApplyServerChanges(ctx, "doc-1", []change.Change{committed}, nil, 1, func(state any, changes []change.Change) (any, error) {
		return patch.ApplyAll(state, changes[0].Ops, patch.Strict)
	})
	require.NoError(t, err)

	snap, ok, err := s.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), snap.Rev)
	require.Empty(t, snap.Changes)
	require.Equal(t, 1.0, snap.State.(map[string]any)["n"])

	docs, err := s.ListDocs(ctx, false)
	require.NoError(t, err)
	require.NotEmpty(t, docs[0].SnapshotID)
}

func TestKVStoreDeleteDocHidesFromDefaultList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.TrackDocs(ctx, []string{"doc-1"}))
	require.NoError(t, s.DeleteDoc(ctx, "doc-1"))

	docs, err := s.ListDocs(ctx, false)
	require.NoError(t, err)
	require.Empty(t, docs)

	docs, err = s.ListDocs(ctx, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.True(t, docs[0].Deleted)
}
