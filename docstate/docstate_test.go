package docstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

func TestOTDocAppendUpdatesLiveStateNotCommitted(t *testing.T) {
	doc := NewOTDoc("doc-1", map[string]any{"count": 0.0}, 1)

	live, err := doc.Append(change.Change{
		ID:  "local-1",
		Ops: []patch.Op{{Kind: patch.Inc, Path: patch.ParsePath("/count"), Value: 1.0}},
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, live.(map[string]any)["count"])
	require.Equal(t, 0.0, doc.State().(map[string]any)["count"], "committed state must not move until server acks")
	require.True(t, doc.HasPending())
}

func TestOTDocApplyChangesCommitsAndRebasesPending(t *testing.T) {
	doc := NewOTDoc("doc-2", map[string]any{"count": 0.0}, 1)
	_, err := doc.Append(change.Change{ID: "local-1", Ops: []patch.Op{{Kind: patch.Inc, Path: patch.ParsePath("/count"), Value: 1.0}}})
	require.NoError(t, err)

	committed := change.Change{
		ID:          "remote-1",
		Rev:         2,
		CommittedAt: 1000,
		Ops:         []patch.Op{{Kind: patch.Inc, Path: patch.ParsePath("/count"), Value: 10.0}},
	}
	live, err := doc.ApplyChanges([]change.Change{committed})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.CommittedRev())
	require.Equal(t, 10.0, doc.State().(map[string]any)["count"])
	require.Equal(t, 11.0, live.(map[string]any)["count"])
	require.True(t, doc.HasPending())
}

func TestOTDocApplyChangesRejectsRevGap(t *testing.T) {
	doc := NewOTDoc("doc-3", map[string]any{}, 1)
	_, err := doc.ApplyChanges([]change.Change{{ID: "remote", Rev: 5, CommittedAt: 1000}})
	require.Error(t, err)
}

func TestLWWDocRecordLocalOpsAndState(t *testing.T) {
	doc := NewLWWDoc("doc-4", map[string]any{"title": "a"})
	live, err := doc.RecordLocalOps([]change.TimedOp{
		{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "b"}, TS: 100},
	})
	require.NoError(t, err)
	require.Equal(t, "b", live.(map[string]any)["title"])
	require.Equal(t, "a", doc.State().(map[string]any)["title"])
	require.True(t, doc.HasPending())
}

func TestLWWDocApplyServerChangesLocalTieWins(t *testing.T) {
	doc := NewLWWDoc("doc-5", map[string]any{"title": "a"})
	_, err := doc.RecordLocalOps([]change.TimedOp{
		{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "local"}, TS: 100},
	})
	require.NoError(t, err)

	live, err := doc.ApplyServerChanges([]change.TimedOp{
		{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "server"}, TS: 100},
	})
	require.NoError(t, err)
	require.Equal(t, "local", live.(map[string]any)["title"])
	require.True(t, doc.HasPending())
}
