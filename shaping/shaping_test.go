package shaping

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// Scenario A: 100 toggling replaces on the same path collapse to one.
func TestCollapsePendingChangesScenarioA(t *testing.T) {
	var changes []change.Change
	for i := 1; i <= 100; i++ {
		changes = append(changes, change.Change{
			ID:      "c" + strconv.Itoa(i),
			Rev:     int64(i),
			BaseRev: 0,
			Ops:     []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/opened"), Value: i%2 == 0}},
		})
	}

	collapsed := CollapsePendingChanges(changes, 0)
	require.Len(t, collapsed, 1)
	assert.Equal(t, changes[99].Ops[0].Value, collapsed[0].Ops[0].Value)
}

func TestCollapseRespectsAfterRevBookmark(t *testing.T) {
	changes := []change.Change{
		{ID: "a", Rev: 1, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/x"), Value: 1.0}}},
		{ID: "b", Rev: 2, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/x"), Value: 2.0}}},
	}
	collapsed := CollapsePendingChanges(changes, 1)
	require.Len(t, collapsed, 2)
}

func TestCollapseEvictsUnderRemovedPath(t *testing.T) {
	changes := []change.Change{
		{ID: "a", Rev: 1, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/obj/x"), Value: 1.0}}},
		{ID: "b", Rev: 2, Ops: []patch.Op{{Kind: patch.Remove, Path: patch.ParsePath("/obj")}}},
		{ID: "c", Rev: 3, Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/obj/x"), Value: 3.0}}},
	}
	collapsed := CollapsePendingChanges(changes, 0)
	// "a"'s replace under /obj is evicted by "b"'s remove of /obj itself;
	// "b" (structural) and "c" (a fresh tracked slot) both survive.
	require.Len(t, collapsed, 2)
	assert.Equal(t, "b", collapsed[0].ID)
	assert.Equal(t, "c", collapsed[1].ID)
}

// Scenario E: a 1MB insert with a 100KB budget splits into many pieces that
// reproduce the single-change result when concatenated.
func TestBreakChangeScenarioE(t *testing.T) {
	bigText := strings.Repeat("a", 1_000_000)
	c := change.Change{
		ID:      "big",
		Rev:     1,
		BaseRev: 0,
		Ops: []patch.Op{
			{Kind: patch.Txt, Path: patch.ParsePath("/body"), Delta: patch.TextDelta{{Insert: bigText}}},
		},
	}

	pieces, err := BreakChange(c, 100_000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(pieces), 10)

	state := map[string]any{"body": ""}
	for _, p := range pieces {
		var err error
		state, err = applyAll(state, p.Ops)
		require.NoError(t, err)
	}

	single, err := applyAll(map[string]any{"body": ""}, c.Ops)
	require.NoError(t, err)
	assert.Equal(t, single, state)
}

func applyAll(state map[string]any, ops []patch.Op) (map[string]any, error) {
	var cur any = state
	var err error
	for _, op := range ops {
		cur, err = patch.Apply(cur, op, patch.Strict)
		if err != nil {
			return nil, err
		}
	}
	return cur.(map[string]any), nil
}

func TestBreakChangeUnderBudgetIsUnsplit(t *testing.T) {
	c := change.Change{ID: "small", Ops: []patch.Op{{Kind: patch.Replace, Path: patch.ParsePath("/a"), Value: 1.0}}}
	pieces, err := BreakChange(c, 10_000)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, c, pieces[0])
}

func TestMakeChangeValidatesAgainstState(t *testing.T) {
	state := map[string]any{"count": 1.0}
	_, err := MakeChange(MakeChangeOptions{
		State:     state,
		BaseRev:   0,
		IDFactory: func() string { return "id1" },
		Mutator: func(b *Builder) {
			b.Replace("/missing/path", "x")
		},
	})
	assert.Error(t, err)
}

func TestMakeChangeEmptyMutatorYieldsNoChange(t *testing.T) {
	state := map[string]any{}
	changes, err := MakeChange(MakeChangeOptions{
		State:     state,
		BaseRev:   0,
		IDFactory: func() string { return "id1" },
		Mutator:   func(b *Builder) {},
	})
	require.NoError(t, err)
	assert.Nil(t, changes)
}

func TestDiffOpsDetectsChangedLeafAsReplace(t *testing.T) {
	type doc struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	ops, err := DiffOps(doc{Title: "a", Count: 1}, doc{Title: "b", Count: 1})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, patch.Replace, ops[0].Kind)
	assert.Equal(t, patch.ParsePath("/title"), ops[0].Path)
}
