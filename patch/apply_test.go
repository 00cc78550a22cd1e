package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAdd(t *testing.T) {
	state := map[string]any{"a": map[string]any{}}

	out, err := Apply(state, Op{Kind: Add, Path: ParsePath("/a/b"), Value: "v"}, Strict)
	require.NoError(t, err)

	got := out.(map[string]any)["a"].(map[string]any)["b"]
	assert.Equal(t, "v", got)

	// original state untouched (copy-on-write)
	_, stillAbsent := state["a"].(map[string]any)["b"]
	assert.False(t, stillAbsent)
}

func TestApplyAddArrayInsertAndAppend(t *testing.T) {
	state := map[string]any{"items": []any{"x", "y"}}

	out, err := Apply(state, Op{Kind: Add, Path: ParsePath("/items/1"), Value: "mid"}, Strict)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "mid", "y"}, out.(map[string]any)["items"])

	out2, err := Apply(state, Op{Kind: Add, Path: ParsePath("/items/-"), Value: "end"}, Strict)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y", "end"}, out2.(map[string]any)["items"])
}

func TestApplyRemove(t *testing.T) {
	state := map[string]any{"a": 1.0, "b": 2.0}
	out, err := Apply(state, Op{Kind: Remove, Path: ParsePath("/a")}, Strict)
	require.NoError(t, err)
	m := out.(map[string]any)
	_, ok := m["a"]
	assert.False(t, ok)
	assert.Equal(t, 2.0, m["b"])
}

func TestApplyReplaceMissingIsError(t *testing.T) {
	state := map[string]any{}
	_, err := Apply(state, Op{Kind: Replace, Path: ParsePath("/missing"), Value: 1.0}, Strict)
	assert.Error(t, err)

	// NonStrict mode swallows the error and returns state unchanged.
	out, err := Apply(state, Op{Kind: Replace, Path: ParsePath("/missing"), Value: 1.0}, NonStrict)
	require.NoError(t, err)
	assert.Equal(t, state, out)
}

func TestApplyMove(t *testing.T) {
	state := map[string]any{"a": map[string]any{"x": 1.0}, "b": map[string]any{}}
	out, err := Apply(state, Op{Kind: Move, From: ParsePath("/a/x"), Path: ParsePath("/b/x")}, Strict)
	require.NoError(t, err)
	m := out.(map[string]any)
	_, stillThere := m["a"].(map[string]any)["x"]
	assert.False(t, stillThere)
	assert.Equal(t, 1.0, m["b"].(map[string]any)["x"])
}

func TestApplyCopyDoesNotAliasContainers(t *testing.T) {
	state := map[string]any{"a": map[string]any{"nested": map[string]any{"v": 1.0}}, "b": map[string]any{}}
	out, err := Apply(state, Op{Kind: Copy, From: ParsePath("/a"), Path: ParsePath("/b/copy")}, Strict)
	require.NoError(t, err)

	out2, err := Apply(out, Op{Kind: Replace, Path: ParsePath("/b/copy/nested/v"), Value: 2.0}, Strict)
	require.NoError(t, err)

	m := out2.(map[string]any)
	assert.Equal(t, 1.0, m["a"].(map[string]any)["nested"].(map[string]any)["v"])
	assert.Equal(t, 2.0, m["b"].(map[string]any)["copy"].(map[string]any)["nested"].(map[string]any)["v"])
}

func TestApplyCombinableInc(t *testing.T) {
	state := map[string]any{"count": 3.0}
	out, err := Apply(state, Op{Kind: Inc, Path: ParsePath("/count"), Value: 2.0}, Strict)
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.(map[string]any)["count"])
}

func TestApplyCombinableBitXOR(t *testing.T) {
	state := map[string]any{"flags": uint64(0b1010)}
	out, err := Apply(state, Op{Kind: Bit, Path: ParsePath("/flags"), Value: uint64(0b0110)}, Strict)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1100), out.(map[string]any)["flags"])
}

func TestApplyCombinableMinMax(t *testing.T) {
	state := map[string]any{"score": 10.0}
	out, err := Apply(state, Op{Kind: Max, Path: ParsePath("/score"), Value: 5.0}, Strict)
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.(map[string]any)["score"])

	out2, err := Apply(out, Op{Kind: Max, Path: ParsePath("/score"), Value: 20.0}, Strict)
	require.NoError(t, err)
	assert.Equal(t, 20.0, out2.(map[string]any)["score"])
}

func TestApplyTxt(t *testing.T) {
	state := map[string]any{"body": "hello world"}
	delta := TextDelta{{Retain: 6}, {Insert: "brave "}, {Retain: 5}}
	out, err := Apply(state, Op{Kind: Txt, Path: ParsePath("/body"), Delta: delta}, Strict)
	require.NoError(t, err)
	assert.Equal(t, "hello brave world", out.(map[string]any)["body"])
}
