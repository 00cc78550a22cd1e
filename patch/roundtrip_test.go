package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertRoundTrip checks property #6: apply(s, invert(s,op)) . apply(s,op) = s.
func assertRoundTrip(t *testing.T, state any, op Op) {
	t.Helper()
	inv, err := Invert(state, op)
	require.NoError(t, err)

	forward, err := Apply(state, op, Strict)
	require.NoError(t, err)

	back, err := Apply(forward, inv, Strict)
	require.NoError(t, err)

	assert.Equal(t, state, back)
}

func TestInvertRoundTripAllKinds(t *testing.T) {
	state := map[string]any{
		"a":     1.0,
		"b":     map[string]any{"c": "x"},
		"items": []any{"p", "q"},
		"flags": uint64(0b0101),
		"body":  "hello world",
	}

	assertRoundTrip(t, state, Op{Kind: Add, Path: ParsePath("/d"), Value: "new"})
	assertRoundTrip(t, state, Op{Kind: Remove, Path: ParsePath("/a")})
	assertRoundTrip(t, state, Op{Kind: Replace, Path: ParsePath("/a"), Value: 99.0})
	assertRoundTrip(t, state, Op{Kind: Move, From: ParsePath("/b/c"), Path: ParsePath("/e")})
	assertRoundTrip(t, state, Op{Kind: Copy, From: ParsePath("/a"), Path: ParsePath("/f")})
	assertRoundTrip(t, state, Op{Kind: Inc, Path: ParsePath("/a"), Value: 5.0})
	assertRoundTrip(t, state, Op{Kind: Bit, Path: ParsePath("/flags"), Value: uint64(0b1100)})
	assertRoundTrip(t, state, Op{Kind: Min, Path: ParsePath("/a"), Value: 0.5})
	assertRoundTrip(t, state, Op{Kind: Max, Path: ParsePath("/a"), Value: 100.0})
	assertRoundTrip(t, state, Op{Kind: Txt, Path: ParsePath("/body"), Delta: TextDelta{{Retain: 5}, {Insert: ","}, {Retain: 6}}})
}

func TestComposeReplaceReplace(t *testing.T) {
	a := Op{Kind: Replace, Path: ParsePath("/a"), Value: 1.0}
	b := Op{Kind: Replace, Path: ParsePath("/a"), Value: 2.0}
	out, ok, err := Compose(a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Op{Kind: Replace, Path: ParsePath("/a"), Value: 2.0}, out)
}

func TestComposeIncFolds(t *testing.T) {
	a := Op{Kind: Inc, Path: ParsePath("/count"), Value: 2.0}
	b := Op{Kind: Inc, Path: ParsePath("/count"), Value: 3.0}
	out, ok, err := Compose(a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5.0, out.Value)

	// composed op applied once matches sequential application.
	state := map[string]any{"count": 1.0}
	seq, err := ApplyAll(state, []Op{a, b}, Strict)
	require.NoError(t, err)
	folded, err := Apply(state, out, Strict)
	require.NoError(t, err)
	assert.Equal(t, seq, folded)
}

func TestComposeDifferentPathsNoOp(t *testing.T) {
	a := Op{Kind: Replace, Path: ParsePath("/a"), Value: 1.0}
	b := Op{Kind: Replace, Path: ParsePath("/b"), Value: 2.0}
	_, ok, err := Compose(a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransformConcurrentArrayAddShifts(t *testing.T) {
	state := map[string]any{"items": []any{"x", "y"}}
	a := Op{Kind: Add, Path: ParsePath("/items/1"), Value: "fromA"}
	b := Op{Kind: Add, Path: ParsePath("/items/1"), Value: "fromB"}

	bPrime, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ParsePath("/items/2"), bPrime.Path)

	afterA, err := Apply(state, a, Strict)
	require.NoError(t, err)
	afterBoth, err := Apply(afterA, bPrime, Strict)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "fromA", "fromB", "y"}, afterBoth.(map[string]any)["items"])
}

func TestTransformConcurrentObjectReplaceLastWriteWins(t *testing.T) {
	state := map[string]any{"title": "orig"}
	a := Op{Kind: Replace, Path: ParsePath("/title"), Value: "fromA"}
	b := Op{Kind: Replace, Path: ParsePath("/title"), Value: "fromB"}

	bPrime, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	require.True(t, ok)

	afterA, err := Apply(state, a, Strict)
	require.NoError(t, err)
	afterBoth, err := Apply(afterA, bPrime, Strict)
	require.NoError(t, err)
	assert.Equal(t, "fromB", afterBoth.(map[string]any)["title"])
}

func TestTransformRemoveDropsConcurrentRemoveOfSamePath(t *testing.T) {
	state := map[string]any{"a": 1.0}
	a := Op{Kind: Remove, Path: ParsePath("/a")}
	b := Op{Kind: Remove, Path: ParsePath("/a")}

	_, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransformCombinablePassesThrough(t *testing.T) {
	state := map[string]any{"count": 1.0}
	a := Op{Kind: Inc, Path: ParsePath("/count"), Value: 1.0}
	b := Op{Kind: Inc, Path: ParsePath("/count"), Value: 2.0}

	bPrime, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, bPrime)
}

func TestTransformRemoveShiftsLaterArrayIndices(t *testing.T) {
	state := map[string]any{"items": []any{"x", "y", "z"}}
	a := Op{Kind: Remove, Path: ParsePath("/items/0")}
	b := Op{Kind: Replace, Path: ParsePath("/items/2"), Value: "zz"}

	bPrime, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ParsePath("/items/1"), bPrime.Path)
}

func TestTransformRemoveOfParentDropsChildReplace(t *testing.T) {
	state := map[string]any{"foo": map[string]any{"bar": 1.0}}
	a := Op{Kind: Remove, Path: ParsePath("/foo")}
	b := Op{Kind: Replace, Path: ParsePath("/foo/bar"), Value: 99.0}

	_, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransformObjectAddOverwriteDropsChildReplace(t *testing.T) {
	state := map[string]any{"foo": map[string]any{"bar": 1.0}}
	a := Op{Kind: Add, Path: ParsePath("/foo"), Value: map[string]any{"bar": 2.0, "baz": 3.0}}
	b := Op{Kind: Replace, Path: ParsePath("/foo/bar"), Value: 99.0}

	_, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransformSoftAddOfEmptyObjectNeverDropsChild(t *testing.T) {
	state := map[string]any{}
	a := Op{Kind: Add, Path: ParsePath("/foo"), Value: map[string]any{}, Soft: true}
	b := Op{Kind: Add, Path: ParsePath("/foo/bar"), Value: 1.0}

	bPrime, ok, err := Transform(state, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, bPrime)
}

func TestInvertArrayAddResolvesDashToConcreteIndex(t *testing.T) {
	state := map[string]any{"items": []any{"x", "y"}}
	op := Op{Kind: Add, Path: ParsePath("/items/-"), Value: "z"}

	inv, err := Invert(state, op)
	require.NoError(t, err)
	assert.Equal(t, Op{Kind: Remove, Path: ParsePath("/items/2")}, inv)

	forward, err := Apply(state, op, Strict)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y", "z"}, forward.(map[string]any)["items"])

	back, err := Apply(forward, inv, Strict)
	require.NoError(t, err)
	assert.Equal(t, state, back)
}

func TestInvertArrayAddAtMiddleIndexIsRemoveNotReplace(t *testing.T) {
	state := map[string]any{"items": []any{"x", "y"}}
	op := Op{Kind: Add, Path: ParsePath("/items/1"), Value: "z"}

	inv, err := Invert(state, op)
	require.NoError(t, err)
	assert.Equal(t, Op{Kind: Remove, Path: ParsePath("/items/1")}, inv)

	assertRoundTrip(t, state, op)
}
