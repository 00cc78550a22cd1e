package synctest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/patch"
)

func TestChangeBuilderAssemblesOps(t *testing.T) {
	c := NewChange("c1").BaseRev(5).CreatedAt(100).
		AddValue("/count", 1.0).
		Inc("/count", 2.0).
		Build()

	require.Equal(t, "c1", c.ID)
	require.Equal(t, int64(5), c.BaseRev)
	require.Len(t, c.Ops, 2)
	require.Equal(t, patch.Add, c.Ops[0].Kind)
	require.Equal(t, patch.Inc, c.Ops[1].Kind)
}

func TestSampleDocHasExpectedShape(t *testing.T) {
	doc := SampleDoc()
	require.Equal(t, "untitled", doc["title"])
	author := doc["author"].(map[string]any)
	require.Equal(t, "anonymous", author["name"])
}
