package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func union(derived string, sources ...string) MergeSpec {
	spec := MergeSpec{DerivedID: derived, Kind: MergeUnion}
	for _, s := range sources {
		spec.Sources = append(spec.Sources, MergeSource{SourceID: s})
	}
	return spec
}

func TestDependencyGraph_Tiers(t *testing.T) {
	// a, b -> m1; m1, c -> m2; a, c -> m3; m2, m3 -> m4
	g := NewDependencyGraph([]MergeSpec{
		union("m1", "a", "b"),
		union("m2", "m1", "c"),
		union("m3", "a", "c"),
		union("m4", "m2", "m3"),
	})

	tiers, err := g.Tiers("a")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"m1", "m3"}, {"m2"}, {"m4"}}, tiers)

	tiers, err = g.Tiers("c")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"m2", "m3"}, {"m4"}}, tiers)

	tiers, err = g.Tiers("m4")
	require.NoError(t, err)
	assert.Empty(t, tiers)

	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, g.Affected("a"))
	assert.Equal(t, []string{"m1", "m3"}, g.Dependents("a"))
}

func TestDependencyGraph_CheckAdd(t *testing.T) {
	g := NewDependencyGraph([]MergeSpec{
		union("m1", "a", "b"),
		union("m2", "m1", "c"),
	})

	assert.NoError(t, g.CheckAdd(union("m3", "m2", "a")))

	err := g.CheckAdd(union("m1", "m2", "b"))
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "m1", ce.Path[0])
	assert.Equal(t, "m1", ce.Path[len(ce.Path)-1])

	_, ok := g.Spec("m1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, g.specs["m1"].SourceIDs(), "CheckAdd must not modify the graph")
}

func TestDependencyGraph_Redefine(t *testing.T) {
	g := NewDependencyGraph([]MergeSpec{union("m1", "a", "b")})
	g.add(union("m1", "c", "d"))

	assert.Empty(t, g.Dependents("a"))
	assert.Equal(t, []string{"m1"}, g.Dependents("c"))
}
