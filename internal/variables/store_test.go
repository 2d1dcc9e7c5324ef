package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDottedPath(t *testing.T) {
	s := FromMap(map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
	})
	v, ok := s.Resolve("user.name")
	require.True(t, ok)
	assert.Equal(t, "ada", v)
}

func TestResolveArrayIndex(t *testing.T) {
	s := FromMap(map[string]interface{}{
		"map": map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{"id": "a"},
				map[string]interface{}{"id": "b"},
			},
		},
	})
	v, ok := s.Resolve("map.results[1].id")
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestResolveMissingPath(t *testing.T) {
	s := New()
	_, ok := s.Resolve("nope.nested")
	assert.False(t, ok)
}

func TestMergeOverlayWins(t *testing.T) {
	base := FromMap(map[string]interface{}{"a": 1, "b": 2})
	overlay := FromMap(map[string]interface{}{"b": 3})
	merged := Merge(base, overlay)

	va, _ := merged.Resolve("a")
	vb, _ := merged.Resolve("b")
	assert.Equal(t, 1, va)
	assert.Equal(t, 3, vb)

	// neither input mutated
	ba, _ := base.Resolve("b")
	assert.Equal(t, 2, ba)
}

func TestMergeAllLayering(t *testing.T) {
	workflow := FromMap(map[string]interface{}{"x": "workflow"})
	captured := FromMap(map[string]interface{}{"x": "captured"})
	iteration := FromMap(map[string]interface{}{"x": "iteration"})

	merged := MergeAll(workflow, captured, iteration)
	v, _ := merged.Resolve("x")
	assert.Equal(t, "iteration", v)
}

func TestAvailablePathsSorted(t *testing.T) {
	s := FromMap(map[string]interface{}{
		"b": "two",
		"a": "one",
	})
	paths := s.AvailablePaths()
	assert.Equal(t, []string{"a", "b"}, paths)
}
