package signalgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddEdgeCreatesImplicitVertices(t *testing.T) {
	g := New()

	g.AddEdge(Edge{Source: "node-a", Target: "dev-1", Weight: 1, Attenuation: 30})

	_, ok := g.Vertex("node-a")
	assert.True(t, ok)
	_, ok = g.Vertex("dev-1")
	assert.True(t, ok)
}

func TestGraph_EdgeLookupRoundTrips(t *testing.T) {
	g := New()
	g.AddEdge(Edge{Source: "node-a", Target: "dev-1", Weight: 0.8, Attenuation: 42})

	e, ok := g.Edge("node-a", "dev-1")

	require.True(t, ok)
	assert.Equal(t, 42.0, e.Attenuation)
}

func TestGraph_NeighborsReturnsOutgoingTargets(t *testing.T) {
	g := New()
	g.AddEdge(Edge{Source: "node-a", Target: "dev-1"})
	g.AddEdge(Edge{Source: "node-a", Target: "dev-2"})

	neighbors := g.Neighbors("node-a")

	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, neighbors)
}

func TestGraph_UnknownVertexNotFound(t *testing.T) {
	g := New()

	_, ok := g.Vertex("missing")

	assert.False(t, ok)
}

func TestGraph_EdgesReturnsAllEdges(t *testing.T) {
	g := New()
	g.AddEdge(Edge{Source: "a", Target: "b"})
	g.AddEdge(Edge{Source: "b", Target: "c"})

	assert.Len(t, g.Edges(), 2)
}
