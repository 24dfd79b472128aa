package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senseye-project/senseye/internal/layout"
)

func TestInferRoomsFromNodes_ClustersNearbyNodes(t *testing.T) {
	positions := map[string]layout.Point{
		"n1": {X: 0, Y: 0},
		"n2": {X: 1, Y: 0},
		"n3": {X: 30, Y: 30},
		"n4": {X: 31, Y: 30},
	}

	graph := InferRoomsFromNodes(positions, nil)

	assert.Len(t, graph.Rooms, 2)
}

func TestInferRoomsFromNodes_SingleClusterWhenAllClose(t *testing.T) {
	positions := map[string]layout.Point{
		"n1": {X: 0, Y: 0},
		"n2": {X: 1, Y: 0},
		"n3": {X: 2, Y: 0},
	}

	graph := InferRoomsFromNodes(positions, nil)

	require.Len(t, graph.Rooms, 1)
	assert.Len(t, graph.Rooms[0].NodeIDs, 3)
}

func TestInferRoomsFromNodes_ProducesDoorwayBetweenRooms(t *testing.T) {
	positions := map[string]layout.Point{
		"n1": {X: 0, Y: 0},
		"n2": {X: 30, Y: 0},
	}

	graph := InferRoomsFromNodes(positions, nil)

	require.Len(t, graph.Rooms, 2)
	require.Len(t, graph.Connections, 1)
	assert.Greater(t, graph.Connections[0].X, 0.0)
}

func TestUpdateTopology_PromotesAfterThreeTraversals(t *testing.T) {
	graph := &RoomGraph{}

	var lastPromoted bool
	for i := 0; i < 3; i++ {
		lastPromoted = UpdateTopology(graph, "room-a", "room-b", 1, 1)
	}

	assert.True(t, lastPromoted)
	require.Len(t, graph.Connections, 1)
	assert.Equal(t, 3, graph.Connections[0].Traversals)
}

func TestUpdateTopology_SymmetricRoomOrderMatchesSameConnection(t *testing.T) {
	graph := &RoomGraph{}

	UpdateTopology(graph, "room-a", "room-b", 0, 0)
	UpdateTopology(graph, "room-b", "room-a", 0, 0)

	require.Len(t, graph.Connections, 1)
	assert.Equal(t, 2, graph.Connections[0].Traversals)
}

func TestSegmentsIntersect_CrossingSegments(t *testing.T) {
	a, b := layout.Point{X: 0, Y: 0}, layout.Point{X: 10, Y: 10}
	c, d := layout.Point{X: 0, Y: 10}, layout.Point{X: 10, Y: 0}

	assert.True(t, segmentsIntersect(a, b, c, d))
}

func TestSegmentsIntersect_ParallelSegmentsDoNotIntersect(t *testing.T) {
	a, b := layout.Point{X: 0, Y: 0}, layout.Point{X: 10, Y: 0}
	c, d := layout.Point{X: 0, Y: 5}, layout.Point{X: 10, Y: 5}

	assert.False(t, segmentsIntersect(a, b, c, d))
}
