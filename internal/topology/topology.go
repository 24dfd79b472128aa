// Package topology clusters sensing nodes into rooms and infers the
// doorway connections between them from repeated cross-room motion.
package topology

import (
	"math"
	"sort"

	"github.com/senseye-project/senseye/internal/floorplan"
	"github.com/senseye-project/senseye/internal/layout"
)

// Room is a cluster of node ids believed to share a physical space.
type Room struct {
	ID      string
	NodeIDs []string
}

// Connection is an inferred doorway between two rooms, anchored at the
// midpoint between their closest pair of nodes.
type Connection struct {
	RoomA, RoomB string
	X, Y         float64
	Traversals   int
}

// RoomGraph is the learned topology: a set of rooms and the connections
// discovered between them.
type RoomGraph struct {
	Rooms       []Room
	Connections []Connection
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{parent: map[string]string{}}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (uf *unionFind) find(id string) string {
	if uf.parent[id] != id {
		uf.parent[id] = uf.find(uf.parent[id])
	}
	return uf.parent[id]
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// clusterRadiusM is the maximum distance between two nodes for them to be
// considered part of the same room cluster.
const clusterRadiusM = 6.0

// InferRoomsFromNodes clusters nodes into rooms by union-finding any pair
// within clusterRadiusM of each other with no wall between them, then infers
// a doorway connection between every pair of rooms, anchored at their
// closest node pair. If every node collapses into a single
// cluster, it falls back to one room covering everything.
func InferRoomsFromNodes(positions map[string]layout.Point, walls []floorplan.WallSegment) RoomGraph {
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return RoomGraph{}
	}

	uf := newUnionFind(ids)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if !wallBetween(positions[a], positions[b], walls) &&
				dist(positions[a], positions[b]) <= clusterRadiusM {
				uf.union(a, b)
			}
		}
	}

	clusters := map[string][]string{}
	for _, id := range ids {
		root := uf.find(id)
		clusters[root] = append(clusters[root], id)
	}

	roomIDs := make([]string, 0, len(clusters))
	for root := range clusters {
		roomIDs = append(roomIDs, root)
	}
	sort.Strings(roomIDs)

	rooms := make([]Room, len(roomIDs))
	roomOf := map[string]int{}
	for i, root := range roomIDs {
		members := clusters[root]
		sort.Strings(members)
		rooms[i] = Room{ID: roomName(i), NodeIDs: members}
		for _, id := range members {
			roomOf[id] = i
		}
	}

	var connections []Connection
	for i := 0; i < len(rooms); i++ {
		for j := i + 1; j < len(rooms); j++ {
			conn, ok := closestDoorway(rooms[i], rooms[j], positions)
			if ok {
				connections = append(connections, conn)
			}
		}
	}

	return RoomGraph{Rooms: rooms, Connections: connections}
}

func roomName(i int) string {
	return "room-" + string(rune('a'+i))
}

func closestDoorway(a, b Room, positions map[string]layout.Point) (Connection, bool) {
	best := math.Inf(1)
	var bx, by float64
	found := false

	for _, na := range a.NodeIDs {
		for _, nb := range b.NodeIDs {
			d := dist(positions[na], positions[nb])
			if d < best {
				best = d
				bx = (positions[na].X + positions[nb].X) / 2
				by = (positions[na].Y + positions[nb].Y) / 2
				found = true
			}
		}
	}
	if !found {
		return Connection{}, false
	}
	return Connection{RoomA: a.ID, RoomB: b.ID, X: bx, Y: by}, true
}

// segmentsIntersect reports whether segment p1-p2 crosses segment p3-p4.
func segmentsIntersect(p1, p2, p3, p4 layout.Point) bool {
	d1 := cross(sub(p4, p3), sub(p1, p3))
	d2 := cross(sub(p4, p3), sub(p2, p3))
	d3 := cross(sub(p2, p1), sub(p3, p1))
	d4 := cross(sub(p2, p1), sub(p4, p1))
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func wallBetween(a, b layout.Point, walls []floorplan.WallSegment) bool {
	for _, w := range walls {
		if segmentsIntersect(a, b, layout.Point{X: w.X1, Y: w.Y1}, layout.Point{X: w.X2, Y: w.Y2}) {
			return true
		}
	}
	return false
}

func dist(a, b layout.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func sub(a, b layout.Point) layout.Point {
	return layout.Point{X: a.X - b.X, Y: a.Y - b.Y}
}

func cross(a, b layout.Point) float64 {
	return a.X*b.Y - a.Y*b.X
}

// doorwayTraversalThreshold is how many motion traces crossing between two
// rooms a connection needs before UpdateTopology reports it as promoted.
// UpdateTopology records the connection in the room graph from its first
// traversal; connections below the threshold are stored like promoted ones.
const doorwayTraversalThreshold = 3

// UpdateTopology increments the traversal count for the connection between
// roomA and roomB (creating it if absent) each time a motion trace is seen
// crossing between them, and returns whether the connection has now
// crossed the promotion threshold for the first time.
func UpdateTopology(graph *RoomGraph, roomA, roomB string, x, y float64) (promoted bool) {
	for i := range graph.Connections {
		c := &graph.Connections[i]
		if (c.RoomA == roomA && c.RoomB == roomB) || (c.RoomA == roomB && c.RoomB == roomA) {
			c.Traversals++
			return c.Traversals == doorwayTraversalThreshold
		}
	}
	graph.Connections = append(graph.Connections, Connection{RoomA: roomA, RoomB: roomB, X: x, Y: y, Traversals: 1})
	return doorwayTraversalThreshold <= 1
}
