package orchestrator

import (
	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/fusion"
	"github.com/senseye-project/senseye/internal/layout"
	"github.com/senseye-project/senseye/internal/worldstate"
)

// minTrilaterationAnchors is the fewest node-anchored distance estimates a
// device needs across the current belief window before a position is
// attempted.
const minTrilaterationAnchors = 3

// tomographyInfluenceRadius bounds how far a grid cell may sit from a
// link's path and still be treated as lying on it, matching the resolution
// of the floor plan's attenuation grid.
const tomographyInfluenceRadius = 0.5

// estimateDevicePositions trilaterates a 2D position for every device that
// at least minTrilaterationAnchors positioned nodes reported a distance to
// this cycle. Devices seen by fewer nodes keep whatever position (if any)
// the world state already has.
func (o *Orchestrator) estimateDevicePositions(window []*belief.Belief, nodePositions map[string]layout.Point) map[string]worldstate.DevicePosition {
	out := map[string]worldstate.DevicePosition{}
	if nodePositions == nil {
		return out
	}

	perDevice := map[string][]fusion.Anchor{}
	for _, b := range window {
		pos, ok := nodePositions[b.NodeID]
		if !ok {
			continue
		}
		for deviceID, dev := range b.Devices {
			if dev.EstimatedDistance == nil {
				continue
			}
			perDevice[deviceID] = append(perDevice[deviceID], fusion.Anchor{
				ID:       b.NodeID,
				X:        pos.X,
				Y:        pos.Y,
				Distance: *dev.EstimatedDistance,
			})
		}
	}

	for deviceID, anchors := range perDevice {
		if len(anchors) < minTrilaterationAnchors {
			continue
		}
		x, y, _, ok := fusion.Trilaterate(anchors)
		if !ok {
			continue
		}
		out[deviceID] = worldstate.DevicePosition{X: x, Y: y}
	}
	return out
}

// reconstructAttenuation rebuilds the floor plan's attenuation grid from
// this cycle's belief window, treating every link between two positioned
// nodes as one tomography measurement. Links to devices without a known
// position can't contribute a tomography row and are skipped; those devices
// are only ever located via estimateDevicePositions's trilateration.
func (o *Orchestrator) reconstructAttenuation(window []*belief.Belief, nodePositions map[string]layout.Point) {
	grid := o.floorPlan.AttenuationGrid
	if grid == nil || len(grid.Values) == 0 {
		return
	}

	var links []fusion.LinkMeasurement
	for _, b := range window {
		fromPos, ok := nodePositions[b.NodeID]
		if !ok {
			continue
		}
		for targetID, link := range b.Links {
			toPos, ok := nodePositions[targetID]
			if !ok {
				continue
			}
			links = append(links, fusion.LinkMeasurement{
				FromX: fromPos.X, FromY: fromPos.Y,
				ToX: toPos.X, ToY: toPos.Y,
				AttenuationDB: link.Attenuation,
				Confidence:    link.Confidence,
			})
		}
	}
	if len(links) == 0 {
		return
	}

	fg := fusion.Grid{
		MinX: grid.MinX, MinY: grid.MinY,
		MaxX: grid.MaxX, MaxY: grid.MaxY,
		CellsX: grid.CellsX, CellsY: grid.CellsY,
	}
	dense := fusion.Reconstruct(links, fg, tomographyInfluenceRadius)

	for r := 0; r < fg.CellsY; r++ {
		for c := 0; c < fg.CellsX; c++ {
			grid.Values[r][c] = dense.At(r, c)
		}
	}
}
