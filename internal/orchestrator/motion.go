package orchestrator

import (
	"time"

	"github.com/senseye-project/senseye/internal/topology"
)

// extractMotionEventsAndUpdateTopology fires a zone-transition event for
// every tracked device whose room changed since last cycle while it was
// flagged as moving, and folds each transition into the room graph as a
// doorway traversal. A transition's exact crossing point isn't known (only
// that it happened between the two rooms), so new connections are anchored
// at the origin; UpdateTopology only uses the coordinates on first
// creation, and subsequent traversals of the same pair just increment the
// existing connection's count.
func (o *Orchestrator) extractMotionEventsAndUpdateTopology(now time.Time) {
	var fresh []motionEvent
	for deviceID, td := range o.world.Devices {
		if td.Zone == "" {
			continue
		}
		prev, seen := o.lastZoneByDevice[deviceID]
		if seen && prev != td.Zone && td.Moving {
			fresh = append(fresh, motionEvent{FromZone: prev, ToZone: td.Zone, At: now})
		}
		o.lastZoneByDevice[deviceID] = td.Zone
	}
	if len(fresh) == 0 {
		return
	}

	o.motionEvents = append(o.motionEvents, fresh...)
	if len(o.motionEvents) > maxMotionEvents {
		o.motionEvents = o.motionEvents[len(o.motionEvents)-maxMotionEvents:]
	}

	var promoted bool
	for _, ev := range fresh {
		if topology.UpdateTopology(&o.rooms, ev.FromZone, ev.ToZone, 0, 0) {
			promoted = true
		}
	}

	if promoted && o.floorPlan != nil {
		o.log.Info("orchestrator: doorway connection promoted", "connections", len(o.rooms.Connections))
		if err := o.floorPlan.Save(o.cfg.FloorplanPath); err != nil {
			o.log.Error("orchestrator: floor plan save failed", "err", err)
		}
	}
}
