// Package worldstate holds the orchestrator's live, continuously decaying
// view of the space: which devices are around, where they probably are,
// which nodes are currently reachable, and how "fresh" that picture is.
package worldstate

import (
	"math"
	"time"

	"github.com/senseye-project/senseye/internal/belief"
)

// MotionState tracks one zone's motion level with exponential decay between
// updates, so a burst of motion fades out smoothly rather than vanishing
// the instant observations stop arriving.
type MotionState struct {
	Level float64
}

// motionDecayPerSecond controls how quickly a zone's motion level decays
// toward zero absent new observations.
const motionDecayPerSecond = 0.35

// nearZeroFloor below this, the decayed level is snapped to exactly zero so
// it doesn't linger as an invisible but nonzero value forever.
const nearZeroFloor = 0.01

// Update decays the motion level by dt seconds and merges in a new
// observed level by taking the max, so a momentary high reading isn't
// immediately washed out by the same cycle's decay.
func (m *MotionState) Update(observed float64, dt time.Duration) {
	decayed := m.Level * math.Exp(-motionDecayPerSecond*dt.Seconds())
	if decayed < nearZeroFloor {
		decayed = 0
	}
	m.Level = math.Max(decayed, observed)
}

// TrackedDevice is the world state's merged view of one device across all
// nodes that have reported seeing it.
type TrackedDevice struct {
	DeviceID    string
	RSSI        float64
	DistanceM   *float64
	Moving      bool
	Zone        string
	SignalType  string
	X, Y        float64
	HasPosition bool
	LastSeen    time.Time
}

// NodeInfo is the world state's view of one sensing node's liveness.
type NodeInfo struct {
	NodeID   string
	Online   bool
	LastSeen time.Time
}

// WorldState is the orchestrator's full live picture: tracked devices,
// known nodes, and per-zone motion, plus when it was last refreshed.
type WorldState struct {
	Devices    map[string]*TrackedDevice
	Nodes      map[string]*NodeInfo
	Zones      map[string]*MotionState
	LastUpdate time.Time
}

// New returns an empty WorldState.
func New() *WorldState {
	return &WorldState{
		Devices: map[string]*TrackedDevice{},
		Nodes:   map[string]*NodeInfo{},
		Zones:   map[string]*MotionState{},
	}
}

// DevicePosition is an externally computed (e.g. trilaterated) position for
// a device, passed into Update alongside the fused belief.
type DevicePosition struct {
	X, Y float64
}

// Update folds a freshly fused Belief into the world state: zone motion is
// decayed and merged, devices are upserted (refreshing position when
// devicePositions has an entry, signal type when deviceSignalTypes has one),
// and the producing node plus every currently-reachable peer in onlineNodes
// is marked online with a fresh LastSeen.
func (w *WorldState) Update(
	fused *belief.Belief,
	now time.Time,
	devicePositions map[string]DevicePosition,
	deviceSignalTypes map[string]string,
	onlineNodes []string,
) {
	dt := now.Sub(w.LastUpdate)
	if w.LastUpdate.IsZero() {
		dt = 0
	}
	w.LastUpdate = now

	for zone, zb := range fused.Zones {
		ms, ok := w.Zones[zone]
		if !ok {
			ms = &MotionState{}
			w.Zones[zone] = ms
		}
		ms.Update(zb.Motion, dt)
	}

	for deviceID, dev := range fused.Devices {
		td, ok := w.Devices[deviceID]
		if !ok {
			td = &TrackedDevice{DeviceID: deviceID}
			w.Devices[deviceID] = td
		}
		td.RSSI = dev.RSSI
		td.DistanceM = dev.EstimatedDistance
		td.Moving = dev.Moving
		td.LastSeen = now

		if pos, ok := devicePositions[deviceID]; ok {
			td.X, td.Y = pos.X, pos.Y
			td.HasPosition = true
		}
		if st, ok := deviceSignalTypes[deviceID]; ok {
			td.SignalType = st
		}
	}

	w.upsertNode(fused.NodeID, now)
	for _, id := range onlineNodes {
		w.upsertNode(id, now)
	}
}

func (w *WorldState) upsertNode(nodeID string, now time.Time) {
	ni, ok := w.Nodes[nodeID]
	if !ok {
		ni = &NodeInfo{NodeID: nodeID}
		w.Nodes[nodeID] = ni
	}
	ni.Online = true
	ni.LastSeen = now
}

// MarkNodesOffline flips any node not present in stillOnline to offline,
// called once per sense cycle after the mesh reports its current peer set.
func (w *WorldState) MarkNodesOffline(stillOnline map[string]bool) {
	for id, ni := range w.Nodes {
		if !stillOnline[id] {
			ni.Online = false
		}
	}
}

// CleanupStaleDevices removes any tracked device not seen within maxAge.
func (w *WorldState) CleanupStaleDevices(now time.Time, maxAge time.Duration) {
	for id, td := range w.Devices {
		if now.Sub(td.LastSeen) > maxAge {
			delete(w.Devices, id)
		}
	}
}

// Age returns how long ago the world state was last refreshed.
func (w *WorldState) Age(now time.Time) time.Duration {
	if w.LastUpdate.IsZero() {
		return 0
	}
	return now.Sub(w.LastUpdate)
}
