// Package belief holds the per-node snapshot types that flow from local
// inference, across the gossip mesh, and into consensus fusion.
package belief

import "time"

// LinkState is a directed belief about a signal path from the owning node
// to one device or peer.
type LinkState struct {
	Attenuation float64 `json:"attenuation"`
	Motion      bool    `json:"motion"`
	Confidence  float64 `json:"confidence"`
}

// DeviceState is a per-device aggregate seen by the owning node.
type DeviceState struct {
	RSSI              float64  `json:"rssi"`
	EstimatedDistance *float64 `json:"estimated_distance"`
	Moving            bool     `json:"moving"`
}

// ZoneBelief is a per-room occupancy/motion summary in [0,1].
type ZoneBelief struct {
	Occupied float64 `json:"occupied"`
	Motion   float64 `json:"motion"`
}

// Belief is one node's periodic broadcast unit. SequenceNumber is strictly
// increasing per NodeID across the system; receivers drop duplicates and
// anything that doesn't exceed the last-seen sequence number for its
// producer.
type Belief struct {
	NodeID         string                 `json:"node_id"`
	Timestamp      float64                `json:"timestamp"`
	SequenceNumber int64                  `json:"sequence_number"`
	HopCount       int                    `json:"hop_count"`
	Links          map[string]LinkState   `json:"links"`
	Devices        map[string]DeviceState `json:"devices"`
	Zones          map[string]ZoneBelief  `json:"zones"`
	AcousticRanges map[string]float64     `json:"acoustic_ranges"`
}

// New builds an empty Belief for nodeID stamped with the current time, the
// default hop count, and empty maps ready to be filled by inference.
func New(nodeID string) *Belief {
	return &Belief{
		NodeID:         nodeID,
		Timestamp:      float64(time.Now().UnixNano()) / 1e9,
		HopCount:       DefaultHopCount,
		Links:          map[string]LinkState{},
		Devices:        map[string]DeviceState{},
		Zones:          map[string]ZoneBelief{},
		AcousticRanges: map[string]float64{},
	}
}

// DefaultHopCount is the TTL a locally produced belief starts with.
const DefaultHopCount = 3

// Relay returns a copy of b suitable for forwarding one hop further: same
// producer id and sequence number, decremented TTL. The original is never
// mutated so the caller's stored "latest belief" snapshot stays intact.
func (b *Belief) Relay() *Belief {
	relay := *b
	relay.HopCount = b.HopCount - 1
	relay.Links = b.Links
	relay.Devices = b.Devices
	relay.Zones = b.Zones
	relay.AcousticRanges = b.AcousticRanges
	return &relay
}
