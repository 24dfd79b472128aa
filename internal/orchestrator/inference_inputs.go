package orchestrator

import (
	"github.com/senseye-project/senseye/internal/inference"
	"github.com/senseye-project/senseye/internal/scanner"
)

// buildDeviceInputs turns this cycle's filtered observations into the
// inputs inference.Infer expects, pulling each device's raw history out of
// the rolling buffer applyKalman just updated.
func (o *Orchestrator) buildDeviceInputs(filtered []scanner.Observation) []inference.DeviceInput {
	inputs := make([]inference.DeviceInput, 0, len(filtered))
	for _, ob := range filtered {
		history := o.historySnapshot(ob.DeviceID)

		in := inference.DeviceInput{
			DeviceID:        ob.DeviceID,
			FilteredRSSI:    ob.RSSI,
			RawHistory:      history,
			SampleCount:     len(history),
			ExpectedSamples: o.cfg.MotionWindow,
			SignalType:      ob.SignalType,
		}
		if ob.Metadata.Innovation != nil {
			in.Innovation = *ob.Metadata.Innovation
		}
		if ob.SignalType == scanner.SignalAcoustic {
			if ob.Metadata.DistanceM != nil {
				d := *ob.Metadata.DistanceM
				in.AcousticRangeM = &d
			}
			if ob.Metadata.PeakSNR != nil {
				snr := *ob.Metadata.PeakSNR
				in.SNR = &snr
			}
		}

		inputs = append(inputs, in)
	}
	return inputs
}

// myRoomID returns the id of the room this node's own floor-plan position
// was clustered into, or "" before any floor plan exists.
func (o *Orchestrator) myRoomID() string {
	for _, room := range o.rooms.Rooms {
		for _, id := range room.NodeIDs {
			if id == o.cfg.NodeID {
				return room.ID
			}
		}
	}
	return ""
}

// buildZoneLinks reports every device seen this cycle as occupying this
// node's own room: a device can only be observed from where this node
// physically sits, so zone membership falls directly out of node placement
// rather than needing its own triangulation pass.
func (o *Orchestrator) buildZoneLinks(filtered []scanner.Observation) map[string][]string {
	room := o.myRoomID()
	if room == "" {
		return map[string][]string{}
	}

	ids := make([]string, 0, len(filtered))
	for _, ob := range filtered {
		ids = append(ids, ob.DeviceID)
	}
	return map[string][]string{room: ids}
}

// assignDeviceZones stamps the world state's tracked devices with the room
// they were just observed in. worldstate.Update never sets Zone itself since
// zone membership is a function of node placement, which only the
// orchestrator (not worldstate) knows about.
func (o *Orchestrator) assignDeviceZones(filtered []scanner.Observation) {
	room := o.myRoomID()
	if room == "" {
		return
	}
	for _, ob := range filtered {
		if td, ok := o.world.Devices[ob.DeviceID]; ok {
			td.Zone = room
		}
	}
}
