package orchestrator

import "github.com/senseye-project/senseye/internal/scanner"

// historyWindowMultiple keeps the per-device raw-RSSI ring buffer a small, bounded
// multiple of the motion detection window; inference only ever looks at the
// most recent MotionWindow samples, so there's no benefit to keeping more
// than a few windows' worth around.
const historyWindowMultiple = 4

// applyKalman runs every non-acoustic observation through the per-path
// Kalman filter, replacing its RSSI with the filtered estimate and
// recording the raw value into that device's history. Acoustic observations
// (echo or peer ranging) carry their own distance measurement and pass
// through unfiltered.
func (o *Orchestrator) applyKalman(obs []scanner.Observation) []scanner.Observation {
	out := make([]scanner.Observation, 0, len(obs))
	for _, ob := range obs {
		if ob.SignalType == scanner.SignalAcoustic {
			out = append(out, ob)
			continue
		}

		raw := ob.RSSI
		filtered, innovation := o.kalman.Update(o.cfg.NodeID, ob.DeviceID, raw)
		o.recordHistory(ob.DeviceID, raw)

		fo := ob
		fo.RSSI = filtered
		fo.Metadata.Innovation = &innovation
		fo.Metadata.RawRSSI = &raw
		out = append(out, fo)
	}
	return out
}

func (o *Orchestrator) recordHistory(deviceID string, rawRSSI float64) {
	limit := o.cfg.MotionWindow * historyWindowMultiple
	if limit <= 0 {
		limit = 8 * historyWindowMultiple
	}

	h := append(o.history[deviceID], rawRSSI)
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	o.history[deviceID] = h
}

func (o *Orchestrator) historySnapshot(deviceID string) []float64 {
	h := o.history[deviceID]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}
