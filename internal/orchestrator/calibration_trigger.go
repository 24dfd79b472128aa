package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/senseye-project/senseye/internal/calibration"
	"github.com/senseye-project/senseye/internal/config"
)

// calibrationScans is how many scan rounds a triggered calibration pass
// takes, the same burst-then-build approach calibration.Run expects.
const calibrationScans = 3

// maybeRecalibrate checks whether any recalibration trigger has fired and,
// gated by a minimum gap so a noisy trigger can't fire back-to-back passes,
// runs calibration.Run and swaps in the result.
func (o *Orchestrator) maybeRecalibrate(ctx context.Context, now time.Time, onlineNodes []string) {
	reason := o.recalibrationReason(now, onlineNodes)
	if reason == "" {
		return
	}
	if !o.lastCalibrationAt.IsZero() && now.Sub(o.lastCalibrationAt).Seconds() < o.cfg.CalibrationGapSecs {
		return
	}

	o.log.Info("orchestrator: recalibrating", "reason", reason)
	o.lastCalibrationAt = now

	forceAcoustic := o.cfg.AcousticMode != config.AcousticOff && o.echo != nil
	result, err := calibration.Run(ctx, o.cfg.NodeID, o.cfg.NodeID, o.scan, o.echo, o.chirpParams, forceAcoustic, onlineNodes, calibrationScans)
	if err != nil {
		o.log.Error("orchestrator: calibration failed", "err", err)
		return
	}

	o.floorPlan = result.Plan
	o.rooms = result.Rooms
	o.baselineRSSI = result.BaselineRSSI
	o.lastPeerSet = peerSet(onlineNodes)

	if err := o.floorPlan.Save(o.cfg.FloorplanPath); err != nil {
		o.log.Error("orchestrator: floor plan save failed", "err", err)
	}
}

// recalibrationReason reports why a recalibration pass should run, or ""
// if nothing currently calls for one.
func (o *Orchestrator) recalibrationReason(now time.Time, onlineNodes []string) string {
	if o.floorPlan == nil {
		return "no-floorplan"
	}
	if peerSetChanged(o.lastPeerSet, onlineNodes) {
		return "peer-topology-change"
	}
	if drift, ok := o.rssiDrift(); ok {
		return fmt.Sprintf("rssi-drift-%.1fdB", drift)
	}
	if o.cfg.AcousticMode == config.AcousticInterval && now.Sub(o.lastCalibrationAt) >= o.cfg.AcousticInterval() {
		return "acoustic-interval"
	}
	return ""
}

// rssiDrift averages the absolute RSSI drift, across every calibration
// device still being tracked, between its current reading and the baseline
// recorded at the last calibration. A result is only reported once at
// least RSSIDriftMinDevices devices contribute, so a single noisy device
// can't force a recalibration on its own.
func (o *Orchestrator) rssiDrift() (avgDriftDB float64, ok bool) {
	var sum float64
	var n int
	for id, baseline := range o.baselineRSSI {
		td, exists := o.world.Devices[id]
		if !exists {
			continue
		}
		sum += math.Abs(td.RSSI - baseline)
		n++
	}
	if n < o.cfg.RSSIDriftMinDevices {
		return 0, false
	}
	avg := sum / float64(n)
	if avg < o.cfg.RSSIDriftThreshold {
		return 0, false
	}
	return avg, true
}

func peerSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// peerSetChanged reports whether current differs from last. A nil last (no
// calibration has happened yet) never counts as changed; recalibrationReason
// already covers the first pass via "no-floorplan".
func peerSetChanged(last map[string]bool, current []string) bool {
	if last == nil {
		return false
	}
	if len(last) != len(current) {
		return true
	}
	for _, id := range current {
		if !last[id] {
			return true
		}
	}
	return false
}
