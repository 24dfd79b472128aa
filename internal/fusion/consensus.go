// Package fusion combines a node's own Belief with beliefs gossiped in from
// peers into a single consensus view, and derives physical structure
// (device positions, an attenuation field) from the resulting signal graph.
package fusion

import (
	"math"
	"sort"

	"github.com/senseye-project/senseye/internal/belief"
)

// agreementPenaltyScale controls how sharply disagreement between sources
// erodes consensus confidence: a higher value makes the fusion less
// forgiving of sources that disagree moderately.
const agreementPenaltyScale = 2.5

// varianceEpsilon keeps a variance computation from reaching exactly zero
// when every contributing source reports maximum confidence.
const varianceEpsilon = 1e-6

// sumWeightEpsilon guards weighted-mean/variance division when the total
// precision of a sample set is negligible (effectively no samples).
const sumWeightEpsilon = 1e-6

// weighted is an intermediate (value, confidence) sample before it's turned
// into a precision-weighted estimate.
type weighted struct {
	value      float64
	confidence float64
}

// varianceFromConfidence maps a confidence in [0,1] to a positive variance,
// clamping confidence into [0.01, 0.99] first so that neither a perfectly
// confident nor a zero-confidence source can drive the variance to zero or
// infinity.
func varianceFromConfidence(confidence float64) float64 {
	c := math.Min(math.Max(confidence, 0.01), 0.99)
	return (1-c)/c + varianceEpsilon
}

func precisionFromConfidence(confidence float64) float64 {
	return 1 / varianceFromConfidence(confidence)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// weightedMean computes the precision-weighted mean of samples.
func weightedMean(samples []weighted) float64 {
	var num, den float64
	for _, s := range samples {
		w := precisionFromConfidence(s.confidence)
		num += w * s.value
		den += w
	}
	if den <= sumWeightEpsilon {
		return 0
	}
	return num / den
}

// weightedVariance computes the precision-weighted variance of samples
// around mean.
func weightedVariance(samples []weighted, mean float64) float64 {
	var num, den float64
	for _, s := range samples {
		w := precisionFromConfidence(s.confidence)
		d := s.value - mean
		num += w * d * d
		den += w
	}
	if den <= sumWeightEpsilon {
		return 0
	}
	return num / den
}

// agreementPenalty maps a sample set's weighted variance to a [0,1]
// confidence multiplier: sources that agree closely leave the fused
// confidence nearly untouched, while wide disagreement pulls it toward
// zero. A single sample can't disagree with itself, so it's left
// unpenalized.
func agreementPenalty(samples []weighted, mean float64) float64 {
	if len(samples) < 2 {
		return 1
	}
	variance := weightedVariance(samples, mean)
	return 1 / (1 + agreementPenaltyScale*variance)
}

// Fuse combines a node's local belief with beliefs received from peers (via
// the gossip mesh) into one consensus belief. local is always included;
// peers may be empty, in which case Fuse returns local unchanged except for
// a deep copy.
func Fuse(local *belief.Belief, peers []*belief.Belief) *belief.Belief {
	out := belief.New(local.NodeID)
	out.SequenceNumber = local.SequenceNumber
	out.Timestamp = local.Timestamp

	all := append([]*belief.Belief{local}, peers...)

	fuseLinks(all, out)
	fuseDevices(all, out)
	fuseZones(all, out)
	fuseAcousticRanges(all, out)

	return out
}

func fuseLinks(all []*belief.Belief, out *belief.Belief) {
	byTarget := map[string][]weighted{}

	for _, b := range all {
		for target, link := range b.Links {
			byTarget[target] = append(byTarget[target], weighted{value: link.Attenuation, confidence: link.Confidence})
		}
	}

	motionByTarget := map[string][]weighted{}
	for _, b := range all {
		for target, link := range b.Links {
			motion := 0.0
			if link.Motion {
				motion = 1
			}
			motionByTarget[target] = append(motionByTarget[target], weighted{value: motion, confidence: link.Confidence})
		}
	}

	for target, samples := range byTarget {
		var totalPrecision float64
		for _, s := range samples {
			totalPrecision += precisionFromConfidence(s.confidence)
		}

		mean := weightedMean(samples)
		baseConfidence := totalPrecision / (1 + totalPrecision)
		confidence := clamp01(baseConfidence * agreementPenalty(samples, mean))

		avgMotion := weightedMean(motionByTarget[target])

		out.Links[target] = belief.LinkState{
			Attenuation: math.Max(mean, 0),
			Motion:      avgMotion >= 0.5,
			Confidence:  confidence,
		}
	}
}

// deviceConfidence blends the matching link's confidence (or a 0.35
// baseline when this source has no link belief for the device), a
// distance-based confidence that decays with range, and a penalty for a
// device currently in motion, whose instantaneous readings are less
// trustworthy.
func deviceConfidence(link belief.LinkState, hasLink bool, distance *float64, moving bool) float64 {
	confidence := 0.35
	if hasLink {
		confidence = link.Confidence
	}

	if distance != nil && *distance > 0 {
		distanceConfidence := 1 / (1 + *distance/15.0)
		confidence = 0.6*confidence + 0.4*distanceConfidence
	}

	if moving {
		confidence *= 0.9
	}

	return math.Min(math.Max(confidence, 0.05), 0.99)
}

func fuseDevices(all []*belief.Belief, out *belief.Belief) {
	rssiByDevice := map[string][]weighted{}
	motionByDevice := map[string][]weighted{}
	distByDevice := map[string][]weightedPrecision{}

	for _, b := range all {
		for id, dev := range b.Devices {
			link, hasLink := b.Links[id]
			conf := deviceConfidence(link, hasLink, dev.EstimatedDistance, dev.Moving)
			precision := precisionFromConfidence(conf)

			rssiByDevice[id] = append(rssiByDevice[id], weighted{value: dev.RSSI, confidence: conf})

			motion := 0.0
			if dev.Moving {
				motion = 1
			}
			motionByDevice[id] = append(motionByDevice[id], weighted{value: motion, confidence: conf})

			if dev.EstimatedDistance != nil && *dev.EstimatedDistance > 0 {
				// Long-range RF distances are less reliable; down-weight by
				// squared range on top of the device's own precision.
				rangeScale := math.Max(*dev.EstimatedDistance, 1) * math.Max(*dev.EstimatedDistance, 1)
				distByDevice[id] = append(distByDevice[id], weightedPrecision{value: *dev.EstimatedDistance, precision: precision / rangeScale})
			}
		}
	}

	for id, rssiSamples := range rssiByDevice {
		rssiMean := weightedMean(rssiSamples)
		avgMotion := weightedMean(motionByDevice[id])

		var distPtr *float64
		if distSamples, ok := distByDevice[id]; ok && len(distSamples) > 0 {
			d := weightedMeanByPrecision(distSamples)
			distPtr = &d
		}

		out.Devices[id] = belief.DeviceState{
			RSSI:              rssiMean,
			EstimatedDistance: distPtr,
			Moving:            avgMotion >= 0.5,
		}
	}
}

// weightedPrecision is a sample already carrying an explicit precision
// (rather than a confidence to be mapped to one), used where the weight
// includes a range-scale adjustment on top of the base precision.
type weightedPrecision struct {
	value     float64
	precision float64
}

func weightedMeanByPrecision(samples []weightedPrecision) float64 {
	var num, den float64
	for _, s := range samples {
		num += s.precision * s.value
		den += s.precision
	}
	if den <= sumWeightEpsilon {
		return 0
	}
	return num / den
}

// zoneConfidence treats a zone belief as more certain the further its
// occupancy or motion reading sits from the uninformative midpoint of 0.5.
func zoneConfidence(zb belief.ZoneBelief) float64 {
	certainty := math.Max(math.Abs(zb.Occupied-0.5), math.Abs(zb.Motion-0.5)) * 2
	return math.Min(math.Max(0.2+0.8*certainty, 0.05), 0.99)
}

func fuseZones(all []*belief.Belief, out *belief.Belief) {
	occByZone := map[string][]weighted{}
	motionByZone := map[string][]weighted{}

	for _, b := range all {
		for zone, zb := range b.Zones {
			conf := zoneConfidence(zb)
			occByZone[zone] = append(occByZone[zone], weighted{value: zb.Occupied, confidence: conf})
			motionByZone[zone] = append(motionByZone[zone], weighted{value: zb.Motion, confidence: conf})
		}
	}

	for zone, occSamples := range occByZone {
		occMean := clamp01(weightedMean(occSamples))
		motionMean := clamp01(weightedMean(motionByZone[zone]))
		out.Zones[zone] = belief.ZoneBelief{Occupied: occMean, Motion: motionMean}
	}
}

func fuseAcousticRanges(all []*belief.Belief, out *belief.Belief) {
	byPair := map[string][]float64{}
	for _, b := range all {
		for peer, d := range b.AcousticRanges {
			byPair[peer] = append(byPair[peer], d)
		}
	}
	for peer, ds := range byPair {
		sort.Float64s(ds)
		out.AcousticRanges[peer] = ds[len(ds)/2]
	}
}
