// Package inference turns a node's filtered signal paths and recent
// observation history into a Belief: its local view of which devices are
// nearby, how far away they probably are, and which zones look occupied.
package inference

import (
	"math"
	"sort"

	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/scanner"
)

// Path-loss model constants (free-space-ish attenuation vs. distance),
// calibrated against typical 2.4GHz indoor RSSI behavior.
const (
	PathLossExponent = 2.5
	PathLossA        = 45.0
	minDistanceM     = 0.2
	maxDistanceM     = 40.0
)

// Params configures how raw history is turned into a Belief.
type Params struct {
	MotionWindow int     // number of recent samples used for the motion variance test
	MotionStdDev float64 // RSSI stddev over MotionWindow above which a device is "moving"
}

// DefaultParams mirrors the values that have worked well in practice:
// a short window is enough to distinguish a stationary device's noise floor
// from someone walking near it.
func DefaultParams() Params {
	return Params{MotionWindow: 8, MotionStdDev: 2.5}
}

// History is the rolling per-device signal history an inference pass reads
// to compute motion and confidence. The orchestrator owns the buffer;
// inference never mutates it.
type History struct {
	RawRSSI []float64
}

// PathLossDistance inverts the log-distance path-loss model to recover a
// distance estimate from an attenuation value, clamped to a plausible
// indoor range.
func PathLossDistance(attenuationDB float64) float64 {
	exponent := (attenuationDB - PathLossA) / (10 * PathLossExponent)
	d := math.Pow(10, exponent)
	return clamp(d, minDistanceM, maxDistanceM)
}

// Attenuation computes the free-space-style path-loss attenuation implied
// by a distance, the inverse of PathLossDistance.
func Attenuation(distanceM float64) float64 {
	return PathLossA + 10*PathLossExponent*math.Log10(math.Max(distanceM, 0.01))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stddev returns the population standard deviation of x.
func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var sumSq float64
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)))
}

// isMoving reports whether the recent window of raw RSSI samples shows
// enough variance to indicate device or environmental motion rather than a
// stationary, noisy link.
func isMoving(history []float64, window int, threshold float64) bool {
	if len(history) == 0 {
		return false
	}
	n := window
	if n > len(history) {
		n = len(history)
	}
	recent := history[len(history)-n:]
	return stddev(recent) > threshold
}

// DeviceInput bundles the filtered signal state plus raw history for one
// observed device, as seen by a single observing node.
type DeviceInput struct {
	DeviceID        string
	FilteredRSSI    float64
	Innovation      float64
	RawHistory      []float64
	SampleCount     int
	ExpectedSamples int
	SignalType      scanner.SignalType
	AcousticRangeM  *float64
	SNR             *float64
}

// Infer builds a Belief from this node's current device inputs. zoneLinks
// maps each zone name to the device ids whose links cross it, letting a
// zone's occupancy/motion be derived from the devices seen moving within
// range of it.
func Infer(nodeID string, seq int64, inputs []DeviceInput, params Params, zoneLinks map[string][]string) *belief.Belief {
	b := belief.New(nodeID)
	b.SequenceNumber = seq

	moving := map[string]bool{}
	attenuations := map[string]float64{}

	for _, in := range inputs {
		var distance float64
		if in.AcousticRangeM != nil {
			distance = *in.AcousticRangeM
			b.AcousticRanges[in.DeviceID] = distance
		} else {
			distance = PathLossDistance(-in.FilteredRSSI)
		}

		moves := isMoving(in.RawHistory, params.MotionWindow, params.MotionStdDev)
		moving[in.DeviceID] = moves
		attenuations[in.DeviceID] = -in.FilteredRSSI

		confidence := deviceConfidence(in, moves)

		dist := distance
		b.Devices[in.DeviceID] = belief.DeviceState{
			RSSI:              in.FilteredRSSI,
			EstimatedDistance: &dist,
			Moving:            moves,
		}

		b.Links[in.DeviceID] = belief.LinkState{
			Attenuation: attenuations[in.DeviceID],
			Motion:      moves,
			Confidence:  confidence,
		}
	}

	for zone, deviceIDs := range zoneLinks {
		b.Zones[zone] = zoneBelief(deviceIDs, moving, attenuations)
	}

	return b
}

func deviceConfidence(in DeviceInput, moving bool) float64 {
	sampleRatio := 1.0
	if in.ExpectedSamples > 0 {
		sampleRatio = clamp(float64(in.SampleCount)/float64(in.ExpectedSamples), 0, 1)
	}

	if in.SignalType == scanner.SignalAcoustic {
		snrConfidence := 0.5
		if in.SNR != nil {
			snrConfidence = clamp(*in.SNR/20.0, 0, 1)
		}
		return clamp(0.5*sampleRatio+0.5*snrConfidence, 0, 1)
	}

	innovationPenalty := 1.0 / (1.0 + math.Abs(in.Innovation)/10.0)
	return clamp(sampleRatio*innovationPenalty, 0, 1)
}

func zoneBelief(deviceIDs []string, moving map[string]bool, attenuations map[string]float64) belief.ZoneBelief {
	if len(deviceIDs) == 0 {
		return belief.ZoneBelief{}
	}

	var motionVotes int
	var attenSum float64
	var attenCount int

	ids := append([]string(nil), deviceIDs...)
	sort.Strings(ids)

	for _, id := range ids {
		if moving[id] {
			motionVotes++
		}
		if a, ok := attenuations[id]; ok {
			attenSum += a
			attenCount++
		}
	}

	motion := float64(motionVotes) / float64(len(ids))

	occupied := 0.0
	if attenCount > 0 {
		avgAtten := attenSum / float64(attenCount)
		// Stronger average attenuation (more signal loss on crossing links)
		// is read as a weak positive occupancy signal; this is necessarily
		// a coarse proxy without node-level triangulation.
		occupied = clamp(avgAtten/60.0, 0, 1)
	}

	return belief.ZoneBelief{Occupied: occupied, Motion: motion}
}
