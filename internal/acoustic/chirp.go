// Package acoustic implements the active ultrasonic ranging channel: chirp
// generation, matched filtering, time-of-flight peak detection, and the
// deterministic per-node frequency assignment that lets nodes share one
// speaker/microphone pair without colliding.
package acoustic

import "math"

// SpeedOfSoundMPS is the assumed propagation speed used to convert a
// measured time-of-flight into a distance. It is not temperature-corrected;
// indoor ranging at typical room temperatures is within a few percent of
// this value, well inside the filter bank's tolerance.
const SpeedOfSoundMPS = 343.0

// Params describes one FMCW chirp: a linear frequency sweep from FreqStart
// to FreqEnd over Duration seconds, sampled at SampleRate.
type Params struct {
	FreqStart  int
	FreqEnd    int
	Duration   float64
	SampleRate int
}

// GenerateChirp synthesizes a linear frequency-modulated sweep. The
// instantaneous phase is the integral of the instantaneous frequency, which
// for a linear sweep is a quadratic in t; this avoids the discontinuities a
// naive per-sample frequency substitution would introduce.
func GenerateChirp(p Params) []float64 {
	n := int(p.Duration * float64(p.SampleRate))
	if n <= 0 {
		return nil
	}

	samples := make([]float64, n)
	freqSpan := float64(p.FreqEnd - p.FreqStart)
	for i := range samples {
		t := float64(i) / float64(p.SampleRate)
		phase := 2 * math.Pi * (float64(p.FreqStart)*t + freqSpan*t*t/(2*p.Duration))
		samples[i] = math.Sin(phase)
	}
	return samples
}

// TofToDistance converts a one-way time-of-flight measurement to a distance
// in meters.
func TofToDistance(tofSeconds float64) float64 {
	return tofSeconds * SpeedOfSoundMPS
}

// DistanceToTof is the inverse of TofToDistance.
func DistanceToTof(distanceM float64) float64 {
	return distanceM / SpeedOfSoundMPS
}
