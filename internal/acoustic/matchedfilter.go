package acoustic

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MatchedFilter cross-correlates recording against a unit-norm copy of
// template via FFT, returning a same-length correlation series whose peak
// marks where the template best aligns inside the recording. Using the
// frequency domain keeps this cheap even for multi-second recordings at
// ultrasonic sample rates.
func MatchedFilter(recording, template []float64) []float64 {
	if len(template) == 0 || len(recording) == 0 {
		return nil
	}

	norm := normalize(template)

	n := nextPow2(len(recording) + len(norm))
	rec := padTo(recording, n)
	tmpl := padTo(reverse(norm), n)

	fft := fourier.NewCmplxFFT(n)

	recFreq := fft.Coefficients(nil, toComplex(rec))
	tmplFreq := fft.Coefficients(nil, toComplex(tmpl))

	product := make([]complex128, n)
	for i := range product {
		product[i] = recFreq[i] * tmplFreq[i]
	}

	corr := fft.Sequence(nil, product)

	out := make([]float64, len(recording))
	offset := len(norm) - 1
	for i := range out {
		idx := (i + offset) % n
		out[i] = real(corr[idx]) / float64(n)
	}
	return out
}

// FindPeakTOF locates the strongest correlation peak after skipping the
// first skipSamples (to avoid detecting the direct leak-through from the
// emitter rather than a reflected or received chirp) and rejects peaks that
// aren't comfortably above the noise floor, returning the sample index and
// whether a usable peak was found.
func FindPeakTOF(correlation []float64, skipSamples int) (peakIndex int, ok bool) {
	if skipSamples < 0 {
		skipSamples = 0
	}
	if skipSamples >= len(correlation) {
		return 0, false
	}

	window := correlation[skipSamples:]
	absWindow := make([]float64, len(window))
	for i, v := range window {
		absWindow[i] = math.Abs(v)
	}

	peakRel := argmax(absWindow)
	peakVal := absWindow[peakRel]

	noiseFloor := median(absWindow)
	if peakVal <= 0 || peakVal < 3*noiseFloor {
		return 0, false
	}

	return peakRel + skipSamples, true
}

func normalize(x []float64) []float64 {
	var sumSq float64
	for _, v := range x {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-12 {
		norm = 1e-12
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / norm
	}
	return out
}

func reverse(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}

func padTo(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}

func toComplex(x []float64) []complex128 {
	out := make([]complex128, len(x))
	for i, v := range x {
		out[i] = complex(v, 0)
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// magnitude is a small helper kept for callers that want the envelope of a
// complex correlation rather than its real part.
func magnitude(c complex128) float64 {
	return cmplx.Abs(c)
}
