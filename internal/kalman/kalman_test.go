package kalman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter1D_FirstUpdateSnapsToMeasurement(t *testing.T) {
	f := NewFilter1D(Params{})

	filtered, innovation := f.Update(-60)

	assert.Equal(t, -60.0, filtered)
	assert.Equal(t, 0.0, innovation)

	rssi, rate, ok := f.State()
	require.True(t, ok)
	assert.Equal(t, -60.0, rssi)
	assert.Equal(t, 0.0, rate)
}

func TestFilter1D_ConvergesOnSteadySignal(t *testing.T) {
	f := NewFilter1D(Params{})

	var last float64
	for i := 0; i < 50; i++ {
		last, _ = f.Update(-60)
	}

	assert.InDelta(t, -60.0, last, 0.5)
}

func TestFilter1D_SmoothsNoise(t *testing.T) {
	f := NewFilter1D(Params{MeasurementNoise: 9})

	noisy := []float64{-60, -58, -62, -59, -61, -60, -63, -57, -60, -61}
	var filtered float64
	for _, m := range noisy {
		filtered, _ = f.Update(m)
	}

	// The filtered estimate should land well inside the noise band, closer
	// to the true mean than the last raw sample was likely to be.
	assert.InDelta(t, -60.0, filtered, 2.0)
}

func TestFilter1D_AdaptsToStepChange(t *testing.T) {
	f := NewFilter1D(Params{AdaptiveThreshold: 3.0, ScalingFactor: 100})

	for i := 0; i < 20; i++ {
		f.Update(-60)
	}

	// A large, sustained jump should be tracked within a handful of updates
	// once the adaptive process noise kicks in, rather than taking the tens
	// of samples a non-adaptive filter at this measurement noise would need.
	var filtered float64
	for i := 0; i < 8; i++ {
		filtered, _ = f.Update(-40)
	}

	assert.InDelta(t, -40.0, filtered, 3.0)
}

func TestFilter1D_InnovationReflectsDeviation(t *testing.T) {
	f := NewFilter1D(Params{})

	for i := 0; i < 10; i++ {
		f.Update(-60)
	}

	_, innovation := f.Update(-30)

	assert.Greater(t, math.Abs(innovation), 5.0)
}

func TestFilter1D_CovarianceStaysSymmetricAndPositive(t *testing.T) {
	f := NewFilter1D(Params{Dt: 0.5})

	measurements := []float64{-60, -61, -59, -75, -74, -73, -60, -59, -58, -60}
	for _, m := range measurements {
		f.Update(m)
		p00, _, p11 := f.Covariance()
		assert.GreaterOrEqual(t, p00, 0.0)
		assert.GreaterOrEqual(t, p11, 0.0)
	}
}

func TestFilter1D_StateBeforeAnyUpdateIsNotOK(t *testing.T) {
	f := NewFilter1D(Params{})

	_, _, ok := f.State()

	assert.False(t, ok)
}
