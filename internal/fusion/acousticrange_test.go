package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMatrix_SetIsSymmetric(t *testing.T) {
	m := NewDistanceMatrix()
	m.Set("a", "b", 3.5)

	d, ok := m.Get("b", "a")

	require.True(t, ok)
	assert.Equal(t, 3.5, d)
}

func TestMerge_AcousticOverridesRF(t *testing.T) {
	rf := NewDistanceMatrix()
	rf.Set("a", "b", 10.0)

	acoustic := NewDistanceMatrix()
	acoustic.Set("a", "b", 4.2)

	merged := Merge(rf, acoustic)

	d, ok := merged.Get("a", "b")
	require.True(t, ok)
	assert.Equal(t, 4.2, d)
}

func TestMerge_RFPairsSurviveWhenNoAcousticOverlap(t *testing.T) {
	rf := NewDistanceMatrix()
	rf.Set("a", "c", 8.0)

	merged := Merge(rf, NewDistanceMatrix())

	d, ok := merged.Get("a", "c")
	require.True(t, ok)
	assert.Equal(t, 8.0, d)
}

func TestPropagateDistances_ComposesTwoHopPath(t *testing.T) {
	m := NewDistanceMatrix()
	m.Set("a", "b", 3.0)
	m.Set("b", "c", 4.0)

	out := PropagateDistances(m, 2)

	d, ok := out.Get("a", "c")
	require.True(t, ok)
	assert.InDelta(t, 7.0, d, 1e-9)
}

func TestPropagateDistances_NeverOverwritesDirectMeasurement(t *testing.T) {
	m := NewDistanceMatrix()
	m.Set("a", "b", 3.0)
	m.Set("b", "c", 4.0)
	m.Set("a", "c", 100.0) // direct but noisy/odd measurement

	out := PropagateDistances(m, 2)

	d, ok := out.Get("a", "c")
	require.True(t, ok)
	assert.Equal(t, 100.0, d)
}

func TestAcousticTOFFromRoundTrip_RejectsNonPositiveNet(t *testing.T) {
	_, ok := AcousticTOFFromRoundTrip(0.01, 0.02)

	assert.False(t, ok)
}

func TestAcousticTOFFromRoundTrip_RejectsImplausiblyLargeTOF(t *testing.T) {
	_, ok := AcousticTOFFromRoundTrip(1.0, 0.0)

	assert.False(t, ok)
}

func TestAcousticTOFFromRoundTrip_HalvesNetRoundTrip(t *testing.T) {
	tof, ok := AcousticTOFFromRoundTrip(0.05, 0.01)

	require.True(t, ok)
	assert.InDelta(t, 0.02, tof, 1e-9)
}
