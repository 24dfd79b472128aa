package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchorsAround(trueX, trueY float64, positions [][2]float64) []Anchor {
	anchors := make([]Anchor, len(positions))
	for i, p := range positions {
		anchors[i] = Anchor{
			ID:       string(rune('A' + i)),
			X:        p[0],
			Y:        p[1],
			Distance: math.Hypot(trueX-p[0], trueY-p[1]),
		}
	}
	return anchors
}

func TestTrilaterate_ExactMeasurementsRecoverPoint(t *testing.T) {
	anchors := anchorsAround(3, 4, [][2]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}})

	x, y, _, ok := Trilaterate(anchors)

	require.True(t, ok)
	assert.InDelta(t, 3.0, x, 0.05)
	assert.InDelta(t, 4.0, y, 0.05)
}

func TestTrilaterate_TooFewAnchorsFails(t *testing.T) {
	anchors := anchorsAround(1, 1, [][2]float64{{0, 0}, {5, 0}})

	_, _, _, ok := Trilaterate(anchors)

	assert.False(t, ok)
}

func TestTrilaterate_RejectsASingleGrossOutlier(t *testing.T) {
	anchors := anchorsAround(5, 5, [][2]float64{
		{0, 0}, {10, 0}, {0, 10}, {10, 10}, {5, 12},
	})
	// Corrupt one anchor's distance badly.
	anchors[4].Distance += 40

	x, y, _, ok := Trilaterate(anchors)

	require.True(t, ok)
	assert.InDelta(t, 5.0, x, 1.0)
	assert.InDelta(t, 5.0, y, 1.0)
}

func TestTrilaterate_ResidualIsSmallForConsistentAnchors(t *testing.T) {
	anchors := anchorsAround(2, 2, [][2]float64{{0, 0}, {8, 0}, {0, 8}, {8, 8}})

	_, _, residual, ok := Trilaterate(anchors)

	require.True(t, ok)
	assert.Less(t, residual, 0.5)
}

func TestTrilaterate_ExactTriangleSolvesWithOnlyThreeAnchors(t *testing.T) {
	anchors := anchorsAround(1, 1, [][2]float64{{0, 0}, {5, 0}, {0, 5}})

	x, y, _, ok := Trilaterate(anchors)

	require.True(t, ok)
	assert.InDelta(t, 1.0, x, 0.05)
	assert.InDelta(t, 1.0, y, 0.05)
}

func TestTrilaterate_RejectsWhenAnchorsAreMutuallyInconsistent(t *testing.T) {
	anchors := []Anchor{
		{ID: "A", X: 0, Y: 0, Distance: 1},
		{ID: "B", X: 20, Y: 0, Distance: 1},
		{ID: "C", X: 0, Y: 20, Distance: 1},
		{ID: "D", X: 20, Y: 20, Distance: 1},
	}

	_, _, _, ok := Trilaterate(anchors)

	assert.False(t, ok)
}

func TestLinearizedLeastSquares_ExactTriangleSolves(t *testing.T) {
	anchors := anchorsAround(1, 1, [][2]float64{{0, 0}, {5, 0}, {0, 5}})

	x, y, ok := linearizedLeastSquares(anchors, 1e-6)

	require.True(t, ok)
	assert.InDelta(t, 1.0, x, 0.05)
	assert.InDelta(t, 1.0, y, 0.05)
}

func TestResidualScale_GrowsWithDistanceButFloorsAtBaseline(t *testing.T) {
	assert.Equal(t, 0.35, residualScale(0))
	assert.InDelta(t, 1.0, residualScale(10), 1e-9)
}

func TestTukeyWeight_ZeroesBeyondCutoff(t *testing.T) {
	w := tukeyWeight(100, 1, tukeyCutoff)

	assert.Equal(t, 0.0, w)
}

func TestTukeyWeight_NearOneForSmallResidual(t *testing.T) {
	w := tukeyWeight(0.01, 1, tukeyCutoff)

	assert.Greater(t, w, 0.99)
}

func TestCandidateSubsets_IncludesFullSetLeaveOneOutAndTriples(t *testing.T) {
	anchors := anchorsAround(1, 1, [][2]float64{{0, 0}, {5, 0}, {0, 5}, {5, 5}})

	subsets := candidateSubsets(anchors)

	var fullSetSeen, leaveOneOutSeen, tripleSeen bool
	for _, s := range subsets {
		switch len(s) {
		case 4:
			fullSetSeen = true
		case 3:
			tripleSeen = true
		}
	}
	for _, s := range subsets {
		if len(s) == len(anchors)-1 {
			leaveOneOutSeen = true
		}
	}

	assert.True(t, fullSetSeen)
	assert.True(t, leaveOneOutSeen)
	assert.True(t, tripleSeen)
}

func TestCandidateSubsets_SkipsTriplesWhenTooManyAnchors(t *testing.T) {
	anchors := anchorsAround(1, 1, [][2]float64{
		{0, 0}, {5, 0}, {0, 5}, {5, 5}, {2, 2}, {8, 8}, {9, 1},
	})

	subsets := candidateSubsets(anchors)

	for _, s := range subsets {
		assert.NotEqual(t, 3, len(s))
	}
}
