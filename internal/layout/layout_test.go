package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestMDSPositions_RecoversPairwiseDistances(t *testing.T) {
	truth := map[string]Point{
		"a": {0, 0},
		"b": {5, 0},
		"c": {0, 5},
		"d": {5, 5},
	}
	ids := []string{"a", "b", "c", "d"}

	distances := map[[2]string]float64{}
	for _, i := range ids {
		for _, j := range ids {
			if i < j {
				distances[[2]string{i, j}] = dist(truth[i], truth[j])
			}
		}
	}

	positions := MDSPositions(ids, distances)

	require.Len(t, positions, 4)
	for _, i := range ids {
		for _, j := range ids {
			if i == j {
				continue
			}
			want := dist(truth[i], truth[j])
			got := dist(positions[i], positions[j])
			assert.InDelta(t, want, got, 0.1)
		}
	}
}

func TestMDSPositions_SingleNode(t *testing.T) {
	positions := MDSPositions([]string{"solo"}, nil)

	assert.Equal(t, Point{0, 0}, positions["solo"])
}

func TestAnchorPositions_TwoAnchorsAlignRotationAndScale(t *testing.T) {
	truth := map[string]Point{
		"a": {0, 0},
		"b": {10, 0},
		"c": {0, 10},
	}
	ids := []string{"a", "b", "c"}
	distances := map[[2]string]float64{
		{"a", "b"}: dist(truth["a"], truth["b"]),
		{"a", "c"}: dist(truth["a"], truth["c"]),
		{"b", "c"}: dist(truth["b"], truth["c"]),
	}

	mds := MDSPositions(ids, distances)
	aligned := AnchorPositions(mds, map[string]Point{"a": truth["a"], "b": truth["b"]})

	assert.InDelta(t, truth["a"].X, aligned["a"].X, 0.1)
	assert.InDelta(t, truth["a"].Y, aligned["a"].Y, 0.1)
	assert.InDelta(t, truth["b"].X, aligned["b"].X, 0.1)
	assert.InDelta(t, truth["b"].Y, aligned["b"].Y, 0.1)
}

func TestAnchorPositions_SingleAnchorOnlyTranslates(t *testing.T) {
	positions := map[string]Point{
		"a": {1, 1},
		"b": {4, 1},
	}

	aligned := AnchorPositions(positions, map[string]Point{"a": {10, 10}})

	assert.Equal(t, Point{10, 10}, aligned["a"])
	assert.InDelta(t, dist(positions["a"], positions["b"]), dist(aligned["a"], aligned["b"]), 1e-9)
}

func TestAnchorPositions_NoKnownAnchorsIsNoop(t *testing.T) {
	positions := map[string]Point{"a": {1, 2}}

	aligned := AnchorPositions(positions, map[string]Point{"missing": {5, 5}})

	assert.Equal(t, positions, aligned)
}
