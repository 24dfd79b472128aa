package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstruct_EmptyLinksReturnsZeroGrid(t *testing.T) {
	grid := Grid{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CellsX: 4, CellsY: 4}

	out := Reconstruct(nil, grid, 0.5)

	rows, cols := out.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			assert.Equal(t, 0.0, out.At(r, c))
		}
	}
}

func TestReconstruct_HigherAttenuationNearObstructedRegion(t *testing.T) {
	grid := Grid{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CellsX: 5, CellsY: 5}

	// Links crossing the middle column see high attenuation (a wall);
	// links along the edges see very little.
	links := []LinkMeasurement{
		{FromX: 5, FromY: 0, ToX: 5, ToY: 10, AttenuationDB: 25, Confidence: 0.9},
		{FromX: 4, FromY: 0, ToX: 6, ToY: 10, AttenuationDB: 22, Confidence: 0.9},
		{FromX: 0, FromY: 0, ToX: 0, ToY: 10, AttenuationDB: 2, Confidence: 0.9},
		{FromX: 10, FromY: 0, ToX: 10, ToY: 10, AttenuationDB: 2, Confidence: 0.9},
		{FromX: 0, FromY: 5, ToX: 10, ToY: 5, AttenuationDB: 15, Confidence: 0.9},
	}

	// A wider-than-default influence radius so every link's nearest column
	// (columns are 2m apart on this grid) still picks up some support.
	out := Reconstruct(links, grid, 1.2)

	rows, cols := out.Dims()
	require.Equal(t, 5, rows)
	require.Equal(t, 5, cols)

	middleColSum := 0.0
	edgeColSum := 0.0
	for r := 0; r < rows; r++ {
		middleColSum += out.At(r, 2)
		edgeColSum += out.At(r, 0)
	}

	assert.Greater(t, middleColSum, edgeColSum)
}

func TestPointToSegmentDistance_PointOnSegmentIsZero(t *testing.T) {
	d := pointToSegmentDistance(5, 5, 0, 5, 10, 5)

	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestPointToSegmentDistance_ClampsToEndpoint(t *testing.T) {
	d := pointToSegmentDistance(-5, 0, 0, 0, 10, 0)

	assert.InDelta(t, 5.0, d, 1e-9)
}

func TestCellWeight_DecaysWithDistance(t *testing.T) {
	near := cellWeight(0, 1.0)
	far := cellWeight(0.9, 1.0)

	assert.Greater(t, near, far)
}

func TestCellWeight_ZeroOutsideInfluenceRadius(t *testing.T) {
	w := cellWeight(2.0, 0.5)

	assert.Equal(t, 0.0, w)
}
