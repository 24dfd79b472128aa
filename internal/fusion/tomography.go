package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinkMeasurement is one observed signal path with known endpoints, used as
// a row in the tomographic reconstruction.
type LinkMeasurement struct {
	FromX, FromY  float64
	ToX, ToY      float64
	AttenuationDB float64
	Confidence    float64
}

// Grid describes a rectangular reconstruction area tiled into CellsX by
// CellsY cells.
type Grid struct {
	MinX, MinY float64
	MaxX, MaxY float64
	CellsX     int
	CellsY     int
}

// CellSize returns the width and height of one grid cell.
func (g Grid) CellSize() (w, h float64) {
	return (g.MaxX - g.MinX) / float64(g.CellsX), (g.MaxY - g.MinY) / float64(g.CellsY)
}

// CellCenter returns the center coordinates of cell (cx, cy).
func (g Grid) CellCenter(cx, cy int) (x, y float64) {
	w, h := g.CellSize()
	return g.MinX + (float64(cx)+0.5)*w, g.MinY + (float64(cy)+0.5)*h
}

// pointToSegmentDistance returns the shortest distance from (px, py) to the
// segment (ax, ay)-(bx, by).
func pointToSegmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq < 1e-12 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy)
}

// defaultInfluenceRadius is used whenever a caller doesn't have a more
// specific value (e.g. derived from deployment geometry) to supply.
const defaultInfluenceRadius = 0.5

func cellWeight(distance, influenceRadius float64) float64 {
	if distance > influenceRadius {
		return 0
	}
	sigma := math.Max(influenceRadius/2, 1e-3)
	return math.Exp(-(distance * distance) / (2 * sigma * sigma))
}

// adaptiveAlpha picks a ridge regularization strength from the
// confidence-weighted design matrix's shape and conditioning: more cells
// relative to measurements, or a worse-conditioned system, calls for
// stronger regularization to keep the solve stable.
func adaptiveAlpha(weightedDesign *mat.Dense, numCells int) float64 {
	rows, _ := weightedDesign.Dims()

	var ata mat.Dense
	ata.Mul(weightedDesign.T(), weightedDesign)
	ata.Add(&ata, scaledIdentity(numCells, 1e-6))

	condition := matrixCondition(&ata)

	ratio := float64(numCells) / math.Max(float64(rows), 1)
	alpha := 0.05 * ratio * (1 + math.Log10(math.Max(condition, 1)))
	return math.Min(math.Max(alpha, 0.05), 5.0)
}

// matrixCondition returns a's 2-norm condition number, falling back to a
// large but finite value if the SVD can't produce one (near-singular or
// numerically degenerate input).
func matrixCondition(a *mat.Dense) (condition float64) {
	condition = 1e8
	defer func() {
		if recover() != nil {
			condition = 1e8
		}
	}()
	c := mat.Cond(a, 2)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 1e8
	}
	return c
}

// Reconstruct solves for a per-cell attenuation field whose proximity-weighted
// average along each link's path (each row's cell weights are normalized to
// sum to 1) best explains that link's observed attenuation, weighted by each
// link's confidence. This is the per-pixel analog of tomographic reconstruction,
// adapted to sparse RF/acoustic links instead of dense beam projections.
// influenceRadius bounds how far from a link's path a cell can still
// contribute to that link's row; influenceRadius <= 0 uses
// defaultInfluenceRadius.
func Reconstruct(links []LinkMeasurement, grid Grid, influenceRadius float64) *mat.Dense {
	numCells := grid.CellsX * grid.CellsY
	if numCells == 0 || len(links) == 0 {
		return mat.NewDense(grid.CellsY, grid.CellsX, nil)
	}
	if influenceRadius <= 0 {
		influenceRadius = defaultInfluenceRadius
	}

	var rows [][]float64
	var targets []float64
	var rowWeights []float64

	for _, link := range links {
		lxMin := math.Min(link.FromX, link.ToX) - influenceRadius
		lxMax := math.Max(link.FromX, link.ToX) + influenceRadius
		lyMin := math.Min(link.FromY, link.ToY) - influenceRadius
		lyMax := math.Max(link.FromY, link.ToY) + influenceRadius

		row := make([]float64, numCells)
		rowSum := 0.0
		for cy := 0; cy < grid.CellsY; cy++ {
			for cx := 0; cx < grid.CellsX; cx++ {
				ccx, ccy := grid.CellCenter(cx, cy)
				if ccx < lxMin || ccx > lxMax || ccy < lyMin || ccy > lyMax {
					continue
				}
				dist := pointToSegmentDistance(ccx, ccy, link.FromX, link.FromY, link.ToX, link.ToY)
				if dist > influenceRadius {
					continue
				}
				w := cellWeight(dist, influenceRadius)
				row[cy*grid.CellsX+cx] = w
				rowSum += w
			}
		}
		if rowSum <= 1e-6 {
			continue
		}
		for i := range row {
			row[i] /= rowSum
		}

		c := math.Min(math.Max(link.Confidence, 0.01), 0.99)
		rows = append(rows, row)
		targets = append(targets, link.AttenuationDB)
		rowWeights = append(rowWeights, precisionFromConfidence(c))
	}

	if len(rows) == 0 {
		return mat.NewDense(grid.CellsY, grid.CellsX, nil)
	}

	weightedDesign := mat.NewDense(len(rows), numCells, nil)
	weightedTarget := mat.NewVecDense(len(rows), nil)
	for i, row := range rows {
		sw := math.Sqrt(rowWeights[i])
		for j, v := range row {
			weightedDesign.Set(i, j, v*sw)
		}
		weightedTarget.SetVec(i, targets[i]*sw)
	}

	alpha := adaptiveAlpha(weightedDesign, numCells)

	var ata mat.Dense
	ata.Mul(weightedDesign.T(), weightedDesign)
	ata.Add(&ata, scaledIdentity(numCells, alpha))

	var atb mat.VecDense
	atb.MulVec(weightedDesign.T(), weightedTarget)

	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &atb); err != nil {
		result, ok := pseudoinverseSolve(weightedDesign, weightedTarget)
		if !ok {
			return mat.NewDense(grid.CellsY, grid.CellsX, nil)
		}
		return vectorToGrid(clampNonNegative(result), grid)
	}

	values := make([]float64, numCells)
	for i := 0; i < numCells; i++ {
		values[i] = sol.AtVec(i)
	}
	return vectorToGrid(clampNonNegative(values), grid)
}

func clampNonNegative(values []float64) []float64 {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
	return values
}

func vectorToGrid(values []float64, grid Grid) *mat.Dense {
	out := mat.NewDense(grid.CellsY, grid.CellsX, nil)
	for cy := 0; cy < grid.CellsY; cy++ {
		for cx := 0; cx < grid.CellsX; cx++ {
			idx := cy*grid.CellsX + cx
			if idx < len(values) {
				out.Set(cy, cx, values[idx])
			}
		}
	}
	return out
}
