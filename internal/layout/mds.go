// Package layout turns a pairwise distance matrix between nodes into 2D
// coordinates via classical multidimensional scaling, then aligns the
// result to one or two known anchor positions.
package layout

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// MDSPositions computes 2D coordinates for ids from pairwise (unsquared)
// distances using classical MDS: square them, double-center the squared
// distance matrix, then take the top two eigenvectors scaled by the square
// root of their eigenvalues. Coordinates are arbitrary up to rotation and
// reflection; callers align the result against known anchors afterward.
func MDSPositions(ids []string, distances map[[2]string]float64) map[string]Point {
	n := len(ids)
	if n == 0 {
		return map[string]Point{}
	}
	if n == 1 {
		return map[string]Point{ids[0]: {0, 0}}
	}

	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	d2 := mat.NewDense(n, n, nil)
	for pair, d := range distances {
		i, iok := index[pair[0]]
		j, jok := index[pair[1]]
		if !iok || !jok {
			continue
		}
		d2.Set(i, j, d*d)
		d2.Set(j, i, d*d)
	}

	b := doubleCenter(d2, n)

	var eig mat.EigenSym
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, b.At(i, j))
		}
	}

	if !eig.Factorize(sym, true) {
		return fallbackGrid(ids)
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type idxVal struct {
		idx int
		val float64
	}
	ordered := make([]idxVal, n)
	for i, v := range values {
		ordered[i] = idxVal{i, v}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].val > ordered[j].val })

	out := make(map[string]Point, n)
	if len(ordered) < 2 || ordered[0].val <= 0 {
		return fallbackGrid(ids)
	}

	l0 := math.Sqrt(math.Max(ordered[0].val, 0))
	l1 := 0.0
	if ordered[1].val > 0 {
		l1 = math.Sqrt(ordered[1].val)
	}

	for i, id := range ids {
		x := vectors.At(i, ordered[0].idx) * l0
		y := 0.0
		if l1 > 0 {
			y = vectors.At(i, ordered[1].idx) * l1
		}
		out[id] = Point{X: x, Y: y}
	}
	return out
}

// doubleCenter applies B = -1/2 * J * D2 * J where J = I - (1/n) * ones, the
// classical MDS double-centering transform that turns a squared-distance
// matrix into a Gram-like matrix whose leading eigenvectors give
// coordinates.
func doubleCenter(d2 *mat.Dense, n int) *mat.Dense {
	rowMeans := make([]float64, n)
	var grandMean float64
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += d2.At(i, j)
		}
		rowMeans[i] = sum / float64(n)
		grandMean += sum
	}
	grandMean /= float64(n * n)

	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.Set(i, j, -0.5*(d2.At(i, j)-rowMeans[i]-rowMeans[j]+grandMean))
		}
	}
	return b
}

// fallbackGrid places ids on a simple grid when MDS can't produce a usable
// embedding (e.g. too few distinct distances), so downstream code always
// has *some* coordinate to work with.
func fallbackGrid(ids []string) map[string]Point {
	out := make(map[string]Point, len(ids))
	cols := int(math.Ceil(math.Sqrt(float64(len(ids)))))
	if cols < 1 {
		cols = 1
	}
	for i, id := range ids {
		out[id] = Point{X: float64(i % cols), Y: float64(i / cols)}
	}
	return out
}
