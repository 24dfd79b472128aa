package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Anchor is one known-position reference with a measured distance to the
// point being located.
type Anchor struct {
	ID       string
	X, Y     float64
	Distance float64
}

// trilaterationRidge is the Tikhonov regularization added to every normal
// equation solve, keeping near-collinear anchor geometries from producing a
// singular system.
const trilaterationRidge = 1e-6

// tukeyCutoff is the number of residual scales beyond which an anchor is
// given zero weight by the Tukey biweight.
const tukeyCutoff = 2.5

// maxIRLSIterations bounds the Gauss-Newton refinement; it converges well
// before this in practice, this is a hard backstop against a pathological
// geometry that never settles.
const maxIRLSIterations = 12

// irlsTolerance is the step-size (meters) below which the refinement is
// considered converged.
const irlsTolerance = 1e-4

// maxAcceptableRMSE rejects a fit whose weighted residual RMSE is this high
// (meters): the anchors disagree too badly for the estimate to be useful.
const maxAcceptableRMSE = 8.0

type point struct{ x, y float64 }

// residualScale models how much an anchor's distance residual is expected to
// vary with range: RF and acoustic ranging both get noisier the further
// apart the two ends are.
func residualScale(distance float64) float64 {
	return math.Max(0.35, 0.08*distance+0.2)
}

// Trilaterate estimates a 2D position from 3+ anchor (position, distance)
// pairs. It searches a pool of anchor subsets (the full set, every
// leave-one-out set, and — when there are few enough anchors to make it
// affordable — every 3-anchor combination), refines each subset's seed
// position against the *full* anchor set with Tukey-weighted Gauss-Newton,
// and keeps whichever refined fit has the most inliers and the lowest
// residual, so a handful of bad distance estimates don't drag the result
// away from the consensus of the rest.
func Trilaterate(anchors []Anchor) (x, y, residual float64, ok bool) {
	if len(anchors) < 3 {
		return 0, 0, 0, false
	}

	var bestX, bestY float64
	bestInliers := -1
	bestScore := math.Inf(1)
	found := false

	for _, subset := range candidateSubsets(anchors) {
		for _, seed := range subsetSeeds(subset) {
			px, py, ok := gaussNewtonRefine(anchors, seed.x, seed.y)
			if !ok {
				continue
			}

			inliers, score := scoreFit(anchors, px, py)
			if inliers > bestInliers || (inliers == bestInliers && score < bestScore) {
				bestInliers = inliers
				bestScore = score
				bestX, bestY = px, py
				found = true
			}
		}
	}

	if !found {
		return 0, 0, 0, false
	}

	inlierSet := inliersAt(anchors, bestX, bestY)
	if len(inlierSet) >= 3 {
		if px, py, ok := gaussNewtonRefine(inlierSet, bestX, bestY); ok {
			bestX, bestY = px, py
		}
	}

	rmse := weightedRMSE(anchors, bestX, bestY)
	if math.IsNaN(rmse) || math.IsInf(rmse, 0) || rmse > maxAcceptableRMSE {
		return 0, 0, 0, false
	}

	return bestX, bestY, rmse, true
}

// candidateSubsets enumerates the subset pool spec'd for the RANSAC-style
// search: the full anchor set, every leave-one-out subset, and (only when
// there are few enough anchors for the combinatorics to stay small) every
// 3-anchor combination.
func candidateSubsets(anchors []Anchor) [][]Anchor {
	n := len(anchors)
	candidates := [][]Anchor{anchors}

	if n > 3 {
		for i := 0; i < n; i++ {
			subset := make([]Anchor, 0, n-1)
			for j, a := range anchors {
				if j != i {
					subset = append(subset, a)
				}
			}
			candidates = append(candidates, subset)
		}
	}

	if n <= 6 {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for k := j + 1; k < n; k++ {
					candidates = append(candidates, []Anchor{anchors[i], anchors[j], anchors[k]})
				}
			}
		}
	}

	return candidates
}

// subsetSeeds returns the initial positions tried for a candidate subset:
// the classic linearized least-squares solution when it exists, plus the
// subset's centroid as a fallback seed that doesn't depend on the
// linearization succeeding.
func subsetSeeds(subset []Anchor) []point {
	var seeds []point
	if px, py, ok := linearizedLeastSquares(subset, trilaterationRidge); ok {
		seeds = append(seeds, point{px, py})
	}
	seeds = append(seeds, centroid(subset))
	return seeds
}

func centroid(anchors []Anchor) point {
	var sx, sy float64
	for _, a := range anchors {
		sx += a.X
		sy += a.Y
	}
	n := float64(len(anchors))
	return point{sx / n, sy / n}
}

// linearizedLeastSquares solves the classic trilateration linearization:
// subtracting the first anchor's sphere equation from every other anchor's
// turns the system linear in (x, y). The normal equations are solved with
// Tikhonov regularization (ridge) added to the diagonal, falling back to the
// Moore-Penrose pseudoinverse via SVD if the regularized system is still too
// ill-conditioned to solve directly.
func linearizedLeastSquares(anchors []Anchor, ridge float64) (x, y float64, ok bool) {
	if len(anchors) < 3 {
		return 0, 0, false
	}

	ref := anchors[0]
	rows := len(anchors) - 1

	A := mat.NewDense(rows, 2, nil)
	bv := mat.NewVecDense(rows, nil)

	for i, a := range anchors[1:] {
		A.Set(i, 0, 2*(a.X-ref.X))
		A.Set(i, 1, 2*(a.Y-ref.Y))

		lhs := (a.Distance*a.Distance - ref.Distance*ref.Distance) -
			(a.X*a.X - ref.X*ref.X) - (a.Y*a.Y - ref.Y*ref.Y)
		bv.SetVec(i, -lhs)
	}

	var ata mat.Dense
	ata.Mul(A.T(), A)
	ata.Add(&ata, scaledIdentity(2, ridge))

	var atb mat.VecDense
	atb.MulVec(A.T(), bv)

	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &atb); err != nil {
		solved, ok := pseudoinverseSolve(A, bv)
		if !ok {
			return 0, 0, false
		}
		return solved[0], solved[1], true
	}

	return sol.AtVec(0), sol.AtVec(1), true
}

func scaledIdentity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}

func pseudoinverseSolve(A *mat.Dense, b *mat.VecDense) ([]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return nil, false
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	_, cols := A.Dims()

	// x = V * Sigma+ * U^T * b
	var utb mat.VecDense
	utb.MulVec(u.T(), b)

	sigmaInv := make([]float64, len(values))
	for i, s := range values {
		if s > 1e-10 {
			sigmaInv[i] = 1 / s
		}
	}

	scaled := mat.NewVecDense(len(values), nil)
	for i := range values {
		scaled.SetVec(i, sigmaInv[i]*utb.AtVec(i))
	}

	out := mat.NewVecDense(cols, nil)
	out.MulVec(&v, scaled)

	result := make([]float64, cols)
	for i := 0; i < cols; i++ {
		result[i] = out.AtVec(i)
	}
	return result, true
}

// tukeyWeight implements the Tukey biweight influence function: residuals
// beyond cutoff*scale are given zero weight, discarding gross outliers
// entirely rather than merely down-weighting them.
func tukeyWeight(residual, scale, cutoff float64) float64 {
	if scale < 1e-9 {
		scale = 1e-9
	}
	u := residual / (cutoff * scale)
	if math.Abs(u) >= 1 {
		return 0
	}
	w := 1 - u*u
	return w * w
}

// gaussNewtonRefine iteratively reweights every anchor's contribution by its
// Tukey biweight (scaled by that anchor's range-dependent residual scale)
// and takes a Gauss-Newton step on the nonlinear circle-distance residuals,
// converging toward a fit that outlying anchors barely influence.
func gaussNewtonRefine(anchors []Anchor, x0, y0 float64) (x, y float64, ok bool) {
	x, y = x0, y0

	for iter := 0; iter < maxIRLSIterations; iter++ {
		var a00, a01, a11, b0, b1 float64

		for _, a := range anchors {
			rhat := math.Hypot(x-a.X, y-a.Y)
			if rhat < 1e-9 {
				rhat = 1e-9
			}
			residual := rhat - a.Distance

			scale := residualScale(a.Distance)
			w := tukeyWeight(residual, scale, tukeyCutoff)
			if w <= 0 {
				continue
			}

			jx := (x - a.X) / rhat
			jy := (y - a.Y) / rhat

			a00 += w * jx * jx
			a01 += w * jx * jy
			a11 += w * jy * jy
			b0 += w * jx * (-residual)
			b1 += w * jy * (-residual)
		}

		ata := mat.NewDense(2, 2, []float64{a00, a01, a01, a11})
		ata.Add(ata, scaledIdentity(2, trilaterationRidge))
		atb := mat.NewVecDense(2, []float64{b0, b1})

		var sol mat.VecDense
		var dx, dy float64
		if err := sol.SolveVec(ata, atb); err != nil {
			solved, ok := pseudoinverseSolve(ata, atb)
			if !ok {
				break
			}
			dx, dy = solved[0], solved[1]
		} else {
			dx, dy = sol.AtVec(0), sol.AtVec(1)
		}

		x += dx
		y += dy

		if math.Hypot(dx, dy) < irlsTolerance {
			break
		}
	}

	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, false
	}
	return x, y, true
}

// scoreFit counts how many anchors are inliers (residual within
// tukeyCutoff*residualScale) at (x, y), and computes the mean squared
// normalized residual, clipped at the cutoff so outliers don't dominate the
// score once they've already been counted as non-inliers.
func scoreFit(anchors []Anchor, x, y float64) (inliers int, meanClippedSqResidual float64) {
	clip := tukeyCutoff * tukeyCutoff
	var total float64
	for _, a := range anchors {
		residual := math.Hypot(x-a.X, y-a.Y) - a.Distance
		scale := residualScale(a.Distance)
		normalized := residual / scale
		sq := normalized * normalized
		if math.Abs(normalized) <= tukeyCutoff {
			inliers++
		}
		total += math.Min(sq, clip)
	}
	return inliers, total / float64(len(anchors))
}

func inliersAt(anchors []Anchor, x, y float64) []Anchor {
	var out []Anchor
	for _, a := range anchors {
		residual := math.Hypot(x-a.X, y-a.Y) - a.Distance
		scale := residualScale(a.Distance)
		if math.Abs(residual) <= tukeyCutoff*scale {
			out = append(out, a)
		}
	}
	return out
}

// weightedRMSE computes the Tukey-weighted RMSE of (x, y) against every
// anchor, using each anchor's final fit weight so outliers that survived
// into the anchor set still contribute little to the reported error.
func weightedRMSE(anchors []Anchor, x, y float64) float64 {
	var sumWeighted, sumWeights float64
	for _, a := range anchors {
		residual := math.Hypot(x-a.X, y-a.Y) - a.Distance
		scale := residualScale(a.Distance)
		w := tukeyWeight(residual, scale, tukeyCutoff)
		sumWeighted += w * residual * residual
		sumWeights += w
	}
	if sumWeights <= 1e-9 {
		return math.Inf(1)
	}
	return math.Sqrt(sumWeighted / sumWeights)
}
