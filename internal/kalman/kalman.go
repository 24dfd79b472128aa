// Package kalman implements an adaptive constant-velocity 1D Kalman filter
// bank, one filter per (observer, target) signal path.
package kalman

import "math"

// Filter1D tracks a single RSSI signal path with state x = [rssi, drssi/dt].
// The process noise transiently inflates when an incoming measurement's
// innovation exceeds AdaptiveThreshold standard deviations, letting the
// filter "unlock" on abrupt environmental changes instead of dragging.
type Filter1D struct {
	dt                float64
	x0, x1            float64 // state: [rssi, rate]
	p00, p01, p11     float64 // covariance (symmetric 2x2)
	baseQ00           float64
	baseQ01           float64
	baseQ11           float64
	r                 float64 // measurement noise
	adaptiveThreshold float64
	scalingFactor     float64
	initialized       bool
}

// Params configures a new Filter1D. Zero values are replaced with the
// documented defaults.
type Params struct {
	ProcessNoise      float64 // Q scale, default 1.0
	MeasurementNoise  float64 // R, default 4.0
	AdaptiveThreshold float64 // innovation z-score threshold, default 3.0
	ScalingFactor     float64 // Q multiplier on a detected jump, default 100.0
	Dt                float64 // timestep, default 1.0
}

// NewFilter1D constructs a filter with the given parameters, applying
// defaults for zero fields.
func NewFilter1D(p Params) *Filter1D {
	if p.ProcessNoise <= 0 {
		p.ProcessNoise = 1.0
	}
	if p.MeasurementNoise <= 0 {
		p.MeasurementNoise = 4.0
	}
	if p.AdaptiveThreshold <= 0 {
		p.AdaptiveThreshold = 3.0
	}
	if p.ScalingFactor <= 0 {
		p.ScalingFactor = 100.0
	}
	dt := p.Dt
	if dt <= 0 {
		dt = 1.0
	}
	if dt < 1e-3 {
		dt = 1e-3
	}

	q := math.Max(p.ProcessNoise, 1e-6)
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	f := &Filter1D{
		dt:                dt,
		p00:               100.0,
		p11:               100.0,
		baseQ00:           q * dt4 / 4.0,
		baseQ01:           q * dt3 / 2.0,
		baseQ11:           q * dt2,
		r:                 p.MeasurementNoise,
		adaptiveThreshold: p.AdaptiveThreshold,
		scalingFactor:     p.ScalingFactor,
	}
	return f
}

// predict applies the constant-velocity transition F = [[1, dt], [0, 1]] to
// state and covariance, scaling the process noise by qScale for this step.
func (f *Filter1D) predict(qScale float64) (x0, x1, p00, p01, p11 float64) {
	x0 = f.x0 + f.dt*f.x1
	x1 = f.x1

	// P' = F P F^T + Q
	fp00 := f.p00 + f.dt*f.p01
	fp01 := f.p01 + f.dt*f.p11
	// fp10 = p01 (F row 2 is [0,1])
	p00 = fp00 + f.dt*fp01
	p01 = fp01
	p11 = f.p11

	p00 += qScale * f.baseQ00
	p01 += qScale * f.baseQ01
	p11 += qScale * f.baseQ11
	return
}

// Update incorporates a new RSSI measurement and returns the filtered
// estimate plus the innovation (measurement minus prediction) used by
// inference for a per-observation confidence penalty.
func (f *Filter1D) Update(measurement float64) (filtered, innovation float64) {
	if !f.initialized {
		f.x0 = measurement
		f.x1 = 0
		f.initialized = true
		return measurement, 0
	}

	// 1. Predict with nominal Q to compute the innovation and its variance.
	xPred0, _, pPred00, pPred01, _ := f.predict(1.0)
	y := measurement - xPred0
	s := pPred00 + f.r

	// 2. Z-score test: does this measurement look like a regime change?
	zScore := math.Abs(y) / math.Sqrt(math.Max(s, 1e-12))
	qScale := 1.0
	if zScore > f.adaptiveThreshold {
		qScale = f.scalingFactor
	}

	// 3. Re-predict with the (possibly inflated) process noise.
	xPred0, xPred1, pPred00, pPred01, pPred11 := f.predict(qScale)

	y = measurement - xPred0
	s = pPred00 + f.r
	if s < 1e-12 {
		s = 1e-12
	}

	k0 := pPred00 / s
	k1 := pPred01 / s

	f.x0 = xPred0 + k0*y
	f.x1 = xPred1 + k1*y

	// Joseph form: P = (I - K H) P_pred (I - K H)^T + K R K^T, guaranteeing
	// P stays symmetric positive-semidefinite under numerical drift.
	// (I - K H) = [[1-k0, 0], [-k1, 1]] since H = [1, 0].
	a00, a01 := 1-k0, 0.0
	a10, a11 := -k1, 1.0

	// T = A * P_pred
	t00 := a00*pPred00 + a01*pPred01
	t01 := a00*pPred01 + a01*pPred11
	t10 := a10*pPred00 + a11*pPred01
	t11 := a10*pPred01 + a11*pPred11

	// P = T * A^T
	p00 := t00*a00 + t01*a01
	p01 := t00*a10 + t01*a11
	p11 := t10*a10 + t11*a11

	f.p00 = p00 + k0*f.r*k0
	f.p01 = p01 + k0*f.r*k1
	f.p11 = p11 + k1*f.r*k1

	return f.x0, y
}

// State returns (rssi, rate) if the filter has seen at least one
// measurement, or ok=false otherwise.
func (f *Filter1D) State() (rssi, rate float64, ok bool) {
	if !f.initialized {
		return 0, 0, false
	}
	return f.x0, f.x1, true
}

// Covariance returns the 2x2 covariance as (p00, p01, p11); p10 == p01 by
// symmetry.
func (f *Filter1D) Covariance() (p00, p01, p11 float64) {
	return f.p00, f.p01, f.p11
}
