package fusion

// DistanceMatrix is a symmetric map-of-maps of measured or derived
// distances between node/device ids. Entries are only present where a
// distance is known; absence means "no measurement yet."
type DistanceMatrix map[string]map[string]float64

// NewDistanceMatrix returns an empty DistanceMatrix.
func NewDistanceMatrix() DistanceMatrix {
	return DistanceMatrix{}
}

// Set records a symmetric distance between a and b.
func (m DistanceMatrix) Set(a, b string, distance float64) {
	if m[a] == nil {
		m[a] = map[string]float64{}
	}
	if m[b] == nil {
		m[b] = map[string]float64{}
	}
	m[a][b] = distance
	m[b][a] = distance
}

// Get returns the distance between a and b, if known.
func (m DistanceMatrix) Get(a, b string) (float64, bool) {
	row, ok := m[a]
	if !ok {
		return 0, false
	}
	d, ok := row[b]
	return d, ok
}

// BuildFromAcousticRanges converts a set of one-way time-of-flight
// measurements, keyed by (observer, target), into a symmetric distance
// matrix.
func BuildFromAcousticRanges(tofByPair map[[2]string]float64, speedOfSoundMPS float64) DistanceMatrix {
	m := NewDistanceMatrix()
	for pair, tof := range tofByPair {
		if tof <= 0 {
			continue
		}
		m.Set(pair[0], pair[1], tof*speedOfSoundMPS)
	}
	return m
}

// Merge overlays acoustic distance measurements on top of RF-derived ones,
// preferring acoustic wherever both exist: acoustic time-of-flight ranging
// is consistently more accurate than RSSI-based path-loss inversion.
func Merge(rf, acoustic DistanceMatrix) DistanceMatrix {
	out := NewDistanceMatrix()
	for a, row := range rf {
		for b, d := range row {
			out.Set(a, b, d)
		}
	}
	for a, row := range acoustic {
		for b, d := range row {
			out.Set(a, b, d)
		}
	}
	return out
}

// PropagateDistances fills in missing pairwise distances by composing
// direct measurements across up to maxHops intermediate nodes (a
// Floyd-Warshall-style shortest-path relaxation over Euclidean sums), never
// overwriting an existing direct measurement even if a shorter composed
// path is found — a measured distance is always trusted over an inferred
// one.
func PropagateDistances(m DistanceMatrix, maxHops int) DistanceMatrix {
	ids := nodeIDs(m)
	out := cloneMatrix(m)

	for hop := 0; hop < maxHops; hop++ {
		// Extend only paths found by earlier passes, and only by one direct
		// edge, so pass h adds paths with at most h+1 intermediate nodes.
		prev := cloneMatrix(out)
		changed := false
		for _, k := range ids {
			for _, i := range ids {
				if i == k {
					continue
				}
				dik, ok := prev.Get(i, k)
				if !ok {
					continue
				}
				for _, j := range ids {
					if j == i || j == k {
						continue
					}
					dkj, ok := m.Get(k, j)
					if !ok {
						continue
					}
					composed := dik + dkj

					if existing, has := m.Get(i, j); has {
						_ = existing
						continue // never overwrite a direct measurement
					}

					current, has := out.Get(i, j)
					if !has || composed < current {
						out.Set(i, j, composed)
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	return out
}

func nodeIDs(m DistanceMatrix) []string {
	seen := map[string]bool{}
	var ids []string
	for a, row := range m {
		if !seen[a] {
			seen[a] = true
			ids = append(ids, a)
		}
		for b := range row {
			if !seen[b] {
				seen[b] = true
				ids = append(ids, b)
			}
		}
	}
	return ids
}

func cloneMatrix(m DistanceMatrix) DistanceMatrix {
	out := NewDistanceMatrix()
	for a, row := range m {
		for b, d := range row {
			out.Set(a, b, d)
		}
	}
	return out
}

// AcousticTOFFromRoundTrip recovers a one-way time-of-flight from a
// measured round-trip request/response exchange, subtracting the
// responder's own fixed processing delay before halving.
func AcousticTOFFromRoundTrip(roundTripSeconds, processingDelaySeconds float64) (tof float64, ok bool) {
	net := roundTripSeconds - processingDelaySeconds
	if net <= 0 {
		return 0, false
	}
	tof = net / 2
	if tof > maxAcousticTOFSeconds {
		return 0, false
	}
	return tof, true
}

// maxAcousticTOFSeconds rejects any one-way time-of-flight estimate beyond
// what's physically plausible indoors (roughly a 68 meter one-way path),
// treating anything larger as a clock-sync or measurement glitch.
const maxAcousticTOFSeconds = 0.2
