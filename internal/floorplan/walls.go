// Package floorplan is the node's persisted map of the physical space:
// node/device anchor positions, inferred walls, and the attenuation field
// tomography reconstructs. It is the on-disk compatibility surface other
// tools (a dashboard, a calibration replay) read and write.
package floorplan

import "math"

// WallMaterial is a coarse guess at a wall's construction, inferred from
// how much it attenuates a signal crossing it.
type WallMaterial string

const (
	MaterialOpen     WallMaterial = "open"
	MaterialDrywall  WallMaterial = "drywall"
	MaterialWood     WallMaterial = "wood"
	MaterialBrick    WallMaterial = "brick"
	MaterialConcrete WallMaterial = "concrete"
)

// ClassifyMaterial maps a link's measured attenuation (in dB, over and
// above free-space path loss) to a coarse wall material guess.
func ClassifyMaterial(attenuationDB float64) WallMaterial {
	switch {
	case attenuationDB < 3:
		return MaterialOpen
	case attenuationDB < 5:
		return MaterialDrywall
	case attenuationDB < 8:
		return MaterialWood
	case attenuationDB < 12:
		return MaterialBrick
	default:
		return MaterialConcrete
	}
}

// WallSegment is one inferred wall, placed perpendicular to the signal path
// it was detected on, centered at that path's midpoint.
type WallSegment struct {
	X1, Y1   float64
	X2, Y2   float64
	Material WallMaterial
}

// wallLengthScale converts an attenuation reading into a plausible wall
// segment length: more attenuation implies a longer (or more solid) wall.
// The length grows linearly with attenuation and has no upper bound.
const wallLengthScale = 0.15

// DetectWall places a perpendicular wall segment at the midpoint of the
// link from (x1,y1) to (x2,y2), sized from its attenuation, when the
// attenuation exceeds the "open" classification — an unobstructed link
// produces no wall.
func DetectWall(x1, y1, x2, y2, attenuationDB float64) (WallSegment, bool) {
	material := ClassifyMaterial(attenuationDB)
	if material == MaterialOpen {
		return WallSegment{}, false
	}

	midX, midY := (x1+x2)/2, (y1+y2)/2
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length < 1e-9 {
		return WallSegment{}, false
	}

	// Perpendicular unit vector.
	px, py := -dy/length, dx/length
	half := attenuationDB * wallLengthScale

	return WallSegment{
		X1:       midX - px*half,
		Y1:       midY - py*half,
		X2:       midX + px*half,
		Y2:       midY + py*half,
		Material: material,
	}, true
}

// DedupeKey rounds a wall's endpoints to the nearest decimeter and pairs
// that with its material, giving walls detected from slightly different
// link pairs (but really the same physical wall) the same key so they can
// be deduplicated.
func (w WallSegment) DedupeKey() [5]float64 {
	round := func(v float64) float64 { return math.Round(v*10) / 10 }
	materialCode := 0.0
	switch w.Material {
	case MaterialDrywall:
		materialCode = 1
	case MaterialWood:
		materialCode = 2
	case MaterialBrick:
		materialCode = 3
	case MaterialConcrete:
		materialCode = 4
	}
	return [5]float64{round(w.X1), round(w.Y1), round(w.X2), round(w.Y2), materialCode}
}

// DedupeWalls collapses walls that share a DedupeKey, keeping the first
// occurrence, and caps the result at maxWalls (maxWalls <= 0 means no cap).
// Which walls survive the cap depends only on the order of the input slice;
// walls are not ranked here.
func DedupeWalls(walls []WallSegment, maxWalls int) []WallSegment {
	seen := map[[5]float64]bool{}
	var out []WallSegment
	for _, w := range walls {
		key := w.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
		if maxWalls > 0 && len(out) >= maxWalls {
			break
		}
	}
	return out
}
