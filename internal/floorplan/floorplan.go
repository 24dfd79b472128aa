package floorplan

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// AttenuationGrid is the tomography-reconstructed attenuation field,
// row-major over CellsY rows of CellsX columns, covering [MinX,MaxX] x
// [MinY,MaxY].
type AttenuationGrid struct {
	MinX       float64     `json:"min_x"`
	MinY       float64     `json:"min_y"`
	MaxX       float64     `json:"max_x"`
	MaxY       float64     `json:"max_y"`
	CellsX     int         `json:"cells_x"`
	CellsY     int         `json:"cells_y"`
	Values     [][]float64 `json:"values"`
}

// FloorPlan is the full persisted static map: where nodes and calibration
// devices sat, the walls inferred between them, the reconstructed
// attenuation field, and enough metadata (baseline RSSI per link) to detect
// drift and trigger recalibration.
type FloorPlan struct {
	GeneratedAt           time.Time          `json:"generated_at"`
	NodePositions         map[string]Point   `json:"node_positions"`
	Walls                 []WallSegment      `json:"walls"`
	AttenuationGrid       *AttenuationGrid   `json:"attenuation_grid,omitempty"`
	AttenuationResolution float64            `json:"attenuation_resolution"`
	BaselineRSSI          map[string]float64 `json:"baseline_rssi"`
	Labels                map[string]string  `json:"labels"`
}

// Point is a 2D coordinate, duplicated from layout.Point to keep this
// package's on-disk schema independent of layout's internal representation.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Save writes the floor plan as JSON to path.
func (fp *FloorPlan) Save(path string) error {
	body, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("floorplan: marshal: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("floorplan: write %s: %w", path, err)
	}
	return nil
}

// Load reads a floor plan previously written by Save.
func Load(path string) (*FloorPlan, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("floorplan: read %s: %w", path, err)
	}
	var fp FloorPlan
	if err := json.Unmarshal(body, &fp); err != nil {
		return nil, fmt.Errorf("floorplan: unmarshal %s: %w", path, err)
	}
	return &fp, nil
}

// driftThresholdM is how far a node's measured position can move relative
// to the floor plan's recorded position before the plan is considered
// stale.
const driftThresholdM = 1.5

// NeedsUpdate reports whether the floor plan's recorded node positions have
// drifted enough from currentPositions (e.g. a node was physically moved)
// that recalibration should be triggered.
func (fp *FloorPlan) NeedsUpdate(currentPositions map[string]Point) bool {
	for id, recorded := range fp.NodePositions {
		current, ok := currentPositions[id]
		if !ok {
			continue
		}
		d := math.Hypot(current.X-recorded.X, current.Y-recorded.Y)
		if d > driftThresholdM {
			return true
		}
	}
	return false
}
