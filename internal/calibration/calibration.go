// Package calibration builds a static floor plan — node and device
// positions, inferred walls, a reconstructed attenuation field, and room
// topology — from a short burst of scans plus, when available, an
// acoustic echo sweep. It is the active half of mapping; the passive half
// (radio tomography, room clustering) lives in fusion/layout/topology and
// is just driven from here.
package calibration

import (
	"context"
	"math"
	"sort"

	"github.com/senseye-project/senseye/internal/acoustic"
	"github.com/senseye-project/senseye/internal/floorplan"
	"github.com/senseye-project/senseye/internal/fusion"
	"github.com/senseye-project/senseye/internal/inference"
	"github.com/senseye-project/senseye/internal/layout"
	"github.com/senseye-project/senseye/internal/scanner"
	"github.com/senseye-project/senseye/internal/topology"

	"gonum.org/v1/gonum/mat"
)

const (
	minDistanceM = 0.5
	maxDistanceM = 25.0

	// pathLossNFreeSpace is the theoretical free-space exponent (n=2),
	// deliberately not the calibrated indoor value: using it for expected
	// attenuation during calibration makes every indoor obstruction show
	// up as excess attenuation, which is exactly what wall detection wants
	// to see.
	pathLossNFreeSpace = 2.0

	tomographyResolution      = 0.5
	tomographyInfluenceRadius = 0.5
	maxTomographyWalls        = 40
	maxCalibrationDevices     = 8
)

// deviceSummary accumulates a device's observations across a calibration
// sweep into a single average RSSI and a best-effort human label.
type deviceSummary struct {
	rssiSum float64
	count   int
	label   string
}

func (s *deviceSummary) add(obs scanner.Observation) {
	s.rssiSum += obs.RSSI
	s.count++
	if s.label != "" {
		return
	}
	if obs.Metadata.Name != "" {
		s.label = obs.Metadata.Name
		return
	}
	if obs.Metadata.SSID != "" {
		s.label = obs.Metadata.SSID
	}
}

func (s *deviceSummary) avgRSSI() float64 {
	if s.count == 0 {
		return -90.0
	}
	return s.rssiSum / float64(s.count)
}

func estimateDistanceFromRSSI(rssi float64) float64 {
	d := math.Pow(10, (-rssi-inference.PathLossA)/(10*inference.PathLossExponent))
	return clamp(d, minDistanceM, maxDistanceM)
}

func summarizeObservations(observations []scanner.Observation) map[string]*deviceSummary {
	out := map[string]*deviceSummary{}
	for _, obs := range observations {
		if obs.SignalType == scanner.SignalAcoustic {
			continue
		}
		s, ok := out[obs.DeviceID]
		if !ok {
			s = &deviceSummary{}
			out[obs.DeviceID] = s
		}
		s.add(obs)
	}
	return out
}

func acousticDistances(observations []scanner.Observation) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, obs := range observations {
		if obs.SignalType != scanner.SignalAcoustic {
			continue
		}
		if obs.Metadata.DistanceM == nil || *obs.Metadata.DistanceM <= 0 {
			continue
		}
		sums[obs.DeviceID] += *obs.Metadata.DistanceM
		counts[obs.DeviceID]++
	}
	out := make(map[string]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out
}

// rfDistanceMatrix fills the pairwise distance matrix between node and
// candidates from RF-derived distance-to-self estimates, using a uniform
// angular prior (E[d_ij^2] = d_i^2 + d_j^2) for pairs neither of which is
// the calibrating node — the sweep only measures distance to self, not
// between other devices.
func rfDistanceMatrix(nodeID string, candidateIDs []string, distToSelf map[string]float64) map[[2]string]float64 {
	ids := append([]string{nodeID}, candidateIDs...)
	out := map[[2]string]float64{}
	for _, id := range candidateIDs {
		out[[2]string{nodeID, id}] = distToSelf[id]
	}
	for i := 1; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			di, dj := distToSelf[ids[i]], distToSelf[ids[j]]
			dij := math.Min(math.Sqrt(di*di+dj*dj), maxDistanceM)
			out[[2]string{ids[i], ids[j]}] = dij
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result is a completed calibration pass: the floor plan ready to persist
// and the baseline RSSI per calibration device the orchestrator uses for
// drift detection going forward.
type Result struct {
	Plan         *floorplan.FloorPlan
	BaselineRSSI map[string]float64
	Rooms        topology.RoomGraph
}

// BuildFromObservations turns a batch of scan observations (and, when
// present, one acoustic echo distance) into a best-effort floor plan. It is
// pure and deterministic given its inputs, which is what makes it testable
// without a real radio or speaker.
func BuildFromObservations(nodeID, nodeName string, observations []scanner.Observation, peerIDs []string, acousticExtent *float64) Result {
	summaries := summarizeObservations(observations)
	acousticByDevice := acousticDistances(observations)

	ordered := make([]string, 0, len(summaries))
	for id := range summaries {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return summaries[ordered[i]].avgRSSI() > summaries[ordered[j]].avgRSSI()
	})

	knownPeers := uniqueSorted(peerIDs, nodeID)

	var selected []string
	for _, id := range ordered {
		if containsStr(knownPeers, id) {
			continue
		}
		selected = append(selected, id)
		if len(selected) >= maxCalibrationDevices {
			break
		}
	}

	var acousticOnly []string
	for id := range acousticByDevice {
		if containsStr(knownPeers, id) || containsStr(selected, id) {
			continue
		}
		acousticOnly = append(acousticOnly, id)
	}
	sort.Strings(acousticOnly)

	candidates := append(append(append([]string{}, knownPeers...), selected...), acousticOnly...)

	distToSelf := map[string]float64{}
	for i, id := range knownPeers {
		distToSelf[id] = 2.5 + float64(i)*0.5
	}
	for _, id := range selected {
		distToSelf[id] = estimateDistanceFromRSSI(summaries[id].avgRSSI())
	}
	for id, d := range acousticByDevice {
		distToSelf[id] = clamp(d, minDistanceM, maxDistanceM)
	}

	distancesRF := rfDistanceMatrix(nodeID, candidates, distToSelf)

	acousticTOF := map[[2]string]float64{}
	for id, d := range acousticByDevice {
		acousticTOF[[2]string{nodeID, id}] = d / acoustic.SpeedOfSoundMPS
	}
	acousticDist := fusion.BuildFromAcousticRanges(acousticTOF, acoustic.SpeedOfSoundMPS)

	merged := mergeDistanceSources(acousticDist, distancesRF)

	allIDs := append([]string{nodeID}, candidates...)
	mds := layout.MDSPositions(allIDs, merged)
	positions := layout.AnchorPositions(mds, map[string]layout.Point{nodeID: {X: 0, Y: 0}})

	linkAttenuations := map[[2]string]float64{}
	for _, id := range selected {
		rssi := summaries[id].avgRSSI()
		estDist := distToSelf[id]
		expected := -(10*pathLossNFreeSpace*math.Log10(math.Max(estDist, minDistanceM)) + inference.PathLossA)
		attenuation := math.Max(0, expected-rssi)
		if attenuation > 0 {
			linkAttenuations[[2]string{nodeID, id}] = attenuation
		}
	}

	var walls []floorplan.WallSegment
	for pair, attenuation := range linkAttenuations {
		srcPos, srcOK := positions[pair[0]]
		tgtPos, tgtOK := positions[pair[1]]
		if !srcOK || !tgtOK {
			continue
		}
		if w, ok := floorplan.DetectWall(srcPos.X, srcPos.Y, tgtPos.X, tgtPos.Y, attenuation); ok {
			walls = append(walls, w)
		}
	}

	bounds := deriveBounds(positions, walls, acousticExtent)

	var tomographyLinks []fusion.LinkMeasurement
	for pair, attenuation := range linkAttenuations {
		srcPos, srcOK := positions[pair[0]]
		tgtPos, tgtOK := positions[pair[1]]
		if !srcOK || !tgtOK {
			continue
		}
		confidence := clamp(0.4+attenuation/20.0, 0.05, 1.0)
		tomographyLinks = append(tomographyLinks, fusion.LinkMeasurement{
			FromX: srcPos.X, FromY: srcPos.Y,
			ToX: tgtPos.X, ToY: tgtPos.Y,
			AttenuationDB: attenuation,
			Confidence:    confidence,
		})
	}

	grid := fusion.Grid{
		MinX: bounds.minX, MinY: bounds.minY,
		MaxX: bounds.maxX, MaxY: bounds.maxY,
		CellsX: gridCellCount(bounds.minX, bounds.maxX, tomographyResolution),
		CellsY: gridCellCount(bounds.minY, bounds.maxY, tomographyResolution),
	}
	attenuationGrid := fusion.Reconstruct(tomographyLinks, grid, tomographyInfluenceRadius)

	tomoWalls := extractTomographyWalls(attenuationGrid, grid)
	walls = floorplan.DedupeWalls(append(walls, tomoWalls...), maxTomographyWalls)

	floorPositions := make(map[string]floorplan.Point, len(positions))
	for id, p := range positions {
		floorPositions[id] = floorplan.Point{X: p.X, Y: p.Y}
	}

	rooms := topology.InferRoomsFromNodes(positions, walls)
	if len(rooms.Rooms) == 0 {
		rooms = topology.RoomGraph{
			Rooms: []topology.Room{{ID: "room_0", NodeIDs: allIDsCopy(allIDs)}},
		}
	}

	labels := map[string]string{nodeID: nodeName}
	for _, id := range knownPeers {
		labels[id] = "peer-" + truncate(id, 6)
	}
	for _, id := range selected {
		if summaries[id].label != "" {
			labels[id] = summaries[id].label
		} else {
			labels[id] = truncate(id, 8)
		}
	}
	for _, room := range rooms.Rooms {
		if _, ok := labels[room.ID]; !ok {
			labels[room.ID] = humanizeRoomName(room.ID)
		}
	}

	baselineRSSI := map[string]float64{}
	for _, id := range selected {
		baselineRSSI[id] = summaries[id].avgRSSI()
	}

	plan := &floorplan.FloorPlan{
		NodePositions:         floorPositions,
		Walls:                 walls,
		AttenuationGrid:       gridToFloorplan(attenuationGrid, grid),
		AttenuationResolution: tomographyResolution,
		BaselineRSSI:          baselineRSSI,
		Labels:                labels,
	}

	return Result{Plan: plan, BaselineRSSI: baselineRSSI, Rooms: rooms}
}

// Run performs a live calibration pass: scanCount rounds of scans and,
// when forceAcoustic is set and echo is non-nil, one echo-ranging sweep
// against the room itself to estimate how far the nearest reflecting
// surface is.
func Run(ctx context.Context, nodeID, nodeName string, scan scanner.Scanner, echo *acoustic.Worker, chirpParams acoustic.Params, forceAcoustic bool, peerIDs []string, scanCount int) (Result, error) {
	if scanCount < 1 {
		scanCount = 1
	}

	var observations []scanner.Observation
	for i := 0; i < scanCount; i++ {
		obs, err := scan.Scan(ctx)
		if err != nil {
			return Result{}, err
		}
		observations = append(observations, obs...)
	}

	var acousticExtent *float64
	if forceAcoustic && echo != nil {
		if err := echo.PlayChirp(ctx, chirpParams); err == nil {
			recording, err := echo.ListenForChirp(ctx, chirpParams.Duration+0.1, chirpParams.SampleRate)
			if err == nil {
				template := acoustic.GenerateChirp(chirpParams)
				correlation := acoustic.MatchedFilter(recording, template)
				if peakIdx, ok := acoustic.FindPeakTOF(correlation, 0); ok {
					tof := float64(peakIdx) / float64(chirpParams.SampleRate)
					distance := acoustic.TofToDistance(tof) / 2 // echo is a round trip
					acousticExtent = &distance
					observations = append(observations, scanner.Observation{
						DeviceID:   "acoustic:echo:" + nodeID,
						RSSI:       distance,
						SignalType: scanner.SignalAcoustic,
						Metadata:   scanner.Metadata{DistanceM: &distance},
					})
				}
			}
		}
	}

	return BuildFromObservations(nodeID, nodeName, observations, peerIDs, acousticExtent), nil
}

type bounds struct{ minX, minY, maxX, maxY float64 }

func deriveBounds(positions map[string]layout.Point, walls []floorplan.WallSegment, acousticExtent *float64) bounds {
	var xs, ys []float64
	for _, p := range positions {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	for _, w := range walls {
		xs = append(xs, w.X1, w.X2)
		ys = append(ys, w.Y1, w.Y2)
	}

	if len(xs) == 0 {
		return bounds{-2, -2, 2, 2}
	}

	margin := 1.5
	if acousticExtent != nil && *acousticExtent > 0 {
		margin = math.Max(margin, math.Min(*acousticExtent, 6.0))
	}

	minX, maxX := minMax(xs)
	minY, maxY := minMax(ys)
	minX -= margin
	maxX += margin
	minY -= margin
	maxY += margin

	if maxX-minX < 2.0 {
		minX--
		maxX++
	}
	if maxY-minY < 2.0 {
		minY--
		maxY++
	}
	return bounds{minX, minY, maxX, maxY}
}

func minMax(vs []float64) (min, max float64) {
	min, max = vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return
}

func gridCellCount(lo, hi, resolution float64) int {
	n := int(math.Ceil((hi - lo) / resolution))
	if n < 1 {
		n = 1
	}
	return n
}

func gridToFloorplan(m *mat.Dense, grid fusion.Grid) *floorplan.AttenuationGrid {
	values := make([][]float64, grid.CellsY)
	for r := 0; r < grid.CellsY; r++ {
		values[r] = make([]float64, grid.CellsX)
		for c := 0; c < grid.CellsX; c++ {
			values[r][c] = m.At(r, c)
		}
	}
	return &floorplan.AttenuationGrid{
		MinX: grid.MinX, MinY: grid.MinY,
		MaxX: grid.MaxX, MaxY: grid.MaxY,
		CellsX: grid.CellsX, CellsY: grid.CellsY,
		Values: values,
	}
}

func extractTomographyWalls(m *mat.Dense, grid fusion.Grid) []floorplan.WallSegment {
	var values []float64
	for r := 0; r < grid.CellsY; r++ {
		for c := 0; c < grid.CellsX; c++ {
			if v := m.At(r, c); v > 0 {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return nil
	}

	threshold := math.Max(3.0, quantile(values, 0.8))
	_, cellH := grid.CellSize()
	half := cellH * 0.45

	type cell struct {
		value float64
		r, c  int
	}
	var ranked []cell
	for r := 0; r < grid.CellsY; r++ {
		for c := 0; c < grid.CellsX; c++ {
			v := m.At(r, c)
			if v >= threshold {
				ranked = append(ranked, cell{v, r, c})
			}
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })

	var walls []floorplan.WallSegment
	for i, cl := range ranked {
		if i >= maxTomographyWalls {
			break
		}
		cx, cy := grid.CellCenter(cl.c, cl.r)
		walls = append(walls, floorplan.WallSegment{
			X1: cx - half, Y1: cy,
			X2: cx + half, Y2: cy,
			Material: floorplan.ClassifyMaterial(cl.value),
		})
	}
	return walls
}

func quantile(vs []float64, q float64) float64 {
	sorted := append([]float64{}, vs...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func uniqueSorted(ids []string, exclude string) []string {
	set := map[string]bool{}
	for _, id := range ids {
		if id != "" && id != exclude {
			set[id] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func allIDsCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func humanizeRoomName(id string) string {
	out := []rune(id)
	for i, r := range out {
		if r == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

func mergeDistanceSources(acousticDist fusion.DistanceMatrix, rf map[[2]string]float64) map[[2]string]float64 {
	out := make(map[[2]string]float64, len(rf))
	for pair, d := range rf {
		out[pair] = d
	}
	for a, row := range acousticDist {
		for b, d := range row {
			out[[2]string{a, b}] = d
		}
	}
	return out
}
