// Package orchestrator runs one node's sense-infer-share-fuse cycle: poll
// scanners, filter readings through the Kalman bank, build a local belief,
// gossip it over the mesh, fuse it with whatever peers have sent, and fold
// the result into the live world state. It also owns the recalibration
// triggers that decide when a new floor plan needs to be built.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/senseye-project/senseye/internal/acoustic"
	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/config"
	"github.com/senseye-project/senseye/internal/floorplan"
	"github.com/senseye-project/senseye/internal/fusion"
	"github.com/senseye-project/senseye/internal/inference"
	"github.com/senseye-project/senseye/internal/kalman"
	"github.com/senseye-project/senseye/internal/layout"
	"github.com/senseye-project/senseye/internal/mesh"
	"github.com/senseye-project/senseye/internal/scanner"
	"github.com/senseye-project/senseye/internal/topology"
	"github.com/senseye-project/senseye/internal/worldstate"
)

// staleDeviceAge is how long a device can go unseen before it's dropped from
// the world state entirely.
const staleDeviceAge = 2 * time.Minute

// motionEvent records one observed zone-to-zone transition, used to drive
// doorway discovery in the room topology.
type motionEvent struct {
	FromZone, ToZone string
	At               time.Time
}

// maxMotionEvents bounds how much transition history is kept in memory.
const maxMotionEvents = 500

// Orchestrator is one node's sensing loop. It owns no network resources
// itself: the mesh, scanner, and acoustic worker it's built with are shared
// with the rest of the daemon.
type Orchestrator struct {
	cfg config.Config
	log *log.Logger

	mesh *mesh.Mesh
	scan scanner.Scanner
	echo *acoustic.Worker

	kalman          *kalman.Bank
	inferenceParams inference.Params
	chirpParams     acoustic.Params

	world *worldstate.WorldState

	floorPlan *floorplan.FloorPlan
	rooms     topology.RoomGraph

	seq               int64
	history           map[string][]float64
	lastZoneByDevice  map[string]string
	motionEvents      []motionEvent
	baselineRSSI      map[string]float64
	lastCalibrationAt time.Time
	lastPeerSet       map[string]bool

	lastAcousticPeerRangeAt time.Time

	mu          sync.Mutex
	peerBeliefs map[string]*belief.Belief
}

// New constructs an Orchestrator for cfg, loading an existing floor plan
// from cfg.FloorplanPath if one is present.
func New(cfg config.Config, logger *log.Logger, m *mesh.Mesh, scan scanner.Scanner, echo *acoustic.Worker) *Orchestrator {
	o := &Orchestrator{
		cfg:  cfg,
		log:  logger,
		mesh: m,
		scan: scan,
		echo: echo,
		kalman: kalman.NewBank(kalman.Params{
			ProcessNoise:      cfg.KalmanProcessNoise,
			MeasurementNoise:  cfg.KalmanMeasurementNoise,
			AdaptiveThreshold: cfg.KalmanAdaptiveThreshold,
			ScalingFactor:     cfg.KalmanScalingFactor,
			Dt:                cfg.SenseIntervalSeconds,
		}),
		inferenceParams:  inference.Params{MotionWindow: cfg.MotionWindow, MotionStdDev: cfg.MotionStdDev},
		chirpParams:      acoustic.ChirpParamsFor(cfg.NodeID, cfg.AcousticChirpDuration, cfg.AcousticSampleRate),
		world:            worldstate.New(),
		history:          map[string][]float64{},
		lastZoneByDevice: map[string]string{},
		baselineRSSI:     map[string]float64{},
		peerBeliefs:      map[string]*belief.Belief{},
	}

	if plan, err := floorplan.Load(cfg.FloorplanPath); err == nil {
		o.floorPlan = plan
		o.baselineRSSI = plan.BaselineRSSI
		o.rooms = topology.InferRoomsFromNodes(layoutPositions(plan.NodePositions), plan.Walls)
	} else {
		logger.Debug("orchestrator: no usable floor plan yet", "path", cfg.FloorplanPath, "err", err)
	}

	return o
}

// Callbacks wires this orchestrator's event handlers into a mesh.Mesh.
func (o *Orchestrator) Callbacks() mesh.Callbacks {
	return mesh.Callbacks{
		OnBelief:              o.onPeerBelief,
		OnAcousticPingRequest: o.onAcousticPingRequest,
		OnPeerOnline:          o.onPeerOnline,
		OnPeerOffline:         o.onPeerOffline,
	}
}

// WorldState returns the orchestrator's live world state, for the dashboard
// snapshotter to read periodically.
func (o *Orchestrator) WorldState() *worldstate.WorldState {
	return o.world
}

// Run drives the sense cycle on cfg.SenseIntervalSeconds until ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.SenseIntervalSeconds * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.tick(ctx, now)
		}
	}
}

// tick runs one full scan -> infer -> share -> fuse -> update cycle.
func (o *Orchestrator) tick(ctx context.Context, now time.Time) {
	obs, err := o.scan.Scan(ctx)
	if err != nil {
		o.log.Error("orchestrator: scan failed", "err", err)
		obs = nil
	}

	if o.cfg.AcousticMode != config.AcousticOff && o.echo != nil && o.acousticPeerRangingDue(now) {
		obs = append(obs, o.rangeAcousticPeers(ctx)...)
		o.lastAcousticPeerRangeAt = now
	}

	filtered := o.applyKalman(obs)
	inputs := o.buildDeviceInputs(filtered)
	zoneLinks := o.buildZoneLinks(filtered)

	o.seq++
	local := inference.Infer(o.cfg.NodeID, o.seq, inputs, o.inferenceParams, zoneLinks)

	o.mu.Lock()
	o.peerBeliefs[o.cfg.NodeID] = local
	window := o.snapshotBeliefsLocked()
	o.mu.Unlock()

	o.mesh.Broadcast(local, "")

	peers := make([]*belief.Belief, 0, len(window))
	for _, b := range window {
		if b.NodeID != o.cfg.NodeID {
			peers = append(peers, b)
		}
	}
	fused := fusion.Fuse(local, peers)

	nodePositions := o.nodePositions()
	devicePositions := o.estimateDevicePositions(window, nodePositions)
	onlineNodes := o.mesh.Peers()

	o.world.Update(fused, now, devicePositions, signalTypesByDevice(filtered), onlineNodes)
	o.markOfflineAndCleanup(now, onlineNodes)
	o.assignDeviceZones(filtered)

	if o.floorPlan != nil {
		o.reconstructAttenuation(window, nodePositions)
	}

	o.extractMotionEventsAndUpdateTopology(now)
	o.maybeRecalibrate(ctx, now, onlineNodes)
}

func (o *Orchestrator) onPeerBelief(b *belief.Belief) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peerBeliefs[b.NodeID] = b
}

func (o *Orchestrator) onPeerOnline(peerID string) {
	o.log.Info("orchestrator: peer online", "peer", peerID)
}

func (o *Orchestrator) onPeerOffline(peerID string) {
	o.log.Info("orchestrator: peer offline", "peer", peerID)
	o.mu.Lock()
	delete(o.peerBeliefs, peerID)
	o.mu.Unlock()
}

// snapshotBeliefsLocked returns every currently known belief (this node's
// own plus whatever peers have gossiped in). Callers must hold o.mu.
func (o *Orchestrator) snapshotBeliefsLocked() []*belief.Belief {
	out := make([]*belief.Belief, 0, len(o.peerBeliefs))
	for _, b := range o.peerBeliefs {
		out = append(out, b)
	}
	return out
}

func (o *Orchestrator) markOfflineAndCleanup(now time.Time, onlineNodes []string) {
	online := make(map[string]bool, len(onlineNodes)+1)
	online[o.cfg.NodeID] = true
	for _, id := range onlineNodes {
		online[id] = true
	}
	o.world.MarkNodesOffline(online)
	o.world.CleanupStaleDevices(now, staleDeviceAge)
}

func (o *Orchestrator) nodePositions() map[string]layout.Point {
	if o.floorPlan == nil {
		return nil
	}
	return layoutPositions(o.floorPlan.NodePositions)
}

func layoutPositions(positions map[string]floorplan.Point) map[string]layout.Point {
	out := make(map[string]layout.Point, len(positions))
	for id, p := range positions {
		out[id] = layout.Point{X: p.X, Y: p.Y}
	}
	return out
}

func signalTypesByDevice(filtered []scanner.Observation) map[string]string {
	out := make(map[string]string, len(filtered))
	for _, ob := range filtered {
		out[ob.DeviceID] = string(ob.SignalType)
	}
	return out
}
