// Package dashboard renders the orchestrator's world-state snapshots as a
// plain-text summary table. A real terminal UI is out of scope; this is the
// thin feed-plus-renderer that lets the daemon run end-to-end without one.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/senseye-project/senseye/internal/worldstate"
)

// timestampPattern is the strftime layout used for every "last seen" column;
// dashboard.go is the only place that needs a human-facing timestamp, so the
// pattern lives here rather than in a shared format constant.
const timestampPattern = "%Y-%m-%d %H:%M:%S"

// Snapshot is an immutable copy of a WorldState taken at one instant, safe
// to hand to a renderer running on a different goroutine than the
// orchestrator that produced it.
type Snapshot struct {
	Nodes   []worldstate.NodeInfo
	Devices []worldstate.TrackedDevice
	Zones   map[string]float64
	Taken   time.Time
}

// Snapshotter periodically copies a WorldState into a channel of Snapshots
// at the configured refresh cadence, decoupling whatever consumes them
// (this package's Render, a future real UI) from the orchestrator's own
// tick rate.
type Snapshotter struct {
	world *worldstate.WorldState
	every time.Duration
	out   chan Snapshot
}

// NewSnapshotter returns a Snapshotter that copies world every interval.
func NewSnapshotter(world *worldstate.WorldState, interval time.Duration) *Snapshotter {
	return &Snapshotter{
		world: world,
		every: interval,
		out:   make(chan Snapshot, 1),
	}
}

// Snapshots returns the channel new Snapshots are published to. The
// channel has a buffer of one, so a slow consumer sees only the latest
// snapshot rather than an ever-growing backlog.
func (s *Snapshotter) Snapshots() <-chan Snapshot {
	return s.out
}

// Run publishes a snapshot of s.world every s.every until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.out)
			return
		case now := <-ticker.C:
			snap := Take(s.world, now)
			select {
			case s.out <- snap:
			default:
				// Drop the stale snapshot sitting in the buffer and replace
				// it rather than block the sense loop on a slow reader.
				select {
				case <-s.out:
				default:
				}
				s.out <- snap
			}
		}
	}
}

// Take copies ws into a Snapshot as of now.
func Take(ws *worldstate.WorldState, now time.Time) Snapshot {
	snap := Snapshot{
		Zones: make(map[string]float64, len(ws.Zones)),
		Taken: now,
	}
	for _, ni := range ws.Nodes {
		snap.Nodes = append(snap.Nodes, *ni)
	}
	for _, td := range ws.Devices {
		snap.Devices = append(snap.Devices, *td)
	}
	for zone, ms := range ws.Zones {
		snap.Zones[zone] = ms.Level
	}

	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].NodeID < snap.Nodes[j].NodeID })
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].DeviceID < snap.Devices[j].DeviceID })

	return snap
}

// Render writes a plain-text summary table of snap to w: node liveness,
// tracked devices with their zone and signal, and per-zone occupancy.
func Render(w io.Writer, snap Snapshot) error {
	taken, err := strftime.Format(timestampPattern, snap.Taken)
	if err != nil {
		taken = snap.Taken.String()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "senseye world state @ %s\n", taken)
	fmt.Fprintf(tw, "nodes: %d\tdevices: %d\tzones: %d\n\n", len(snap.Nodes), len(snap.Devices), len(snap.Zones))

	fmt.Fprintln(tw, "NODE\tONLINE\tLAST SEEN")
	for _, n := range snap.Nodes {
		lastSeen, err := strftime.Format(timestampPattern, n.LastSeen)
		if err != nil {
			lastSeen = n.LastSeen.String()
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", n.NodeID, n.Online, lastSeen)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "DEVICE\tZONE\tSIGNAL\tRSSI\tMOVING\tPOSITION")
	for _, d := range snap.Devices {
		pos := "-"
		if d.HasPosition {
			pos = fmt.Sprintf("(%.1f, %.1f)", d.X, d.Y)
		}
		zone := d.Zone
		if zone == "" {
			zone = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%t\t%s\n", d.DeviceID, zone, d.SignalType, d.RSSI, d.Moving, pos)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "ZONE\tMOTION")
	zones := make([]string, 0, len(snap.Zones))
	for zone := range snap.Zones {
		zones = append(zones, zone)
	}
	sort.Strings(zones)
	for _, zone := range zones {
		fmt.Fprintf(tw, "%s\t%.2f\n", zone, snap.Zones[zone])
	}

	return tw.Flush()
}
