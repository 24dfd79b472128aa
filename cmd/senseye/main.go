// Command senseye runs one node of a distributed passive RF-sensing mesh:
// it scans nearby WiFi/BLE/acoustic signals, infers device presence and
// motion locally, gossips its belief to other nodes over the network, and
// fuses the result into a shared picture of the space. Run with the
// "calibrate" subcommand to build or refresh the floor plan without
// joining the mesh loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/senseye-project/senseye/internal/acoustic"
	"github.com/senseye-project/senseye/internal/calibration"
	"github.com/senseye-project/senseye/internal/config"
	"github.com/senseye-project/senseye/internal/dashboard"
	"github.com/senseye-project/senseye/internal/logging"
	"github.com/senseye-project/senseye/internal/mesh"
	"github.com/senseye-project/senseye/internal/orchestrator"
	"github.com/senseye-project/senseye/internal/scanner"
)

// calibrationScans matches the burst size the orchestrator itself uses for
// a triggered recalibration pass.
const calibrationScans = 3

// uiRefreshInterval is how often the dashboard snapshotter copies the live
// world state for rendering.
const uiRefreshInterval = 2 * time.Second

func main() {
	fs := pflag.NewFlagSet("senseye", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: senseye [calibrate] [flags]")
		fs.PrintDefaults()
	}
	config.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if help, _ := fs.GetBool("help"); help {
		fs.Usage()
		return
	}

	var command string
	if args := fs.Args(); len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Build(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "senseye:", err)
		os.Exit(1)
	}

	root := logging.New(logging.Options{Level: logging.ParseLevel(cfg.LogLevel)})
	log := logging.For(root, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scan := scanner.Multi{}

	var echo *acoustic.Worker
	if cfg.AcousticMode != config.AcousticOff {
		backend, err := acoustic.NewDefaultBackend()
		if err != nil {
			log.Error("acoustic backend unavailable, continuing without acoustic ranging", "err", err)
		} else {
			echo = acoustic.NewWorker(backend)
			defer echo.Stop()
		}
	}

	chirpParams := acoustic.ChirpParamsFor(cfg.NodeID, cfg.AcousticChirpDuration, cfg.AcousticSampleRate)

	if command == "calibrate" {
		if err := runCalibrate(ctx, cfg, logging.For(root, "calibration"), scan, echo, chirpParams); err != nil {
			log.Error("calibration failed", "err", err)
			os.Exit(1)
		}
		return
	}

	m := mesh.New(cfg.NodeID, cfg.MeshPort, logging.For(root, "mesh"), mesh.Callbacks{})

	orch := orchestrator.New(cfg, logging.For(root, "orchestrator"), m, scan, echo)
	m.SetCallbacks(orch.Callbacks())

	if err := m.Start(ctx); err != nil {
		log.Error("mesh start failed", "err", err)
		os.Exit(1)
	}
	defer m.Stop()

	snaps := dashboard.NewSnapshotter(orch.WorldState(), uiRefreshInterval)
	go snaps.Run(ctx)
	go renderDashboard(ctx, snaps)

	log.Info("node started", "node_id", cfg.NodeID, "role", cfg.Role, "mesh_port", cfg.MeshPort, "acoustic_mode", cfg.AcousticMode)

	orch.Run(ctx)

	log.Info("node stopped")
}

// runCalibrate runs a one-shot calibration pass and persists the resulting
// floor plan, without starting the mesh listener or the sense loop.
func runCalibrate(ctx context.Context, cfg config.Config, logger *log.Logger, scan scanner.Scanner, echo *acoustic.Worker, chirpParams acoustic.Params) error {
	logger.Info("starting calibration")

	forceAcoustic := cfg.AcousticMode != config.AcousticOff && echo != nil
	result, err := calibration.Run(ctx, cfg.NodeID, cfg.NodeID, scan, echo, chirpParams, forceAcoustic, nil, calibrationScans)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	if err := result.Plan.Save(cfg.FloorplanPath); err != nil {
		return fmt.Errorf("calibrate: save floor plan: %w", err)
	}

	logger.Info("saved floor plan",
		"path", cfg.FloorplanPath,
		"nodes", len(result.Plan.NodePositions),
		"walls", len(result.Plan.Walls),
		"rooms", len(result.Rooms.Rooms),
	)
	return nil
}

// renderDashboard writes each snapshot as it arrives to stdout until ctx is
// done or the snapshot channel closes.
func renderDashboard(ctx context.Context, snaps *dashboard.Snapshotter) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps.Snapshots():
			if !ok {
				return
			}
			fmt.Fprintln(os.Stdout, "---")
			if err := dashboard.Render(os.Stdout, snap); err != nil {
				return
			}
		}
	}
}
