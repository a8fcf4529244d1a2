// diskengine — a simulated multi-disk, replicated block-storage engine:
// reads the line protocol described in spec.md §6 from stdin, drives one
// Dispatcher step per simulated timestamp, and writes the per-step
// emission to stdout.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aistore-sim/diskengine/internal/cmn"
	"github.com/aistore-sim/diskengine/internal/cmn/nlog"
	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/dispatcher"
	"github.com/aistore-sim/diskengine/internal/headplanner"
	"github.com/aistore-sim/diskengine/internal/metricsrv"
	"github.com/aistore-sim/diskengine/internal/placement"
	"github.com/aistore-sim/diskengine/internal/placement/optimizer"
	"github.com/aistore-sim/diskengine/internal/placement/tsp"
	"github.com/aistore-sim/diskengine/internal/placer"
	"github.com/aistore-sim/diskengine/internal/readqueue"
	"github.com/aistore-sim/diskengine/internal/snapshot"
	"github.com/aistore-sim/diskengine/internal/stats"
	"github.com/aistore-sim/diskengine/internal/store"
	"github.com/aistore-sim/diskengine/internal/tasktracker"
	"github.com/aistore-sim/diskengine/internal/wire"
)

var version = "0.1.0"

func main() {
	var (
		metricsAddr  string
		snapshotPath string
		seed         uint64
	)

	root := &cobra.Command{
		Use:     "diskengine",
		Short:   "Simulated multi-disk, replicated block-storage engine",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(metricsAddr, snapshotPath, seed)
		},
	}
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090)")
	root.Flags().StringVar(&snapshotPath, "snapshot", "", "if set, write an lz4-compressed JSON state dump on every compaction boundary")
	root.Flags().Uint64Var(&seed, "seed", 0, "deterministic RNG seed, used as given (default 0); the same seed on the same input reproduces the run")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(metricsAddr, snapshotPath string, seed uint64) error {
	conn := wire.New(os.Stdin, os.Stdout)

	cfg, hints, err := conn.ReadHeader()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cfg.Seed = seed

	reg := prometheus.NewRegistry()
	st := stats.New(reg)

	if metricsAddr != "" {
		metricsrv.New(metricsAddr, reg).Start()
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	placementCfg := placement.Config{Tags: cfg.Tags, Disks: cfg.Disks, Capacity: cfg.Capacity, Compact: cmn.UseCompact}
	opt := optimizer.NewSimulatedAnnealing(rng)
	solver := tsp.New()
	result, err := placement.Run(placementCfg, hints, opt, solver, rng)
	if err != nil {
		return fmt.Errorf("placement init: %w", err)
	}

	disks := make([]*disk.Disk, cfg.Disks)
	for i := range disks {
		disks[i] = disk.New(i, cfg.Capacity)
	}
	queues := make([]*readqueue.Queue, 2*cfg.Disks)
	for i := range queues {
		queues[i] = readqueue.New(cfg.Capacity)
	}
	horizon := cfg.Steps + cmn.StaleWindow
	trackers := tasktracker.NewRegistry(horizon)
	arena := store.NewArena(horizon)
	pl := placer.New(disks, result.Segments, arena, rng, result.TagDiskOrder, cmn.UseCompact)
	planner := headplanner.New(cmn.Fetch, cmn.JumpThreshold)

	d := dispatcher.New(cfg, disks, result.Segments, queues, trackers, arena, pl, planner, rng, st)

	if err := conn.WriteOK(); err != nil {
		return fmt.Errorf("write OK: %w", err)
	}

	for step := 0; step < horizon; step++ {
		ts, deletes, writes, writeIDs, reads, err := conn.ReadStep()
		if err != nil {
			return fmt.Errorf("read step %d: %w", step, err)
		}

		out, err := d.Step(ts, deletes, writes, reads)
		if err != nil {
			nlog.Fatalf("step %d: %v", step, err)
		}
		for i, obj := range out.NewObjects {
			if err := wire.ReadObjID(writeIDs[i], obj.OID); err != nil {
				nlog.Fatalf("step %d: %v", step, err)
			}
		}

		if err := conn.WriteStep(ts, out); err != nil {
			return fmt.Errorf("write step %d: %w", step, err)
		}

		if snapshotPath != "" && out.Swaps != nil {
			dumpSnapshot(snapshotPath, st, step, disks, queues, out)
		}
	}

	nlog.Sync()
	return nil
}

func dumpSnapshot(path string, st *stats.Tracker, step int, disks []*disk.Disk, queues []*readqueue.Queue, out dispatcher.StepOutput) {
	free := make([]int, len(disks))
	for i, dk := range disks {
		free[i] = dk.FreeCount()
	}
	qlen := make([]int, len(queues))
	for i, q := range queues {
		qlen[i] = q.Len()
	}
	swapTotal := 0
	for _, perDisk := range out.Swaps {
		swapTotal += len(perDisk)
	}
	s := snapshot.State{
		RunID:           nlog.RunID(),
		Step:            step,
		FreePerDisk:     free,
		QueueLenPerHead: qlen,
		Completed:       len(out.Completed),
		Stale:           len(out.Stale),
		Swaps:           swapTotal,
	}
	if err := snapshot.Write(path, s); err != nil {
		nlog.Warningf("snapshot write failed: %v", err)
	}
}
