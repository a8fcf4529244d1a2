// Package stats registers the engine's Prometheus counters and gauges —
// the phase-boundary instrumentation the Dispatcher stamps on every step
// (including the Compactor's swap count) (SPEC_FULL.md "Debug/operational surface").
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aistore-sim/diskengine/internal/cmn/nlog"
)

// Naming convention mirrors the teacher's: "*_n" is a monotonic counter,
// "*_g" is a point-in-time gauge.
const namespace = "diskengine"

// Tracker is the set of counters/gauges the Dispatcher touches once per
// step. A single process-lifetime instance is shared —
// there is no per-run registry reset, matching the teacher's Trunner.
type Tracker struct {
	Reads     prometheus.Counter
	Jumps     prometheus.Counter
	Passes    prometheus.Counter
	Completes prometheus.Counter
	Stale     prometheus.Counter
	Swaps     prometheus.Counter
	Step      prometheus.Gauge
	HeadPos   *prometheus.GaugeVec
}

var (
	global *Tracker
)

// New registers the tracker's metrics against reg. Construction is
// separated from the package-level Get() so that cmd/diskengine can
// choose a custom registry in tests without pulling in the default one.
func New(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		Reads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "read_n",
			Help:        "total Read head operations executed",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Jumps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "jump_n",
			Help:        "total Jump head operations executed",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Passes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pass_n",
			Help:        "total Pass head operations executed",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Completes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "complete_n",
			Help:        "total task completions reported to clients",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Stale: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stale_n",
			Help:        "total tasks evicted for exceeding their deadline",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Swaps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "compact_swap_n",
			Help:        "total block swaps performed by the compactor",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		Step: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "step_g",
			Help:        "current simulation step number",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}),
		HeadPos: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "head_pos_g",
			Help:        "current ring address of each head",
			ConstLabels: prometheus.Labels{"run": nlog.RunID()},
		}, []string{"head"}),
	}
	global = t
	return t
}

// Get returns the process-wide tracker, registering it against the
// default registry on first use. Callers that need an isolated registry
// (tests, cmd/diskengine with --metrics-addr) should call New directly.
func Get() *Tracker {
	if global == nil {
		return New(prometheus.DefaultRegisterer)
	}
	return global
}
