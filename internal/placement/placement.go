// Package placement implements component H: PlacementInit, the
// startup-only construction of the SegmentTable from the workload's
// offline hints (spec.md §4.H).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package placement

import (
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/aistore-sim/diskengine/internal/placement/optimizer"
	"github.com/aistore-sim/diskengine/internal/placement/tsp"
	"github.com/aistore-sim/diskengine/internal/segtable"
)

// Hints is the three M x S offline count tables exchanged on startup
// (spec.md §6): per tag per time-slice bucket, block counts.
type Hints struct {
	Delete [][]int
	Write  [][]int
	Read   [][]int
}

// Config carries the startup scalars PlacementInit needs (spec.md §4.H
// inputs T, M, N, V; G and K are consumed downstream by the Dispatcher
// and HeadPlanner, not here).
type Config struct {
	Tags     int
	Disks    int
	Capacity int
	Compact  bool // USE_COMPACT: V' = V/3 instead of V
}

// Result is everything PlacementInit hands to the rest of the engine.
type Result struct {
	Segments *segtable.Table
	// TagDiskOrder[tag] ranks disk ids by descending allocation for tag,
	// consumed by internal/placer's segment-fit strategy.
	TagDiskOrder [][]int
	Alpha        [][]float64
}

// Run executes spec.md §4.H steps 1-6. segRNG seeds the resulting
// SegmentTable's own tie-break draws for the lifetime of the run (spec.md
// §5 determinism), independent of opt/solver's own seeded sources.
func Run(cfg Config, hints Hints, opt optimizer.Optimizer, solver tsp.Solver, segRNG *rand.Rand) (*Result, error) {
	m, n, v := cfg.Tags, cfg.Disks, cfg.Capacity
	vPrime := v
	if cfg.Compact {
		vPrime = v / 3
	}
	total := n * vPrime

	peak := peakResidency(hints.Write, hints.Delete, m)
	r := allocateBudget(peak, total)
	alpha := tagAffinity(hints.Read, m)

	l := 0
	if m > 0 {
		l = 2 * vPrime / (3 * m)
	}
	alloc := opt.Optimize(m, n, vPrime, l, r, alpha)

	tagDiskOrder := rankDisksByTag(alloc, m, n)

	orders := make([][]int, n)
	var g errgroup.Group
	for d := 0; d < n; d++ {
		d := d
		g.Go(func() error {
			dist := make([][]float64, m)
			for i := 0; i < m; i++ {
				dist[i] = make([]float64, m)
				for j := 0; j < m; j++ {
					dist[i][j] = alpha[i][j] * float64(alloc[i][d]) * float64(alloc[j][d])
				}
			}
			orders[d] = solver.Solve(m, dist)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	segs := segtable.New(m, segRNG)
	for d := 0; d < n; d++ {
		addr := 0
		for _, tag := range orders[d] {
			capacity := alloc[tag][d]
			if capacity <= 0 {
				continue
			}
			segs.Add(&segtable.Segment{Disk: d, Start: addr, Tag: tag, Capacity: capacity})
			addr += capacity
		}
	}

	return &Result{Segments: segs, TagDiskOrder: tagDiskOrder, Alpha: alpha}, nil
}

// peakResidency computes, per tag, the maximum over buckets of the
// cumulative (writes - deletes) (spec.md §4.H step 1).
func peakResidency(write, del [][]int, m int) []int {
	peak := make([]int, m)
	for t := 0; t < m; t++ {
		cum, best := 0, 0
		for b := 0; b < len(write[t]); b++ {
			d := 0
			if b < len(del[t]) {
				d = del[t][b]
			}
			cum += write[t][b] - d
			if cum > best {
				best = cum
			}
		}
		peak[t] = best
	}
	return peak
}

// allocateBudget splits total proportionally to peak residency, the
// last tag absorbing the rounding remainder (spec.md §4.H step 2). Per
// DESIGN.md's Open Question #2 decision, the remainder is clamped to
// [0, total] as a defensive measure — in practice, with non-negative
// peaks and floored division, it can never fall outside that range.
func allocateBudget(peak []int, total int) []int {
	m := len(peak)
	r := make([]int, m)
	if m == 0 {
		return r
	}
	sum := 0
	for _, p := range peak {
		sum += p
	}
	if sum == 0 {
		base := total / m
		for i := range r {
			r[i] = base
		}
		r[m-1] += total - base*m
		return r
	}
	assigned := 0
	for t := 0; t < m-1; t++ {
		r[t] = peak[t] * total / sum
		assigned += r[t]
	}
	remainder := total - assigned
	if remainder < 0 {
		remainder = 0
	}
	if remainder > total {
		remainder = total
	}
	r[m-1] = remainder
	return r
}

// tagAffinity computes the normalised min-overlap correlation between
// tags' read series (spec.md §4.H step 3's explicitly-permitted
// fallback to "the original formulation"), grounded on
// original_source/init.h's alpha computation.
func tagAffinity(read [][]int, m int) [][]float64 {
	alpha := make([][]float64, m)
	sums := make([]int, m)
	for i := 0; i < m; i++ {
		for _, c := range read[i] {
			sums[i] += c
		}
	}
	for i := 0; i < m; i++ {
		alpha[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			s := len(read[i])
			if len(read[j]) < s {
				s = len(read[j])
			}
			overlap := 0
			for k := 0; k < s; k++ {
				a, b := read[i][k], read[j][k]
				if a < b {
					overlap += a
				} else {
					overlap += b
				}
			}
			denom := sums[i]
			if sums[j] < denom {
				denom = sums[j]
			}
			if denom > 0 {
				alpha[i][j] = float64(overlap) / float64(denom)
			}
		}
	}
	return alpha
}

// rankDisksByTag sorts disk ids by descending allocation for each tag,
// the per-tag preference order internal/placer's segment-fit strategy
// walks (rotated per object for decorrelation).
func rankDisksByTag(alloc optimizer.Allocation, m, n int) [][]int {
	order := make([][]int, m)
	for t := 0; t < m; t++ {
		disks := make([]int, n)
		for d := range disks {
			disks[d] = d
		}
		sort.SliceStable(disks, func(i, j int) bool { return alloc[t][disks[i]] > alloc[t][disks[j]] })
		order[t] = disks
	}
	return order
}
