// Package headplanner implements component F: per-head, per-step
// planning of Read/Pass/Jump ops via a bounded dynamic program over the
// disk's declining read-cost ladder (spec.md §4.F).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package headplanner

import (
	"math"
	"strconv"
	"strings"

	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/readqueue"
)

// notReadLevel (j=8) is the DP's marker for "the previous op was not a
// Read"; levels 0..7 index disk.CostLadder, the cost actually paid by the
// most recent Read (spec.md §4.F step 3).
const notReadLevel = 8
const numLevels = 9

// tailLookahead is the fixed 12-cell horizon of the post-plan greedy
// loop (spec.md §4.F step 7).
const tailLookahead = 12

const inf = math.MaxInt32

// CompleteFunc is invoked for every occupied cell the plan or the tail
// loop actually reads, so the caller can broadcast completion to every
// head's ReadQueue and to the object's TaskTracker (spec.md §4.F step 6:
// "call scheduler.complete_block(oid, k)").
type CompleteFunc func(oid, block int)

// Planner holds the two per-step tunables that parameterise the
// algorithm; everything else it touches is passed in per call.
type Planner struct {
	Fetch         int
	JumpThreshold int
}

// New builds a Planner with the given look-ahead window and jump
// threshold (spec.md §6 configuration constants FETCH, and the engine's
// JUMP_THRESHOLD).
func New(fetch, jumpThreshold int) *Planner {
	return &Planner{Fetch: fetch, JumpThreshold: jumpThreshold}
}

func ringDist(from, to, ringSize int) int {
	d := (to - from) % ringSize
	if d < 0 {
		d += ringSize
	}
	return d
}

// nextLevel returns the ladder index of the Read that immediately
// follows a Read currently at level j: 7 (cost 64) if j was "not a Read",
// else one notch toward 0 (spec.md §4.F step 4: "advances the cost
// ladder one notch toward faster, capped at 0").
func nextLevel(j int) int {
	if j == notReadLevel {
		return 7
	}
	if j > 0 {
		return j - 1
	}
	return 0
}

// readChain computes the total cost and final level of reading `steps`
// consecutive cells starting from level startJ.
func readChain(startJ, steps int) (cost, finalLevel int) {
	level := startJ
	for s := 0; s < steps; s++ {
		level = nextLevel(level)
		cost += disk.CostLadder[level]
	}
	return cost, level
}

// levelForCost maps a previously-paid real Read cost back to its ladder
// index; PrevCost is always one of the eight ladder values by
// construction (disk.HeadState.ReadCost never returns anything else).
func levelForCost(cost int) int {
	for i, c := range disk.CostLadder {
		if c == cost {
			return i
		}
	}
	return 7
}

type pathKind int

const (
	pathRead pathKind = iota
	pathSkip
)

type step struct {
	kind   pathKind
	gapLen int
}

type cell struct {
	parentLevel int
	step        step
	ok          bool
}

// Plan runs the HeadPlanner for one head for one step: it mutates h and d
// (advancing the cursor, consuming budget) and q (via reads' completion
// callback and d's own state), and returns the op string emitted, using
// 0-based jump addresses — internal/wire bumps addresses by one when
// writing the wire line (spec.md §6).
func (p *Planner) Plan(d *disk.Disk, h *disk.HeadState, q *readqueue.Queue, budget, ringSize int, onComplete CompleteFunc) string {
	remaining := budget

	r := q.NextKAfter(h.Pos, p.Fetch)
	if len(r) == 0 {
		return "#"
	}

	hotAddr, hotCount, hotOK := q.Hot()
	gap0 := ringDist(h.Pos, r[0], ringSize)

	if hotOK && shouldJump(gap0, remaining, p.Fetch, hotCount, q.BucketCount(h.Pos), p.JumpThreshold) {
		d.Jump(h, &remaining, hotAddr)
		return "j" + strconv.Itoa(hotAddr) + "#"
	}

	plan, ok := p.solve(h, r, ringSize, budget)
	if !ok {
		d.Jump(h, &remaining, hotAddr)
		return "j" + strconv.Itoa(hotAddr) + "#"
	}

	var ops strings.Builder
	for _, st := range plan {
		if st.kind == pathSkip {
			for i := 0; i < st.gapLen; i++ {
				d.StepPass(h, &remaining)
				ops.WriteByte('p')
			}
			execRead(d, h, &remaining, &ops, onComplete)
		} else {
			for i := 0; i < st.gapLen+1; i++ {
				execRead(d, h, &remaining, &ops, onComplete)
			}
		}
	}

	runTailLoop(d, h, q, &remaining, ringSize, &ops, onComplete)

	out := ops.String()
	if out == "" {
		return "#"
	}
	return out + "#"
}

func execRead(d *disk.Disk, h *disk.HeadState, budget *int, ops *strings.Builder, onComplete CompleteFunc) {
	c := d.StepRead(h, budget)
	ops.WriteByte('r')
	if c.OID >= 0 {
		onComplete(c.OID, c.Block)
	}
}

// shouldJump implements spec.md §4.F step 2's jump trigger.
func shouldJump(gap0, budget, fetch, hotCount, currentBucketCount, jumpThreshold int) bool {
	if gap0 > budget || gap0 > fetch/3 {
		return true
	}
	if hotCount-currentBucketCount >= jumpThreshold && gap0 > fetch/10 {
		return true
	}
	return false
}

// solve runs the read/skip DP over r (spec.md §4.F steps 3-5) and returns
// the sequence of per-item decisions for the furthest reachable prefix,
// or ok=false if not even the first item is reachable within budget.
func (p *Planner) solve(h *disk.HeadState, r []int, ringSize, budget int) ([]step, bool) {
	n := len(r)
	seedLevel := notReadLevel
	if h.PrevWasRead {
		seedLevel = levelForCost(h.PrevCost)
	}

	dp := make([][numLevels]int, n+1)
	parent := make([][numLevels]cell, n+1)
	for i := range dp {
		for j := range dp[i] {
			dp[i][j] = inf
		}
	}
	dp[0][seedLevel] = 0

	prevAddr := h.Pos
	for i := 1; i <= n; i++ {
		curAddr := r[i-1]
		// gapLen is the ring distance from the cursor (the position the
		// head will be at once it's done with the previous item) to this
		// item: that many Pass-or-through-read cells before the one read
		// that actually lands on curAddr itself (spec.md §4.F step 4).
		gapLen := ringDist(prevAddr, curAddr, ringSize)
		for pj := 0; pj < numLevels; pj++ {
			base := dp[i-1][pj]
			if base == inf {
				continue
			}
			// path: read through the gap and the target.
			cost, nj := readChain(pj, gapLen+1)
			total := base + cost
			if total <= budget && total < dp[i][nj] {
				dp[i][nj] = total
				parent[i][nj] = cell{parentLevel: pj, step: step{kind: pathRead, gapLen: gapLen}, ok: true}
			}
			// path: skip the gap, read the target cold.
			if gapLen > 0 {
				total2 := base + gapLen*1 + disk.CostLadder[7]
				if total2 <= budget && total2 < dp[i][7] {
					dp[i][7] = total2
					parent[i][7] = cell{parentLevel: pj, step: step{kind: pathSkip, gapLen: gapLen}, ok: true}
				}
			}
		}
		prevAddr = (curAddr + 1) % ringSize
	}

	bestI := -1
	bestJ := -1
	for i := n; i >= 1 && bestI == -1; i-- {
		for j := 0; j < numLevels; j++ {
			if dp[i][j] < inf && (bestJ == -1 || dp[i][j] < dp[i][bestJ]) {
				bestI, bestJ = i, j
			}
		}
	}
	if bestI == -1 {
		return nil, false
	}

	plan := make([]step, bestI)
	i, j := bestI, bestJ
	for i > 0 {
		c := parent[i][j]
		plan[i-1] = c.step
		j = c.parentLevel
		i--
	}
	return plan, true
}

// runTailLoop implements spec.md §4.F step 7.
func runTailLoop(d *disk.Disk, h *disk.HeadState, q *readqueue.Queue, remaining *int, ringSize int, ops *strings.Builder, onComplete CompleteFunc) {
	for {
		if *remaining <= 0 {
			return
		}
		addr, ok := q.NextAfter(h.Pos)
		if !ok {
			return
		}
		gap := ringDist(h.Pos, addr, ringSize)
		cost := h.ReadCost()
		switch {
		case gap <= tailLookahead && cost <= *remaining:
			execRead(d, h, remaining, ops, onComplete)
		case cost >= disk.CostLadder[7]:
			d.StepPass(h, remaining)
			ops.WriteByte('p')
		default:
			return
		}
	}
}
