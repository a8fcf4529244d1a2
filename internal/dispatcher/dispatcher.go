// Package dispatcher implements component G: the per-step orchestration
// state machine tying together every other package into one coherent
// simulation loop (spec.md §4.G, §4.I state-machine footer).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dispatcher

import (
	"container/list"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/aistore-sim/diskengine/internal/cmn"
	"github.com/aistore-sim/diskengine/internal/cmn/cos"
	"github.com/aistore-sim/diskengine/internal/cmn/nlog"
	"github.com/aistore-sim/diskengine/internal/compactor"
	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/headplanner"
	"github.com/aistore-sim/diskengine/internal/placer"
	"github.com/aistore-sim/diskengine/internal/readqueue"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/stats"
	"github.com/aistore-sim/diskengine/internal/store"
	"github.com/aistore-sim/diskengine/internal/tasktracker"
)

// WriteReq is one object-creation request from a step's write batch
// (spec.md §6: "n_write lines of id size tag" — the wire-supplied id is
// validated against the engine's own sequential assignment by
// internal/wire; the Dispatcher only ever assigns ids itself).
type WriteReq struct {
	Size int
	Tag  int
}

// ReadReq is one outstanding block-read request against a whole object
// (spec.md §6: "n_read lines of req_id obj_id").
type ReadReq struct {
	ReqID int
	ObjID int
}

// NewObjectOut mirrors the wire emission for a newly-placed object
// (spec.md §6): its assigned id and, per replica, the disk and block
// addresses chosen.
type NewObjectOut struct {
	OID      int
	Replicas [store.NumReplicas]ReplicaOut
}

// ReplicaOut is one replica's disk and concrete block addresses.
type ReplicaOut struct {
	Disk   int
	Blocks []int
}

// StepOutput is everything a single step emits (spec.md §6 "Per-step
// emission").
type StepOutput struct {
	DeleteCancelled []int
	NewObjects      []NewObjectOut
	HeadOps         []string // len 2N, head-id order
	Completed       []int
	Stale           []int
	Swaps           [][]compactor.SwapRecord // nil unless this step compacted
}

// pendingEntry is one chronological hold in the stale-eviction FIFO
// (spec.md §4.G "the lifecycle manager holds a chronological list of
// tasks").
type pendingEntry struct {
	task *tasktracker.Task
}

// Dispatcher owns every piece of mutable simulation state and drives the
// fixed per-step phase order (spec.md §4.G, §5 "single-threaded
// cooperative").
type Dispatcher struct {
	cfg       cmn.Config
	step      int
	disks     []*disk.Disk
	heads     []*disk.HeadState // len 2N; head h's disk is h % N
	segs      *segtable.Table
	queues    []*readqueue.Queue // len 2N
	trackers  *tasktracker.Registry
	arena     *store.Arena
	placer    *placer.Placer
	planner   *headplanner.Planner
	compactor *compactor.Compactor
	rng       *rand.Rand
	stats     *stats.Tracker

	pending   *list.List // FIFO of *pendingEntry, chronological by CreatedAt
	tasksByID map[int]*tasktracker.Task
	retired   *cuckoo.Filter // fast-path negative cache of already-retired request ids
}

// New wires every component into a single Dispatcher. disks/queues
// must already be sized to N and 2N respectively by the caller
// (cmd/diskengine); the 2N head states are built here. segs/placer/planner come from PlacementInit and the
// rest of component H.
func New(
	cfg cmn.Config,
	disks []*disk.Disk,
	segs *segtable.Table,
	queues []*readqueue.Queue,
	trackers *tasktracker.Registry,
	arena *store.Arena,
	pl *placer.Placer,
	planner *headplanner.Planner,
	rng *rand.Rand,
	st *stats.Tracker,
) *Dispatcher {
	n := cfg.Disks
	heads := make([]*disk.HeadState, 2*n)
	for i := range heads {
		heads[i] = &disk.HeadState{}
	}
	d := &Dispatcher{
		cfg:       cfg,
		disks:     disks,
		heads:     heads,
		segs:      segs,
		queues:    queues,
		trackers:  trackers,
		arena:     arena,
		placer:    pl,
		planner:   planner,
		rng:       rng,
		stats:     st,
		pending:   list.New(),
		tasksByID: make(map[int]*tasktracker.Task),
		retired:   cuckoo.NewFilter(1 << 16),
	}
	d.compactor = compactor.New(disks, segs, trackers, queues, n)
	return d
}

func retireKey(reqID int) []byte { return []byte(strconv.Itoa(reqID)) }

// Step runs one full phase cycle: acknowledge → delete → write →
// read-accept → eviction → plan (per head, sequentially) → emit →
// optional compact (spec.md §4.G, §4.I footer).
func (d *Dispatcher) Step(ts int, deletes []int, writes []WriteReq, reads []ReadReq) (StepOutput, error) {
	if ts != d.step {
		return StepOutput{}, cos.WrapProtocolDesync(d.step, ts)
	}

	out := StepOutput{}
	out.DeleteCancelled = d.processDeletes(deletes)

	for _, w := range writes {
		obj, err := d.processWrite(w.Size, w.Tag)
		if err != nil {
			return StepOutput{}, err
		}
		out.NewObjects = append(out.NewObjects, obj)
	}

	for _, r := range reads {
		d.processRead(r.ReqID, r.ObjID)
	}

	out.Stale = d.evictStale()

	var completed []int
	onComplete := func(oid, k int) { completed = append(completed, d.completeBlock(oid, k)...) }

	n := len(d.disks)
	out.HeadOps = make([]string, 2*n)
	for h := 0; h < 2*n; h++ {
		budget := d.cfg.Budget
		diskPtr := d.disks[h%n]
		ops := d.planner.Plan(diskPtr, d.heads[h], d.queues[h], budget, d.cfg.Capacity, onComplete)
		out.HeadOps[h] = ops
		d.tallyOps(ops)
		d.stats.HeadPos.WithLabelValues(strconv.Itoa(h)).Set(float64(d.heads[h].Pos))
	}
	out.Completed = completed
	d.stats.Completes.Add(float64(len(completed)))

	if d.step%cmn.TimeSliceDivisor == 0 {
		out.Swaps = d.compactor.Run(d.cfg.SwapCap)
		for _, perDisk := range out.Swaps {
			d.stats.Swaps.Add(float64(len(perDisk)))
		}
	}

	d.stats.Step.Set(float64(d.step))
	nlog.Infof("step %d: deletes=%d writes=%d reads=%d completed=%d stale=%d",
		d.step, len(out.DeleteCancelled), len(out.NewObjects), len(reads), len(out.Completed), len(out.Stale))

	d.step++
	return out, nil
}

// tallyOps increments the Prometheus op counters for one head's emitted
// string (spec.md §6 op alphabet {r, p, j<addr+1>}).
func (d *Dispatcher) tallyOps(ops string) {
	if strings.HasPrefix(ops, "j") {
		d.stats.Jumps.Inc()
		return
	}
	for _, c := range ops {
		switch c {
		case 'r':
			d.stats.Reads.Inc()
		case 'p':
			d.stats.Passes.Inc()
		}
	}
}

// processDeletes frees disk cells and segment usage for every deleted
// object and returns the request ids of any still-live outstanding tasks
// against them (spec.md §4.I/§1(e), §6 "Deletes").
func (d *Dispatcher) processDeletes(deletes []int) []int {
	var cancelled []int
	for _, oid := range deletes {
		obj, ok := d.arena.Get(oid)
		if !ok || !obj.Valid {
			continue // InvalidRequest: unknown or already-deleted, silently ignored
		}

		tr := d.trackers.Get(oid)
		tasks := tr.Tasks() // snapshot before drain, for queue cleanup below
		for _, t := range tasks {
			for _, wi := range t.Work {
				d.queues[wi.Head].RemoveAll(wi.Addr)
			}
		}

		for r := 0; r < store.NumReplicas; r++ {
			rep := obj.Replica[r]
			for _, addr := range rep.Blocks {
				d.disks[rep.Disk].Delete(addr)
				if seg := d.segs.FindContainingAnyTag(rep.Disk, addr); seg != nil {
					d.segs.Delete(seg, 1)
				}
			}
		}

		d.arena.Delete(oid)
		live := tr.Clear()
		for _, id := range live {
			delete(d.tasksByID, id)
			d.retired.InsertUnique(retireKey(id))
		}
		cancelled = append(cancelled, live...)
	}
	return cancelled
}

// processWrite inserts a new object and places all 3 replicas via the
// Placer (spec.md §4.E, §6 "Writes").
func (d *Dispatcher) processWrite(size, tag int) (NewObjectOut, error) {
	oid := d.arena.Insert(tag, size)
	d.trackers.NewObject(oid, size)

	out := NewObjectOut{OID: oid}
	for r := 0; r < store.NumReplicas; r++ {
		if !d.placer.Insert(oid, r) {
			return NewObjectOut{}, cos.WrapCapacityExhausted(oid, r)
		}
	}
	obj, _ := d.arena.Get(oid)
	for r := 0; r < store.NumReplicas; r++ {
		rep := obj.Replica[r]
		out.Replicas[r] = ReplicaOut{Disk: rep.Disk, Blocks: append([]int(nil), rep.Blocks...)}
	}
	return out, nil
}

// assignedHead picks, per spec.md §3 invariant "one queue entry per
// (replica, block) ... at its assigned head" (SPEC_FULL.md / DESIGN.md
// open-question resolution): alternates every replica of a request
// between the primary and mirror head of its disk, keyed on request id
// parity, so the two heads of a disk share read load across requests
// while each individual (replica, block) still queues at exactly one
// head. This is also what makes the documented "mirror and primary can
// converge on the same cell" scenario possible: two different request
// ids for the same object can land on different heads.
func (d *Dispatcher) assignedHead(reqID, diskID int) int {
	if reqID%2 == 0 {
		return diskID
	}
	return diskID + len(d.disks)
}

// processRead creates a Task for obj, pushing one WorkItem per (replica,
// block) onto its assigned head's ReadQueue (spec.md §3 "Task", §4.G).
func (d *Dispatcher) processRead(reqID, oid int) {
	obj, ok := d.arena.Get(oid)
	if !ok || !obj.Valid {
		return // InvalidRequest: read against unknown/deleted object, silently ignored
	}

	work := make([]tasktracker.WorkItem, 0, store.NumReplicas*obj.Size)
	for r := 0; r < store.NumReplicas; r++ {
		rep := obj.Replica[r]
		head := d.assignedHead(reqID, rep.Disk)
		for k, addr := range rep.Blocks {
			work = append(work, tasktracker.WorkItem{Head: head, Block: k, Addr: addr})
			d.queues[head].Push(addr)
		}
	}

	task := &tasktracker.Task{ID: reqID, ObjectID: oid, CreatedAt: d.step, RefCount: 2, Work: work}
	d.trackers.Get(oid).Insert(task)
	d.tasksByID[reqID] = task
	d.pending.PushBack(&pendingEntry{task: task})
}

// completeBlock is the scheduler.complete_block hook HeadPlanner invokes
// whenever any head actually reads a cell (spec.md §4.F step 6): it
// removes the block from every replica's primary and mirror queues, then
// advances the object's TaskTracker and retires any task this completes.
func (d *Dispatcher) completeBlock(oid, k int) []int {
	obj, ok := d.arena.Get(oid)
	if !ok || !obj.Valid {
		return nil
	}
	n := len(d.disks)
	for r := 0; r < store.NumReplicas; r++ {
		rep := obj.Replica[r]
		addr := rep.Blocks[k]
		d.queues[rep.Disk].RemoveAll(addr)
		d.queues[rep.Disk+n].RemoveAll(addr)
	}

	completed := d.trackers.Get(oid).Update(k)
	for _, id := range completed {
		if t, ok := d.tasksByID[id]; ok {
			t.Retire()
			delete(d.tasksByID, id)
			d.retired.InsertUnique(retireKey(id))
		}
	}
	return completed
}

// evictStale pops every pending task whose deadline has passed, reporting
// still-live ones on the busy channel (spec.md §4.G "Stale-request
// eviction", §5 "Deadline miss ... converts it to a busy-signal output").
func (d *Dispatcher) evictStale() []int {
	var stale []int
	cutoff := d.step - cmn.StaleWindow
	for {
		front := d.pending.Front()
		if front == nil {
			break
		}
		entry := front.Value.(*pendingEntry)
		if entry.task.CreatedAt > cutoff {
			break
		}
		d.pending.Remove(front)

		t := entry.task
		if fast := d.retired.Lookup(retireKey(t.ID)); !fast || t.RefCount > 1 {
			obj, ok := d.arena.Get(t.ObjectID)
			if ok && obj.Valid && t.RefCount > 1 {
				for _, wi := range t.Work {
					d.queues[wi.Head].RemoveOne(wi.Addr)
				}
				t.Retire()
				d.retired.InsertUnique(retireKey(t.ID))
				stale = append(stale, t.ID)
				d.stats.Stale.Inc()
			}
		}
		delete(d.tasksByID, t.ID)
	}
	return stale
}

// String formats a StepOutput for debug logging (not the wire format,
// which lives in internal/wire).
func (o StepOutput) String() string {
	return fmt.Sprintf("deletes=%v completed=%v stale=%v heads=%v", o.DeleteCancelled, o.Completed, o.Stale, o.HeadOps)
}
