// Package tasktracker implements component D: per-object bitmap-keyed
// bucketing of outstanding read tasks, emitting a request completion once
// every block of an object has been read (spec.md §4.D).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tasktracker

import (
	"container/list"

	"github.com/aistore-sim/diskengine/internal/cmn/debug"
)

// WorkItem names one (head, block address) pair a Task is still waiting
// on. Block is the object-local block index, Addr the concrete cell
// address that block currently occupies on Head's disk.
type WorkItem struct {
	Head  int
	Block int
	Addr  int
}

// Task is an outstanding read request against a specific object (spec.md
// §3 "Task"). RefCount starts at 2: one for the ReadQueue's hold on this
// task's still-outstanding cells, one for the lifecycle manager's own
// bookkeeping (the chronological pending list used for staleness
// eviction, owned by internal/dispatcher). When the lifecycle manager
// retires a task early via staleness eviction, it decrements RefCount
// instead of splicing the task out of whatever bucket it currently sits
// in (an O(n) search the original design explicitly avoids): a task seen
// again later at RefCount<=1 has already been reported once (busy) and is
// silently dropped rather than double-reported; a parent-object delete
// instead empties every bucket via Clear (spec.md §4.D: "each task whose reference count
// exceeds 1 ... becomes a completed-request output").
type Task struct {
	ID        int // request id
	ObjectID  int
	CreatedAt int
	RefCount  int
	Work      []WorkItem
}

// Retire decrements RefCount, marking the task as already reported via
// some other channel (busy-signal or completion) ahead of a later bucket
// drain that might otherwise see it.
func (t *Task) Retire() { t.RefCount-- }

// TranslateAddr rewrites the stored addr for head/oldAddr to newAddr, used
// by the Compactor when it moves a block to a new cell (spec.md §4.D
// swap, §4.I).
func (t *Task) TranslateAddr(head, oldAddr, newAddr int) {
	for i := range t.Work {
		if t.Work[i].Head == head && t.Work[i].Addr == oldAddr {
			t.Work[i].Addr = newAddr
		}
	}
}

// PerObject is one object's array of 2^size FIFO buckets, indexed by the
// bitmap of object-block indices already completed (spec.md §3
// "TaskTracker (per object)").
type PerObject struct {
	mask    int
	buckets []*list.List
}

// NewPerObject builds an empty tracker for an object of the given size in
// blocks (size >= 1).
func NewPerObject(size int) *PerObject {
	mask := (1 << uint(size)) - 1
	p := &PerObject{mask: mask, buckets: make([]*list.List, mask+1)}
	for i := range p.buckets {
		p.buckets[i] = list.New()
	}
	return p
}

// Insert appends a new task to bucket 0 (spec.md §4.D).
func (p *PerObject) Insert(t *Task) {
	p.buckets[0].PushBack(t)
}

// Update splices every bucket i with bit k clear into bucket i|(1<<k),
// then drains the full-mask bucket, returning the request ids of tasks
// that complete as a result (spec.md §4.D update).
func (p *PerObject) Update(k int) []int {
	debug.Assert((1<<uint(k)) <= p.mask+1, "Update: block index out of range")
	bit := 1 << uint(k)
	for i := 0; i <= p.mask; i++ {
		if i&bit != 0 {
			continue
		}
		dst := i | bit
		p.buckets[dst].PushBackList(p.buckets[i])
		p.buckets[i].Init()
	}
	return p.drainFullBucket()
}

func (p *PerObject) drainFullBucket() []int {
	full := p.buckets[p.mask]
	if full.Len() == 0 {
		return nil
	}
	var completed []int
	for e := full.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Task)
		if t.RefCount > 1 {
			completed = append(completed, t.ID)
		}
	}
	full.Init()
	return completed
}

// Tasks returns a snapshot of every task currently held in any bucket,
// without draining them — used by the Dispatcher ahead of Clear() to
// collect the WorkItem addresses it must also remove from every head's
// ReadQueue on object delete (spec.md §4.D clear, §1(e)).
func (p *PerObject) Tasks() []*Task {
	var out []*Task
	for _, b := range p.buckets {
		for e := b.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*Task))
		}
	}
	return out
}

// Clear empties every bucket (on object delete), returning the request
// ids of tasks that were still live (spec.md §4.D clear).
func (p *PerObject) Clear() []int {
	var deleted []int
	for _, b := range p.buckets {
		for e := b.Front(); e != nil; e = e.Next() {
			t := e.Value.(*Task)
			if t.RefCount > 1 {
				deleted = append(deleted, t.ID)
			}
		}
		b.Init()
	}
	return deleted
}

// TranslateAddr rewrites head/oldAddr to newAddr across every task
// currently held in any bucket, regardless of completion progress — used
// by the Compactor after swapping two cells so in-flight tasks keep
// pointing at the right address (spec.md §4.I).
func (p *PerObject) TranslateAddr(head, oldAddr, newAddr int) {
	for _, b := range p.buckets {
		for e := b.Front(); e != nil; e = e.Next() {
			e.Value.(*Task).TranslateAddr(head, oldAddr, newAddr)
		}
	}
}

// FullBucketEmpty reports whether the full-mask bucket is currently empty — a
// step-end invariant (spec.md §8 #4: "TaskTracker bucket mask is empty at
// end of step").
func (p *PerObject) FullBucketEmpty() bool { return p.buckets[p.mask].Len() == 0 }

// Registry owns one PerObject tracker per object id, mirroring the
// original implementation's Scheduler::task_mgr_ (a vector of TaskManager
// indexed by object id).
type Registry struct {
	trackers []*PerObject
}

// NewRegistry preallocates capacity for horizon objects.
func NewRegistry(horizon int) *Registry {
	return &Registry{trackers: make([]*PerObject, 0, horizon)}
}

// NewObject registers a tracker for a newly-inserted object; oid must
// equal the next sequential index (objects are only ever appended).
func (r *Registry) NewObject(oid, size int) {
	debug.Assert(oid == len(r.trackers), "NewObject: oid out of sequence")
	r.trackers = append(r.trackers, NewPerObject(size))
}

// Get returns the tracker for oid.
func (r *Registry) Get(oid int) *PerObject { return r.trackers[oid] }
