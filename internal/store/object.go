// Package store is the Object arena: identity, tag, size, validity, and
// per-replica block placement for every object ever inserted in a run
// (spec.md §3 "Object", §9 "Shared object records across heads/tasks").
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package store

import "github.com/aistore-sim/diskengine/internal/cmn/debug"

// NumReplicas is fixed at 3 for this engine (spec.md §3).
const NumReplicas = 3

// Replica is one of an object's three copies: which disk holds it, and
// the concrete cell address of every one of the object's blocks on that
// disk.
type Replica struct {
	Disk   int
	Blocks []int // Blocks[k] = cell address of object block k on Disk
}

// Object is a value type, never referenced by pointer from ReadQueue or
// TaskTracker (design note §9): those packages address objects by id
// through the Arena.
type Object struct {
	ID      int
	Tag     int
	Size    int // blocks
	Valid   bool
	Replica [NumReplicas]Replica
}

// Arena is the flat, append-only, id-indexed object store: the Go
// counterpart of the original implementation's ObjectPool, which reserves
// T+STALE_WINDOW slots up front and never shrinks (original_source
// object.h).
type Arena struct {
	objs []Object
}

// NewArena preallocates capacity for horizon (T + STALE_WINDOW) objects.
func NewArena(horizon int) *Arena {
	return &Arena{objs: make([]Object, 0, horizon)}
}

// Insert appends a new, valid object and returns its 0-based id.
func (a *Arena) Insert(tag, size int) int {
	id := len(a.objs)
	o := Object{ID: id, Tag: tag, Size: size, Valid: true}
	for r := 0; r < NumReplicas; r++ {
		o.Replica[r].Blocks = make([]int, size)
	}
	a.objs = append(a.objs, o)
	return id
}

// Get returns a pointer into the arena's backing slice for in-place
// mutation (e.g. SetReplica), and whether oid is in range.
func (a *Arena) Get(oid int) (*Object, bool) {
	if oid < 0 || oid >= len(a.objs) {
		return nil, false
	}
	return &a.objs[oid], true
}

// IsValid reports whether oid exists and has not been deleted.
func (a *Arena) IsValid(oid int) bool {
	o, ok := a.Get(oid)
	return ok && o.Valid
}

// SetReplica records disk and blocks for replica index r of oid.
func (a *Arena) SetReplica(oid, r, disk int, blocks []int) {
	o, ok := a.Get(oid)
	debug.Assert(ok, "SetReplica on unknown object id")
	o.Replica[r] = Replica{Disk: disk, Blocks: blocks}
}

// Delete clears the validity flag. Storage cells referenced by the
// object's replicas are freed by the caller (Dispatcher); the Object
// record itself is retained for historical lookup by request id
// (spec.md §3).
func (a *Arena) Delete(oid int) {
	o, ok := a.Get(oid)
	if ok {
		o.Valid = false
	}
}
