// Package placer implements component E: picking replica disks and block
// positions for newly-written objects via three fallback strategies
// (spec.md §4.E).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package placer

import (
	"math/rand/v2"
	"strconv"

	"github.com/OneOfOne/xxhash"

	"github.com/aistore-sim/diskengine/internal/cmn/debug"
	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/store"
)

// placementSalt seeds the per-object rotation draw; arbitrary fixed
// constant, only needs to be stable across runs.
const placementSalt = 0x9e3779b97f4a7c15

// Placer owns no state of its own beyond the disk preference table
// computed at startup by PlacementInit (component H); all mutable state
// it touches (disks, SegmentTable, Object arena) is owned by the
// Dispatcher.
type Placer struct {
	disks        []*disk.Disk
	segs         *segtable.Table
	arena        *store.Arena
	rng          *rand.Rand
	tagDiskOrder [][]int // tagDiskOrder[tag] = disk ids ranked by descending segment budget for tag, from PlacementInit
	compact      bool
}

// New builds a Placer. tagDiskOrder is produced by PlacementInit from the
// allocation matrix A[t][d] (spec.md §4.H step 2): for each tag, disk ids
// sorted by descending A[tag][disk].
func New(disks []*disk.Disk, segs *segtable.Table, arena *store.Arena, rng *rand.Rand, tagDiskOrder [][]int, compact bool) *Placer {
	return &Placer{disks: disks, segs: segs, arena: arena, rng: rng, tagDiskOrder: tagDiskOrder, compact: compact}
}

// rotation picks a deterministic-but-decorrelated starting offset into a
// disk ordering of length n, salted from the object id, so that two
// objects placed back to back do not pile onto the same first-choice
// disk under equal tag affinity (SPEC_FULL.md's Placer note; the same
// spirit as aistore's own HRW placement, adapted to this engine's
// seeded-RNG setting).
func (p *Placer) rotation(oid, n int) int {
	if n == 0 {
		return 0
	}
	salt := xxhash.ChecksumString64S(strconv.Itoa(oid), placementSalt)
	return int(salt % uint64(n))
}

func rotate(order []int, offset int) []int {
	n := len(order)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = order[(i+offset)%n]
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// holdsEarlierReplica reports whether a replica with index < replicaIdx
// already sits on disk d — the Insert invariant that all three replicas
// of an object end up on distinct disks (spec.md §4.E).
func holdsEarlierReplica(obj *store.Object, replicaIdx, d int) bool {
	for i := 0; i < replicaIdx; i++ {
		if obj.Replica[i].Disk == d {
			return true
		}
	}
	return false
}

// Insert places replicaIdx's copy of object oid, trying segment fit (only
// for replicaIdx 0), then block fit, then forced block fit in order;
// first success wins (spec.md §4.E).
func (p *Placer) Insert(oid, replicaIdx int) bool {
	obj, ok := p.arena.Get(oid)
	debug.Assert(ok, "Insert: unknown object id")
	if replicaIdx == 0 && p.trySegmentFit(obj, oid) {
		return true
	}
	if p.tryBlockFit(obj, oid, replicaIdx, true) {
		return true
	}
	return p.tryBlockFit(obj, oid, replicaIdx, false)
}

// trySegmentFit is strategy 1: walk disks in descending tag-affinity
// order (rotated per object), placing all of the object's blocks inside
// a same-tag segment with enough residual capacity.
func (p *Placer) trySegmentFit(obj *store.Object, oid int) bool {
	if obj.Tag < 0 || obj.Tag >= len(p.tagDiskOrder) {
		return false
	}
	order := p.tagDiskOrder[obj.Tag]
	if len(order) == 0 {
		return false
	}
	off := p.rotation(oid, len(order))
	for _, d := range rotate(order, off) {
		if holdsEarlierReplica(obj, 0, d) {
			continue
		}
		seg := p.segs.FindFit(obj.Tag, d, obj.Size)
		if seg == nil {
			continue
		}
		blocks, ok := p.writeAt(p.disks[d], oid, obj.Size, seg.Start)
		if !ok {
			continue
		}
		p.segs.Write(seg, obj.Size)
		p.arena.SetReplica(oid, 0, d, blocks)
		return true
	}
	return false
}

// tryBlockFit is strategies 2 and 3: walk all disks in identity order
// rotated per object (see rotation); under the constrained pass
// (strategy 2) with the compact policy, require enough managed-free
// capacity and write starting at the disk's segment tail (the first
// address past its last segment); otherwise, and always in the forced
// pass (strategy 3), write from address 0 with neither restriction.
func (p *Placer) tryBlockFit(obj *store.Object, oid, replicaIdx int, constrained bool) bool {
	n := len(p.disks)
	off := p.rotation(oid, n)
	for _, d := range rotate(identity(n), off) {
		if holdsEarlierReplica(obj, replicaIdx, d) {
			continue
		}
		dk := p.disks[d]
		if dk.FreeCount() < obj.Size {
			continue
		}
		start := 0
		if constrained && p.compact {
			if p.segs.FreeManaged(d) < obj.Size {
				continue
			}
			start = p.segs.Tail(d)
		}
		blocks, ok := p.writeAt(dk, oid, obj.Size, start)
		if !ok {
			continue
		}
		for _, addr := range blocks {
			if seg := p.segs.FindContainingAnyTag(d, addr); seg != nil {
				p.segs.Write(seg, 1)
			}
		}
		p.arena.SetReplica(oid, replicaIdx, d, blocks)
		return true
	}
	return false
}

// writeAt writes size blocks of oid onto d, each via write_from(start,
// k), rolling back every cell already written if any block fails to
// place (spec.md §4.E: "place all size blocks ... using write_from").
func (p *Placer) writeAt(d *disk.Disk, oid, size, start int) ([]int, bool) {
	blocks := make([]int, 0, size)
	for k := 0; k < size; k++ {
		addr, err := d.WriteFrom(start, oid, k)
		if err != nil {
			for _, a := range blocks {
				d.Delete(a)
			}
			return nil, false
		}
		blocks = append(blocks, addr)
	}
	return blocks, true
}
