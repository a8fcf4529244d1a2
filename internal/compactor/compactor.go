// Package compactor implements component I: a bounded-work, per-disk,
// two-pointer block-swap pass that moves occupied blocks toward the
// front of each tag's region (spec.md §4.I).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package compactor

import (
	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/readqueue"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/tasktracker"
)

// SwapRecord is one compaction swap, emitted on the wire as `<from+1>
// <to+1>` (spec.md §6).
type SwapRecord struct {
	From, To int
}

// Compactor owns no state; every structure it mutates (Disk, SegmentTable,
// TaskTracker, ReadQueue) is owned by the Dispatcher.
type Compactor struct {
	disks    []*disk.Disk
	segs     *segtable.Table
	trackers *tasktracker.Registry
	queues   []*readqueue.Queue // queues[h] for head id h; primary head for disk d is d, mirror is d+numDisks
	numDisks int
}

// New builds a Compactor over numDisks physical disks and their 2*numDisks
// head queues.
func New(disks []*disk.Disk, segs *segtable.Table, trackers *tasktracker.Registry, queues []*readqueue.Queue, numDisks int) *Compactor {
	return &Compactor{disks: disks, segs: segs, trackers: trackers, queues: queues, numDisks: numDisks}
}

// Run compacts every disk, each under an independent budget of up to k
// swaps, and returns the swap records per disk in execution order
// (spec.md §4.I, §4.G: invoked every COMPACT_PERIOD steps).
func (c *Compactor) Run(k int) [][]SwapRecord {
	out := make([][]SwapRecord, len(c.disks))
	for d, dk := range c.disks {
		out[d] = c.compactDisk(d, dk, k)
	}
	return out
}

func (c *Compactor) compactDisk(diskID int, dk *disk.Disk, k int) []SwapRecord {
	var records []SwapRecord
	budget := k
	for _, seg := range c.segs.SegmentsOnDisk(diskID) {
		if budget <= 0 {
			break
		}
		i, j := seg.Start, seg.Start+seg.Capacity-1
		for i < j && budget > 0 {
			for i < j && !dk.IsFree(i) {
				i++
			}
			for i < j && dk.IsFree(j) {
				j--
			}
			if i >= j {
				break
			}
			occupant := dk.At(j)
			dk.SwapCells(i, j)
			c.segs.Swap(diskID, j, i)
			c.translateTask(occupant.OID, diskID, j, i)
			c.queues[diskID].Swap(j, i)
			c.queues[diskID+c.numDisks].Swap(j, i)
			records = append(records, SwapRecord{From: j, To: i})
			budget--
			i++
			j--
		}
	}
	return records
}

func (c *Compactor) translateTask(oid, diskID, oldAddr, newAddr int) {
	tr := c.trackers.Get(oid)
	tr.TranslateAddr(diskID, oldAddr, newAddr)
	tr.TranslateAddr(diskID+c.numDisks, oldAddr, newAddr)
}
