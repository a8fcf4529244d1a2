// Package disk implements component A: a ring-addressable block array with
// a head cursor, a free-block index, and cost-aware step primitives
// (spec.md §4.A).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package disk

import (
	"sort"

	"github.com/aistore-sim/diskengine/internal/cmn/cos"
	"github.com/aistore-sim/diskengine/internal/cmn/debug"
)

// Cell is the occupant of one ring position: an (object id, block index
// within that object) pair. An empty cell has OID < 0.
type Cell struct {
	OID   int
	Block int
}

func (c Cell) empty() bool { return c.OID < 0 }

// minRead is the floor of the declining read-cost ladder (spec.md §4.A).
const minRead = 16

// coldRead is the cost of a Read immediately following a non-Read op.
const coldRead = 64

// CostLadder is the 8 reachable Read costs in ascending (fastest-first)
// order, shared with internal/headplanner's DP so both packages agree on
// what "warm" means. Index 8 in the DP (not present here) encodes
// "previous op was not a Read".
var CostLadder = [8]int{16, 19, 23, 28, 34, 42, 52, 64}

// Disk is one ring of V cells, with independent free-cell tracking, head
// position, and previous-op/cost state for the read-cost ladder. Two
// logical heads (primary/mirror) share one Disk's cell array but keep
// their own cursor/cost state externally (see internal/dispatcher), so
// Disk itself only tracks cell contents and free space, not a single
// "the" head — step_read/step_pass/jump below take the caller's head
// state by pointer (*HeadState) so that both heads of a disk can drive
// the same cell array independently.
type Disk struct {
	id       int
	capacity int
	cells    []Cell
	free     []int // sorted ascending; invariant: free[i] are exactly the empty cell indices
}

// New builds an empty ring of capacity V, all cells free.
func New(id, capacity int) *Disk {
	d := &Disk{
		id:       id,
		capacity: capacity,
		cells:    make([]Cell, capacity),
		free:     make([]int, capacity),
	}
	for i := range d.cells {
		d.cells[i] = Cell{OID: -1, Block: -1}
		d.free[i] = i
	}
	return d
}

func (d *Disk) ID() int       { return d.id }
func (d *Disk) Capacity() int { return d.capacity }

// FreeCount is the number of currently-free cells on this disk.
func (d *Disk) FreeCount() int { return len(d.free) }

// At returns the cell currently stored at addr.
func (d *Disk) At(addr int) Cell { return d.cells[addr] }

// IsFree reports whether addr currently holds no block.
func (d *Disk) IsFree(addr int) bool { return d.cells[addr].empty() }

// WriteFirst picks the smallest free address, stores (oid,k), and returns
// the address (spec.md §4.A write_first).
func (d *Disk) WriteFirst(oid, k int) (int, error) {
	if len(d.free) == 0 {
		return 0, cos.ErrCapacityExhausted
	}
	addr := d.free[0]
	d.occupy(addr, oid, k)
	return addr, nil
}

// WriteFrom picks the smallest free address >= bid, stores (oid,k), and
// returns the address, failing if none exists (spec.md §4.A write_from).
func (d *Disk) WriteFrom(bid, oid, k int) (int, error) {
	i := sort.SearchInts(d.free, bid)
	if i == len(d.free) {
		return 0, cos.ErrCapacityExhausted
	}
	addr := d.free[i]
	d.occupy(addr, oid, k)
	return addr, nil
}

func (d *Disk) occupy(addr, oid, k int) {
	i := sort.SearchInts(d.free, addr)
	debug.Assert(i < len(d.free) && d.free[i] == addr, "occupy: addr not free")
	d.free = append(d.free[:i], d.free[i+1:]...)
	d.cells[addr] = Cell{OID: oid, Block: k}
}

// Delete frees addr; a no-op if already free (spec.md §4.A delete).
func (d *Disk) Delete(addr int) {
	if d.cells[addr].empty() {
		return
	}
	d.cells[addr] = Cell{OID: -1, Block: -1}
	i := sort.SearchInts(d.free, addr)
	d.free = append(d.free, 0)
	copy(d.free[i+1:], d.free[i:])
	d.free[i] = addr
}

// SwapCells exchanges the contents of two occupied/free cells directly,
// used only by the Compactor (spec.md §4.I); it updates free-set
// membership for whichever side(s) become free/occupied.
func (d *Disk) SwapCells(a, b int) {
	ca, cb := d.cells[a], d.cells[b]
	d.cells[a], d.cells[b] = cb, ca
	if ca.empty() != cb.empty() {
		if ca.empty() { // a was free, b occupied -> after swap a occupied, b free
			d.removeFree(a)
			d.insertFree(b)
		} else {
			d.removeFree(b)
			d.insertFree(a)
		}
	}
}

func (d *Disk) removeFree(addr int) {
	i := sort.SearchInts(d.free, addr)
	if i < len(d.free) && d.free[i] == addr {
		d.free = append(d.free[:i], d.free[i+1:]...)
	}
}

func (d *Disk) insertFree(addr int) {
	i := sort.SearchInts(d.free, addr)
	if i < len(d.free) && d.free[i] == addr {
		return
	}
	d.free = append(d.free, 0)
	copy(d.free[i+1:], d.free[i:])
	d.free[i] = addr
}

// HeadState is the per-head (not per-disk) mutable cursor: position,
// previous-op kind, and previous read cost. A physical disk backs two
// heads (primary, mirror), each with its own HeadState (spec.md §3).
type HeadState struct {
	Pos         int
	PrevWasRead bool
	PrevCost    int
}

// ReadCost returns the cost of the next Read from this head's state: the
// declining ladder 64,52,42,34,28,23,19,16,16,... while consecutive Reads
// continue, reset to 64 after any non-Read op (spec.md §4.A read_cost).
func (h *HeadState) ReadCost() int {
	if h.PrevWasRead {
		c := (h.PrevCost + 1) * 4 / 5
		if c < minRead {
			c = minRead
		}
		return c
	}
	return coldRead
}

// StepRead subtracts this head's read cost from budget, advances its
// cursor by one cell (mod capacity), and returns the cell that was read;
// the cost paid is left in h.PrevCost. Caller must ensure budget >= cost.
func (d *Disk) StepRead(h *HeadState, budget *int) Cell {
	cost := h.ReadCost()
	debug.Assert(*budget >= cost, "StepRead: insufficient budget")
	*budget -= cost
	h.PrevCost = cost
	h.PrevWasRead = true
	cell := d.cells[h.Pos]
	h.Pos = (h.Pos + 1) % d.capacity
	return cell
}

// StepPass subtracts one from budget and advances the cursor by one cell,
// marking the previous op as "other" (spec.md §4.A step_pass).
func (d *Disk) StepPass(h *HeadState, budget *int) {
	debug.Assert(*budget >= 1, "StepPass: insufficient budget")
	*budget--
	h.PrevWasRead = false
	h.Pos = (h.Pos + 1) % d.capacity
}

// Jump forces budget to zero and resets the cursor to addr (spec.md §4.A
// jump); since it consumes the whole remaining step budget it may only be
// the first op of a head's step — callers enforce that ordering.
func (d *Disk) Jump(h *HeadState, budget *int, addr int) {
	*budget = 0
	h.Pos = addr
	h.PrevWasRead = false
}
