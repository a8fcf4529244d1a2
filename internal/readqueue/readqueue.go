// Package readqueue implements component C: the per-head ordered set of
// outstanding block addresses, with multiplicity counts, a hot-spot
// histogram, and nearest-forward ring lookup (spec.md §4.C).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package readqueue

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/aistore-sim/diskengine/internal/cmn/debug"
)

// ErrBothPresent is returned by Swap when both addresses are already
// queued (spec.md §4.C swap: "error if both present").
var ErrBothPresent = errors.New("readqueue: swap operands both already queued")

const keyWidth = "%010d"

func key(addr int) string { return fmt.Sprintf(keyWidth, addr) }

// Queue is the ordered membership set S (backed by an in-memory buntdb
// index so that next_after/next_k_after are ordered range scans rather
// than hand-rolled tree code — see SPEC_FULL.md's ReadQueue note) plus the
// exact per-address multiplicity map and a coarse histogram, with
// Σcnt == Σhistogram == outstanding block-level reads at this head at all
// times (spec.md §3 "ReadQueue (per head)" invariants).
type Queue struct {
	ring int // V: ring modulus for next_after wraparound
	db   *buntdb.DB

	cnt       map[int]int
	bucketW   int
	histogram map[int]int
	size      int // len(S), i.e. number of distinct outstanding addresses
}

// New builds an empty per-head queue over a ring of size V, with the
// default single histogram bucket spanning the whole ring (spec.md §4.C:
// "default one bucket of width V").
func New(ringCapacity int) *Queue {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// an in-process memory-backed buntdb cannot fail to open.
		panic(err)
	}
	return &Queue{
		ring:      ringCapacity,
		db:        db,
		cnt:       make(map[int]int),
		bucketW:   ringCapacity,
		histogram: make(map[int]int),
	}
}

func (q *Queue) bucket(addr int) int { return addr / q.bucketW }

// Push inserts addr into S if absent, and always increments its count,
// histogram bucket, and the total stress counter (spec.md §4.C push).
func (q *Queue) Push(addr int) {
	if q.cnt[addr] == 0 {
		q.db.Update(func(tx *buntdb.Tx) error {
			_, _, err := tx.Set(key(addr), key(addr), nil)
			return err
		})
		q.size++
	}
	q.cnt[addr]++
	q.histogram[q.bucket(addr)]++
}

// RemoveAll removes addr from S entirely, subtracting its full count from
// the histogram (spec.md §4.C remove_all).
func (q *Queue) RemoveAll(addr int) {
	c := q.cnt[addr]
	if c == 0 {
		return
	}
	q.histogram[q.bucket(addr)] -= c
	delete(q.cnt, addr)
	q.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(addr))
		return err
	})
	q.size--
}

// RemoveOne decrements addr's count; once it reaches zero, addr leaves S
// (spec.md §4.C remove_one).
func (q *Queue) RemoveOne(addr int) {
	c := q.cnt[addr]
	if c == 0 {
		return
	}
	q.histogram[q.bucket(addr)]--
	c--
	if c == 0 {
		delete(q.cnt, addr)
		q.db.Update(func(tx *buntdb.Tx) error {
			_, err := tx.Delete(key(addr))
			return err
		})
		q.size--
		return
	}
	q.cnt[addr] = c
}

// Count returns the outstanding multiplicity of addr (0 if not queued).
func (q *Queue) Count(addr int) int { return q.cnt[addr] }

// Len returns |S|, the number of distinct outstanding addresses.
func (q *Queue) Len() int { return q.size }

// Stress returns Σcnt, the total outstanding block-level reads at this
// head.
func (q *Queue) Stress() int {
	total := 0
	for _, c := range q.cnt {
		total += c
	}
	return total
}

// NextAfter returns the smallest member of S that is >= pos on the ring;
// if none is, it wraps to the smallest member overall. ok is false iff S
// is empty (spec.md §4.C next_after).
func (q *Queue) NextAfter(pos int) (addr int, ok bool) {
	found := false
	q.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", key(pos), func(k, _ string) bool {
			fmt.Sscanf(k, keyWidth, &addr)
			found = true
			return false
		})
	})
	if found {
		return addr, true
	}
	// wrap: smallest member overall
	q.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, _ string) bool {
			fmt.Sscanf(k, keyWidth, &addr)
			found = true
			return false
		})
	})
	return addr, found
}

// NextKAfter returns up to k addresses in ring order starting at pos
// (spec.md §4.C next_k_after).
func (q *Queue) NextKAfter(pos, k int) []int {
	if k <= 0 || q.size == 0 {
		return nil
	}
	out := make([]int, 0, k)
	seen := make(map[int]bool, k)
	cur := pos
	for len(out) < k && len(out) < q.size {
		addr, ok := q.NextAfter(cur)
		if !ok {
			break
		}
		if seen[addr] {
			break // wrapped around without finding anything new
		}
		seen[addr] = true
		out = append(out, addr)
		cur = (addr + 1) % q.ring
	}
	return out
}

// Hot returns the address with the highest count within the heaviest
// histogram bucket, ties broken by lowest address (spec.md §4.C hot).
// ok is false iff the queue is empty.
func (q *Queue) Hot() (addr, count int, ok bool) {
	if q.size == 0 {
		return 0, 0, false
	}
	bestBucket, bestBucketTotal := -1, -1
	for b, total := range q.histogram {
		if total > bestBucketTotal {
			bestBucket, bestBucketTotal = b, total
		}
	}
	bestAddr, bestCount := -1, -1
	for a, c := range q.cnt {
		if q.bucket(a) != bestBucket {
			continue
		}
		if c > bestCount || (c == bestCount && a < bestAddr) {
			bestAddr, bestCount = a, c
		}
	}
	debug.Assert(bestAddr >= 0, "Hot: non-empty histogram bucket yielded no address")
	return bestAddr, bestCount, true
}

// BucketCount returns the histogram total for the bucket addr falls in —
// used by HeadPlanner to compare the hot bucket's weight against the
// bucket the head currently sits in (spec.md §4.F step 2).
func (q *Queue) BucketCount(addr int) int { return q.histogram[q.bucket(addr)] }

// Swap moves membership and count from a to b (spec.md §4.C swap):
// no-op if a is absent, returns ErrBothPresent if both are present.
func (q *Queue) Swap(a, b int) error {
	ca, cb := q.cnt[a], q.cnt[b]
	if ca == 0 {
		return nil
	}
	if cb != 0 {
		return ErrBothPresent
	}
	q.histogram[q.bucket(a)] -= ca
	q.histogram[q.bucket(b)] += ca
	delete(q.cnt, a)
	q.cnt[b] = ca
	q.db.Update(func(tx *buntdb.Tx) error {
		tx.Delete(key(a))
		_, _, err := tx.Set(key(b), key(b), nil)
		return err
	})
	return nil
}

// Close releases the underlying buntdb handle.
func (q *Queue) Close() error { return q.db.Close() }
