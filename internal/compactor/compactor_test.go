package compactor

import (
	"math/rand/v2"
	"testing"

	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/readqueue"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/tasktracker"
)

func TestCompactMovesOccupiedBlockTowardFront(t *testing.T) {
	d := disk.New(0, 10)
	// occupy cell 5 only, leave 0-4 free, inside a segment [0,10).
	d.WriteFrom(5, 0, 0)

	segs := segtable.New(1, rand.New(rand.NewPCG(1, 1)))
	seg := &segtable.Segment{Disk: 0, Start: 0, Tag: 0, Capacity: 10, Used: 1}
	segs.Add(seg)

	trackers := tasktracker.NewRegistry(4)
	trackers.NewObject(0, 1)

	queues := []*readqueue.Queue{readqueue.New(10), readqueue.New(10)}
	defer queues[0].Close()
	defer queues[1].Close()
	queues[0].Push(5)

	c := New([]*disk.Disk{d}, segs, trackers, queues, 1)
	records := c.Run(10)

	if len(records) != 1 || len(records[0]) != 1 {
		t.Fatalf("expected one swap record, got %v", records)
	}
	rec := records[0][0]
	if rec.From != 5 || rec.To != 0 {
		t.Fatalf("expected swap from=5 to=0, got %+v", rec)
	}
	if !d.IsFree(5) || d.IsFree(0) {
		t.Fatalf("expected cell 5 free and cell 0 occupied after swap")
	}
	if d.At(0).OID != 0 {
		t.Fatalf("expected oid 0 now at address 0, got %+v", d.At(0))
	}
	if queues[0].Count(0) != 1 || queues[0].Count(5) != 0 {
		t.Fatalf("expected queue membership moved from 5 to 0")
	}
}

func TestCompactRespectsBudget(t *testing.T) {
	d := disk.New(0, 10)
	d.WriteFrom(8, 1, 0)
	d.WriteFrom(9, 2, 0)

	segs := segtable.New(1, rand.New(rand.NewPCG(2, 2)))
	segs.Add(&segtable.Segment{Disk: 0, Start: 0, Tag: 0, Capacity: 10, Used: 2})

	trackers := tasktracker.NewRegistry(4)
	trackers.NewObject(1, 1)
	trackers.NewObject(2, 1)

	queues := []*readqueue.Queue{readqueue.New(10), readqueue.New(10)}
	defer queues[0].Close()
	defer queues[1].Close()

	c := New([]*disk.Disk{d}, segs, trackers, queues, 1)
	records := c.Run(1)
	if len(records[0]) != 1 {
		t.Fatalf("expected exactly 1 swap under budget 1, got %d", len(records[0]))
	}
}
