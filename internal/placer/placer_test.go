package placer

import (
	"math/rand/v2"
	"testing"

	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/store"
)

func newFixture(numDisks, capacity int) ([]*disk.Disk, *segtable.Table, *store.Arena) {
	disks := make([]*disk.Disk, numDisks)
	for i := range disks {
		disks[i] = disk.New(i, capacity)
	}
	rng := rand.New(rand.NewPCG(1, 1))
	segs := segtable.New(1, rng)
	arena := store.NewArena(16)
	return disks, segs, arena
}

func TestSegmentFitPlacesAllBlocks(t *testing.T) {
	disks, segs, arena := newFixture(3, 20)
	segs.Add(&segtable.Segment{Disk: 0, Start: 0, Tag: 0, Capacity: 10})
	tagDiskOrder := [][]int{{0, 1, 2}}
	rng := rand.New(rand.NewPCG(5, 5))
	p := New(disks, segs, arena, rng, tagDiskOrder, true)

	oid := arena.Insert(0, 3)
	if !p.Insert(oid, 0) {
		t.Fatalf("expected segment-fit insert to succeed")
	}
	obj, _ := arena.Get(oid)
	if obj.Replica[0].Disk != 0 {
		t.Fatalf("expected replica on disk 0, got %d", obj.Replica[0].Disk)
	}
	if len(obj.Replica[0].Blocks) != 3 {
		t.Fatalf("expected 3 blocks placed, got %d", len(obj.Replica[0].Blocks))
	}
}

func TestReplicasLandOnDistinctDisks(t *testing.T) {
	disks, segs, arena := newFixture(3, 20)
	tagDiskOrder := [][]int{{}}
	rng := rand.New(rand.NewPCG(2, 2))
	p := New(disks, segs, arena, rng, tagDiskOrder, false)

	oid := arena.Insert(0, 2)
	for r := 0; r < store.NumReplicas; r++ {
		if !p.Insert(oid, r) {
			t.Fatalf("expected block-fit insert for replica %d to succeed", r)
		}
	}
	obj, _ := arena.Get(oid)
	seen := map[int]bool{}
	for r := 0; r < store.NumReplicas; r++ {
		d := obj.Replica[r].Disk
		if seen[d] {
			t.Fatalf("expected distinct disks across replicas, saw %d twice", d)
		}
		seen[d] = true
	}
}

func TestBlockFitFailsWhenDisksFull(t *testing.T) {
	disks, segs, arena := newFixture(2, 1) // only 1 cell per disk
	tagDiskOrder := [][]int{{}}
	rng := rand.New(rand.NewPCG(3, 3))
	p := New(disks, segs, arena, rng, tagDiskOrder, false)

	oid := arena.Insert(0, 2) // needs 2 blocks, no single disk has room
	if p.Insert(oid, 0) {
		t.Fatalf("expected insert to fail: no disk has 2 free cells")
	}
}

func TestRotationDecorrelatesConsecutiveObjects(t *testing.T) {
	disks, segs, arena := newFixture(4, 20)
	rng := rand.New(rand.NewPCG(9, 9))
	p := New(disks, segs, arena, rng, [][]int{{}}, false)
	offsets := map[int]bool{}
	for oid := 0; oid < 8; oid++ {
		offsets[p.rotation(oid, 4)] = true
	}
	if len(offsets) < 2 {
		t.Fatalf("expected rotation to vary across object ids, got only %v", offsets)
	}
}
