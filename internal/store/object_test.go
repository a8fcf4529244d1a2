package store

import "testing"

func TestArenaInsertDelete(t *testing.T) {
	a := NewArena(16)
	oid := a.Insert(2, 4)
	if oid != 0 {
		t.Fatalf("expected first object id 0, got %d", oid)
	}
	a.SetReplica(oid, 0, 1, []int{3, 4, 5, 6})
	o, ok := a.Get(oid)
	if !ok || !o.Valid {
		t.Fatalf("expected valid object, got %+v ok=%v", o, ok)
	}
	if o.Replica[0].Disk != 1 || len(o.Replica[0].Blocks) != 4 {
		t.Fatalf("replica not recorded: %+v", o.Replica[0])
	}

	a.Delete(oid)
	if a.IsValid(oid) {
		t.Fatalf("expected object invalid after delete")
	}
	// historical lookup still works
	o, ok = a.Get(oid)
	if !ok || o.Replica[0].Disk != 1 {
		t.Fatalf("expected historical record retained")
	}
}

func TestArenaUnknownID(t *testing.T) {
	a := NewArena(4)
	if _, ok := a.Get(5); ok {
		t.Fatalf("expected unknown id to miss")
	}
	if a.IsValid(5) {
		t.Fatalf("expected unknown id invalid")
	}
}
