package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v3"
)

func TestWriteProducesLZ4FramedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.lz4")

	st := State{RunID: "abc", Step: 42, FreePerDisk: []int{1, 2}, Completed: 3}
	if err := Write(path, st); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var got State
	if err := jsonAPI.NewDecoder(lz4.NewReader(f)).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "abc" || got.Step != 42 || got.Completed != 3 {
		t.Fatalf("unexpected decoded state: %+v", got)
	}
}
