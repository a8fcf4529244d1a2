// Package snapshot writes lz4-compressed JSON dumps of aggregate engine
// state, opt-in via the `--snapshot path` CLI flag (SPEC_FULL.md
// "Debug/operational surface"): a debugging/test-fixture aid, never read
// back by the engine itself (spec.md §6 "Persisted state: none" still
// holds for the simulation's actual state).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package snapshot

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"

	"github.com/aistore-sim/diskengine/internal/cmn/nlog"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// State is one point-in-time aggregate snapshot of engine-wide counters,
// deliberately coarse (per-disk/per-head totals, not full cell arrays):
// a dump for diffing behaviour across runs, not a restorable save file.
type State struct {
	RunID           string `json:"run_id"`
	Step            int    `json:"step"`
	FreePerDisk     []int  `json:"free_per_disk"`
	QueueLenPerHead []int  `json:"queue_len_per_head"`
	Completed       int    `json:"completed_total"`
	Stale           int    `json:"stale_total"`
	Swaps           int    `json:"swaps_total"`
}

// Write JSON-encodes st and writes it lz4-compressed to path, overwriting
// any existing file.
func Write(path string, st State) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	defer zw.Close()

	data, err := jsonAPI.Marshal(st)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	nlog.Infof("snapshot: wrote %s at step %d", path, st.Step)
	return nil
}
