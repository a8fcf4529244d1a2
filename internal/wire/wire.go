// Package wire implements the line-delimited text protocol the engine
// speaks over stdin/stdout (spec.md §6): startup handshake, per-step
// request batches, and per-step emission, translating between the wire's
// 1-based addressing and the engine's 0-based internal addressing.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aistore-sim/diskengine/internal/cmn"
	"github.com/aistore-sim/diskengine/internal/cmn/cos"
	"github.com/aistore-sim/diskengine/internal/compactor"
	"github.com/aistore-sim/diskengine/internal/dispatcher"
	"github.com/aistore-sim/diskengine/internal/placement"
	"github.com/aistore-sim/diskengine/internal/store"
)

// Conn wraps a buffered reader/writer pair over the engine's line
// protocol. Reads are line-oriented (fmt.Fscan over the underlying
// bufio.Reader); writes are flushed at the end of each per-step emission
// (Reader/Writer, not net.Conn: this is stdio framing, not a network
// transport).
type Conn struct {
	r *bufio.Reader
	w *bufio.Writer
}

// New wraps r/w for line-protocol framing.
func New(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

func (c *Conn) scanInts(n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		if _, err := fmt.Fscan(c.r, &out[i]); err != nil {
			return nil, errorf("scanInts: %w", err)
		}
	}
	return out, nil
}

func errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }

// ReadHeader reads the startup line `T M N V G K` followed by the three
// MxS offline-hint tables (delete, write, read; S = ceil(T/1800))
// (spec.md §4.H inputs, §6).
func (c *Conn) ReadHeader() (cmn.Config, placement.Hints, error) {
	var t, m, n, v, g, k int
	if _, err := fmt.Fscan(c.r, &t, &m, &n, &v, &g, &k); err != nil {
		return cmn.Config{}, placement.Hints{}, errorf("read header: %w", err)
	}
	cfg := cmn.Config{Steps: t, Tags: m, Disks: n, Capacity: v, Budget: g, SwapCap: k}
	s := cfg.Buckets()

	readTable := func() ([][]int, error) {
		tbl := make([][]int, m)
		for i := range tbl {
			row, err := c.scanInts(s)
			if err != nil {
				return nil, err
			}
			tbl[i] = row
		}
		return tbl, nil
	}

	del, err := readTable()
	if err != nil {
		return cmn.Config{}, placement.Hints{}, err
	}
	wr, err := readTable()
	if err != nil {
		return cmn.Config{}, placement.Hints{}, err
	}
	rd, err := readTable()
	if err != nil {
		return cmn.Config{}, placement.Hints{}, err
	}
	return cfg, placement.Hints{Delete: del, Write: wr, Read: rd}, nil
}

// WriteOK emits the handshake acknowledgement.
func (c *Conn) WriteOK() error {
	if _, err := fmt.Fprintln(c.w, "OK"); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadStep reads one step's TIMESTAMP line and the three request
// batches, converting wire-1-based addresses to 0-based (spec.md §6).
// writeIDs holds the raw wire-supplied (1-based) id of each write line,
// parallel to writes, for the caller to validate against the engine's
// own sequential object-id assignment after the step runs (the
// Dispatcher assigns ids itself; see internal/dispatcher's WriteReq doc
// comment and ReadObjID below).
func (c *Conn) ReadStep() (ts int, deletes []int, writes []dispatcher.WriteReq, writeIDs []int, reads []dispatcher.ReadReq, err error) {
	var tag string
	if _, err = fmt.Fscan(c.r, &tag, &ts); err != nil {
		return 0, nil, nil, nil, nil, errorf("read timestamp: %w", err)
	}
	if tag != "TIMESTAMP" {
		return 0, nil, nil, nil, nil, errorf("expected TIMESTAMP, got %q", tag)
	}

	var nDelete int
	if _, err = fmt.Fscan(c.r, &nDelete); err != nil {
		return 0, nil, nil, nil, nil, errorf("read n_delete: %w", err)
	}
	deletes = make([]int, nDelete)
	for i := range deletes {
		var id int
		if _, err = fmt.Fscan(c.r, &id); err != nil {
			return 0, nil, nil, nil, nil, errorf("read delete id: %w", err)
		}
		deletes[i] = id - 1 // object id: wire 1-based -> 0-based, as the Dispatcher indexes the arena
	}

	var nWrite int
	if _, err = fmt.Fscan(c.r, &nWrite); err != nil {
		return 0, nil, nil, nil, nil, errorf("read n_write: %w", err)
	}
	writes = make([]dispatcher.WriteReq, nWrite)
	writeIDs = make([]int, nWrite)
	for i := range writes {
		var id, size, tagID int
		if _, err = fmt.Fscan(c.r, &id, &size, &tagID); err != nil {
			return 0, nil, nil, nil, nil, errorf("read write line: %w", err)
		}
		writes[i] = dispatcher.WriteReq{Size: size, Tag: tagID}
		writeIDs[i] = id
	}

	var nRead int
	if _, err = fmt.Fscan(c.r, &nRead); err != nil {
		return 0, nil, nil, nil, nil, errorf("read n_read: %w", err)
	}
	reads = make([]dispatcher.ReadReq, nRead)
	for i := range reads {
		var reqID, objID int
		if _, err = fmt.Fscan(c.r, &reqID, &objID); err != nil {
			return 0, nil, nil, nil, nil, errorf("read read line: %w", err)
		}
		reads[i] = dispatcher.ReadReq{ReqID: reqID, ObjID: objID - 1}
	}
	return ts, deletes, writes, writeIDs, reads, nil
}

// WriteStep emits one step's full output in order (spec.md §6
// "Per-step emission"), 0-based internal state translated back to
// 1-based wire ids/addresses.
func (c *Conn) WriteStep(ts int, out dispatcher.StepOutput) error {
	fmt.Fprintf(c.w, "TIMESTAMP %d\n", ts)

	fmt.Fprintln(c.w, len(out.DeleteCancelled))
	for _, id := range out.DeleteCancelled {
		fmt.Fprintln(c.w, id)
	}

	for _, obj := range out.NewObjects {
		fmt.Fprintln(c.w, obj.OID+1)
		for r := 0; r < store.NumReplicas; r++ {
			rep := obj.Replicas[r]
			fmt.Fprint(c.w, rep.Disk+1)
			for _, b := range rep.Blocks {
				fmt.Fprintf(c.w, " %d", b+1)
			}
			fmt.Fprintln(c.w)
		}
	}

	for _, ops := range out.HeadOps {
		fmt.Fprintln(c.w, translateJump(ops))
	}

	fmt.Fprintln(c.w, len(out.Completed))
	for _, id := range out.Completed {
		fmt.Fprintln(c.w, id)
	}

	fmt.Fprintln(c.w, len(out.Stale))
	for _, id := range out.Stale {
		fmt.Fprintln(c.w, id)
	}

	if out.Swaps != nil {
		for _, perDisk := range out.Swaps {
			fmt.Fprintln(c.w, len(perDisk))
			for _, sw := range perDisk {
				writeSwap(c.w, sw)
			}
		}
	}

	return c.w.Flush()
}

func writeSwap(w *bufio.Writer, sw compactor.SwapRecord) {
	fmt.Fprintf(w, "%d %d\n", sw.From+1, sw.To+1)
}

// translateJump rewrites a HeadPlanner op string's embedded 0-based jump
// address to 1-based, leaving the `r`/`p`/`#` alphabet untouched (spec.md
// §6 "All addresses and ids are 1-based on the wire, 0-based internally",
// internal/headplanner's doc comment: "internal/wire bumps addresses by
// one when writing the wire line").
func translateJump(ops string) string {
	if !strings.HasPrefix(ops, "j") {
		return ops
	}
	body := strings.TrimSuffix(strings.TrimPrefix(ops, "j"), "#")
	addr, err := strconv.Atoi(body)
	if err != nil {
		return ops
	}
	return "j" + strconv.Itoa(addr+1) + "#"
}

// ReadObjID validates a wire-supplied (1-based) write-batch id against
// the engine's own sequential assignment, per spec.md §6's "n_write lines
// of id size tag": the dispatcher never consumes this id itself, but a
// desynced caller is a protocol error worth surfacing distinctly from a
// silently-ignored invalid request.
func ReadObjID(wireID, assignedOID int) error {
	if wireID-1 != assignedOID {
		return cos.WrapProtocolDesync(assignedOID, wireID-1)
	}
	return nil
}
