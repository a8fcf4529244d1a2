package dispatcher

import (
	"math/rand/v2"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aistore-sim/diskengine/internal/cmn"
	"github.com/aistore-sim/diskengine/internal/disk"
	"github.com/aistore-sim/diskengine/internal/headplanner"
	"github.com/aistore-sim/diskengine/internal/placer"
	"github.com/aistore-sim/diskengine/internal/readqueue"
	"github.com/aistore-sim/diskengine/internal/segtable"
	"github.com/aistore-sim/diskengine/internal/stats"
	"github.com/aistore-sim/diskengine/internal/store"
	"github.com/aistore-sim/diskengine/internal/tasktracker"
)

// harness builds a minimal, fully-wired Dispatcher over N disks of
// capacity V, with an empty tag-disk order (so the Placer's segment
// fit never engages and every write falls through to block fit) and no
// pre-existing segments, letting each scenario drive placement and
// reads directly against a known disk layout.
func harness(numDisks, capacity, budget int) (*Dispatcher, cmn.Config) {
	cfg := cmn.Config{
		Steps:    10000,
		Tags:     1,
		Disks:    numDisks,
		Capacity: capacity,
		Budget:   budget,
		SwapCap:  0,
		Seed:     1,
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	disks := make([]*disk.Disk, numDisks)
	for i := range disks {
		disks[i] = disk.New(i, capacity)
	}
	segs := segtable.New(cfg.Tags, rng)
	queues := make([]*readqueue.Queue, 2*numDisks)
	for i := range queues {
		queues[i] = readqueue.New(capacity)
	}
	trackers := tasktracker.NewRegistry(cfg.Steps)
	arena := store.NewArena(cfg.Steps)
	pl := placer.New(disks, segs, arena, rng, make([][]int, cfg.Tags), false)
	planner := headplanner.New(cmn.Fetch, cmn.JumpThreshold)
	st := stats.New(prometheus.NewRegistry())

	d := New(cfg, disks, segs, queues, trackers, arena, pl, planner, rng, st)
	return d, cfg
}

var _ = Describe("Dispatcher", func() {
	It("round-trips a single-block object: write then read completes the request", func() {
		d, _ := harness(3, 20, 1000)

		out, err := d.Step(0, nil, []WriteReq{{Size: 1, Tag: 0}}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.NewObjects).To(HaveLen(1))
		oid := out.NewObjects[0].OID
		Expect(oid).To(Equal(0))

		out, err = d.Step(1, nil, nil, []ReadReq{{ReqID: 7, ObjID: oid}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Completed).To(ContainElement(7))
	})

	It("rejects a step whose echoed timestamp disagrees with the step counter", func() {
		d, _ := harness(1, 10, 100)
		_, err := d.Step(5, nil, nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("silently ignores a delete of an already-deleted or unknown object", func() {
		d, _ := harness(1, 10, 100)
		out, err := d.Step(0, []int{42}, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.DeleteCancelled).To(BeEmpty())
	})

	It("cancels outstanding reads against an object deleted mid-flight", func() {
		d, _ := harness(3, 20, 0) // zero budget: heads never advance, reads stay outstanding

		out, err := d.Step(0, nil, []WriteReq{{Size: 1, Tag: 0}}, nil)
		Expect(err).NotTo(HaveOccurred())
		oid := out.NewObjects[0].OID

		out, err = d.Step(1, nil, nil, []ReadReq{{ReqID: 3, ObjID: oid}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Completed).To(BeEmpty()) // budget 0: no head can afford a read this step

		out, err = d.Step(2, []int{oid}, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.DeleteCancelled).To(ContainElement(3))
	})

	It("evicts a read as stale once its deadline passes and never double-reports it", func() {
		d, _ := harness(3, 20, 0) // zero budget keeps the task pending past the window

		out, err := d.Step(0, nil, []WriteReq{{Size: 1, Tag: 0}}, nil)
		Expect(err).NotTo(HaveOccurred())
		oid := out.NewObjects[0].OID

		_, err = d.Step(1, nil, nil, []ReadReq{{ReqID: 9, ObjID: oid}})
		Expect(err).NotTo(HaveOccurred())

		var sawStale bool
		ts := 2
		for ; ts <= cmn.StaleWindow+2; ts++ {
			out, err = d.Step(ts, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			if len(out.Stale) > 0 {
				Expect(out.Stale).To(ContainElement(9))
				sawStale = true
				break
			}
		}
		Expect(sawStale).To(BeTrue())

		// the stale eviction must not surface request id 9 a second time.
		out, err = d.Step(ts+1, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Stale).NotTo(ContainElement(9))
	})

	It("assigns even and odd request ids for the same object to different heads", func() {
		d, _ := harness(3, 20, 1000)

		out, err := d.Step(0, nil, []WriteReq{{Size: 1, Tag: 0}}, nil)
		Expect(err).NotTo(HaveOccurred())
		rep0Disk := out.NewObjects[0].Replicas[0].Disk

		evenHead := d.assignedHead(2, rep0Disk)
		oddHead := d.assignedHead(3, rep0Disk)
		Expect(evenHead).To(Equal(rep0Disk))
		Expect(oddHead).To(Equal(rep0Disk + d.cfg.Disks))
		Expect(evenHead).NotTo(Equal(oddHead))
	})

	It("reports capacity exhaustion when fewer than 3 disks can hold a replica each", func() {
		d, _ := harness(2, 4, 100) // only 2 disks: a 3-replica object can never place

		_, err := d.Step(0, nil, []WriteReq{{Size: 1, Tag: 0}}, nil)
		Expect(err).To(HaveOccurred())
	})
})
