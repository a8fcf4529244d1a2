package optimizer

import (
	"math/rand/v2"
	"testing"
)

func TestOptimizeRespectsPerDiskCapacity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	opt := NewSimulatedAnnealing(rng)
	opt.MaxIter = 200
	m, n, v := 2, 3, 10
	r := []int{15, 15}
	alpha := [][]float64{{0, 1}, {1, 0}}

	alloc := opt.Optimize(m, n, v, v/m, r, alpha)
	for d := 0; d < n; d++ {
		total := 0
		for tg := 0; tg < m; tg++ {
			total += alloc[tg][d]
		}
		if total > v {
			t.Fatalf("disk %d over capacity: total=%d > v=%d", d, total, v)
		}
	}
}

func TestOptimizePreservesTotalBudget(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	opt := NewSimulatedAnnealing(rng)
	opt.MaxIter = 100
	m, n, v := 2, 2, 10
	r := []int{12, 8}
	alpha := [][]float64{{0, 0.5}, {0.5, 0}}

	alloc := opt.Optimize(m, n, v, v/m, r, alpha)
	for tg := 0; tg < m; tg++ {
		total := 0
		for d := 0; d < n; d++ {
			total += alloc[tg][d]
		}
		if total != r[tg] {
			t.Fatalf("tag %d: expected total %d, got %d (annealing only transfers between disks)", tg, r[tg], total)
		}
	}
}
