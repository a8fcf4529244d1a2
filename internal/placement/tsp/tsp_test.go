package tsp

import "testing"

func TestSolveSingleAndEmpty(t *testing.T) {
	s := New()
	if got := s.Solve(0, nil); len(got) != 0 {
		t.Fatalf("expected empty path for n=0, got %v", got)
	}
	if got := s.Solve(1, [][]float64{{0}}); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected [0] for n=1, got %v", got)
	}
}

func TestSolveReturnsPermutation(t *testing.T) {
	s := New()
	n := 4
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i != j {
				dist[i][j] = float64((i + j) % 3)
			}
		}
	}
	path := s.Solve(n, dist)
	if len(path) != n {
		t.Fatalf("expected path of length %d, got %d (%v)", n, len(path), path)
	}
	seen := make(map[int]bool, n)
	for _, c := range path {
		if c < 0 || c >= n || seen[c] {
			t.Fatalf("expected a permutation of [0,%d), got %v", n, path)
		}
		seen[c] = true
	}
}

func TestSolvePrefersHighAffinityAdjacency(t *testing.T) {
	s := New()
	n := 3
	// 0-1 strongly affine, 2 isolated: best adjacency sum should place 0,1 together.
	dist := [][]float64{
		{0, 10, 0},
		{10, 0, 0},
		{0, 0, 0},
	}
	path := s.Solve(n, dist)
	adj01 := false
	for k := 0; k < len(path)-1; k++ {
		a, b := path[k], path[k+1]
		if (a == 0 && b == 1) || (a == 1 && b == 0) {
			adj01 = true
		}
	}
	if !adj01 {
		t.Fatalf("expected tags 0 and 1 adjacent in %v", path)
	}
}
