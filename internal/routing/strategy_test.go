package routing

import (
	"context"
	"testing"

	"github.com/devenwen/callme-gate/internal/storetest"
)

func TestRoundRobinDistributesAcrossCandidates(t *testing.T) {
	ctx := context.Background()
	rr := NewRoundRobin(storetest.New())
	candidates := []string{"v2", "v1"}

	counts := map[string]int{}
	const n = 100
	for i := 0; i < n; i++ {
		chosen, err := rr.Choose(ctx, "GET", "/widgets", candidates)
		if err != nil {
			t.Fatalf("Choose #%d: %v", i, err)
		}
		counts[chosen]++
	}

	for _, c := range candidates {
		if got := counts[c]; got < n/2-2 || got > n/2+2 {
			t.Fatalf("candidate %s got %d of %d dispatches, want close to %d", c, got, n, n/2)
		}
	}
}

func TestRoundRobinIsStableAcrossInstances(t *testing.T) {
	ctx := context.Background()
	s := storetest.New()
	candidates := []string{"v1", "v2"}

	a := NewRoundRobin(s)
	b := NewRoundRobin(s)

	first, err := a.Choose(ctx, "GET", "/widgets", candidates)
	if err != nil {
		t.Fatalf("a.Choose: %v", err)
	}
	second, err := b.Choose(ctx, "GET", "/widgets", candidates)
	if err != nil {
		t.Fatalf("b.Choose: %v", err)
	}
	if first == second {
		t.Fatalf("expected two independent Strategy instances sharing a store to alternate, got %s twice", first)
	}
}

func TestVersionPinnedRestrictsCandidates(t *testing.T) {
	ctx := context.Background()
	vp := NewVersionPinned("v2", NewRandom())

	chosen, err := vp.Choose(ctx, "GET", "/widgets", []string{"v1", "v2", "v3"})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if chosen != "v2" {
		t.Fatalf("expected pinned v2, got %s", chosen)
	}
}

func TestVersionPinnedNoCandidateWhenPinnedVersionAbsent(t *testing.T) {
	ctx := context.Background()
	vp := NewVersionPinned("v9", NewRandom())

	if _, err := vp.Choose(ctx, "GET", "/widgets", []string{"v1", "v2"}); err != ErrNoCandidate {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
}
