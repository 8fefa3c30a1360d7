package routing

import (
	"context"
	"testing"

	"github.com/devenwen/callme-gate/internal/storetest"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(storetest.New())

	for i := 0; i < 3; i++ {
		if err := reg.Register(ctx, "v1", "GET", "/widgets"); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
	}

	candidates, err := reg.Match(ctx, "GET", "/widgets")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "v1" {
		t.Fatalf("Match: expected [v1], got %v", candidates)
	}
}

func TestRegistryMatchIsCaseInsensitiveOnMethod(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(storetest.New())

	if err := reg.Register(ctx, "v1", "get", "/widgets"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	candidates, err := reg.Match(ctx, "GET", "/widgets")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Match: expected 1 candidate, got %v", candidates)
	}
}

func TestRegistryDeregisterRemovesOnlyThatWorker(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(storetest.New())

	if err := reg.Register(ctx, "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if err := reg.Register(ctx, "v2", "GET", "/widgets"); err != nil {
		t.Fatalf("Register v2: %v", err)
	}

	if err := reg.Deregister(ctx, "v1"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	candidates, err := reg.Match(ctx, "GET", "/widgets")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "v2" {
		t.Fatalf("Match: expected [v2], got %v", candidates)
	}

	all, err := reg.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListAll: expected 1 route, got %d", len(all))
	}
}

func TestRegistryDeregisterLastWorkerDropsRouteFromIndex(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(storetest.New())

	if err := reg.Register(ctx, "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Deregister(ctx, "v1"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	all, err := reg.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ListAll: expected no routes, got %v", all)
	}
}

func TestRegistryMatchUnknownRouteIsEmpty(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(storetest.New())

	candidates, err := reg.Match(ctx, "GET", "/missing")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("Match: expected no candidates, got %v", candidates)
	}
}
