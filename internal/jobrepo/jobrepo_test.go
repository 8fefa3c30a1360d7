package jobrepo

import (
	"context"
	"testing"
	"time"

	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/storetest"
)

func TestTransitionToInProgressClaimsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := New(storetest.New(), time.Minute)

	job := &httpjob.HttpJob{RequestID: "req-1", Method: "GET", Path: "/x", Status: httpjob.StatusPending}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, claimed1, err := repo.TransitionToInProgress(ctx, "req-1")
	if err != nil {
		t.Fatalf("Transition #1: %v", err)
	}
	if !claimed1 {
		t.Fatalf("Transition #1: expected claimed=true")
	}

	_, claimed2, err := repo.TransitionToInProgress(ctx, "req-1")
	if err != nil {
		t.Fatalf("Transition #2: %v", err)
	}
	if claimed2 {
		t.Fatalf("Transition #2: expected claimed=false, job already IN_PROGRESS")
	}
}

func TestGetUnknownJobReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo := New(storetest.New(), time.Minute)

	job, err := repo.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job != nil {
		t.Fatalf("Get: expected nil, got %+v", job)
	}
}

func TestCompleteSetsTerminalStatus(t *testing.T) {
	ctx := context.Background()
	repo := New(storetest.New(), time.Minute)

	job := &httpjob.HttpJob{RequestID: "req-2", Status: httpjob.StatusInProgress}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Complete(ctx, job, 200, nil, []byte("ok")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	loaded, err := repo.Get(ctx, "req-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Status != httpjob.StatusCompleted || loaded.ResponseStatus != 200 {
		t.Fatalf("unexpected job state: %+v", loaded)
	}
}

func TestExpireFromAnyState(t *testing.T) {
	ctx := context.Background()
	repo := New(storetest.New(), time.Minute)

	job := &httpjob.HttpJob{RequestID: "req-3", Status: httpjob.StatusInProgress}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Expire(ctx, "req-3"); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	loaded, err := repo.Get(ctx, "req-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Status != httpjob.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", loaded.Status)
	}
}
