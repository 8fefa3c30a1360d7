package worker

import (
	"context"
	"testing"
	"time"

	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/storetest"
)

type echoHandler struct{}

func (echoHandler) Method() string { return "POST" }
func (echoHandler) Path() string   { return "/echo" }
func (echoHandler) Handle(ctx *Context) error {
	return ctx.Succeed(200, nil, ctx.Body())
}

type panickyHandler struct{}

func (panickyHandler) Method() string { return "GET" }
func (panickyHandler) Path() string   { return "/boom" }
func (panickyHandler) Handle(ctx *Context) error {
	panic("kaboom")
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestWorkerClaimsAndCompletesJob(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	registry := NewRegistry()
	if err := registry.Register(echoHandler{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	routes := routing.NewRegistry(s)

	w := New(log, s, jobs, registry, routes, nil, "v1", 1, 10*time.Millisecond, time.Hour)

	job := &httpjob.HttpJob{RequestID: "req-1", Method: "POST", Path: "/echo", Body: []byte("hi"), TargetWorker: "v1", Status: httpjob.StatusPending}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.QueuePush(context.Background(), "queue:v1", "req-1"); err != nil {
		t.Fatalf("QueuePush: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := jobs.Get(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil && got.Status == httpjob.StatusCompleted {
			if string(got.ResponseBody) != "hi" {
				t.Fatalf("ResponseBody = %q, want %q", got.ResponseBody, "hi")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached COMPLETED")
}

func TestWorkerRecoversFromHandlerPanic(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	registry := NewRegistry()
	if err := registry.Register(panickyHandler{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	routes := routing.NewRegistry(s)

	w := New(log, s, jobs, registry, routes, nil, "v1", 1, 10*time.Millisecond, time.Hour)

	job := &httpjob.HttpJob{RequestID: "req-2", Method: "GET", Path: "/boom", TargetWorker: "v1", Status: httpjob.StatusPending}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.QueuePush(context.Background(), "queue:v1", "req-2"); err != nil {
		t.Fatalf("QueuePush: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := jobs.Get(context.Background(), "req-2")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil && got.Status == httpjob.StatusFailed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached FAILED after handler panic")
}

func TestAdvertiseRoutesRegistersEveryHandler(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	registry := NewRegistry()
	if err := registry.Register(echoHandler{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	routes := routing.NewRegistry(s)
	w := New(log, s, jobs, registry, routes, nil, "v1", 1, time.Second, time.Hour)

	if err := w.AdvertiseRoutes(context.Background()); err != nil {
		t.Fatalf("AdvertiseRoutes: %v", err)
	}

	candidates, err := routes.Match(context.Background(), "POST", "/echo")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "v1" {
		t.Fatalf("Match: expected [v1], got %v", candidates)
	}
}
