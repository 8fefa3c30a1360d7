package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/devenwen/callme-gate/internal/apierr"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/storetest"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeWorker drains a worker_version's queue in the background and replies
// with a fixed status/body, standing in for a real App Worker so Dispatch
// can be exercised without spinning up internal/worker.
func fakeWorker(t *testing.T, s *storetest.MemStore, jobs *jobrepo.Repo, version string, status int, body []byte) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			requestID, ok, err := s.QueuePopBlocking(ctx, "queue:"+version, 50*time.Millisecond)
			if err != nil {
				return
			}
			if !ok {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			job, claimed, err := jobs.TransitionToInProgress(ctx, requestID)
			if err != nil || !claimed {
				continue
			}
			_ = jobs.Complete(ctx, job, status, nil, body)
		}
	}()
	return cancel
}

func TestDispatchRoundTrip(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	reg := routing.NewRegistry(s)
	strategy := routing.NewRoundRobin(s)
	d := New(log, s, jobs, reg, strategy, nil, time.Second, 200*time.Millisecond)

	ctx := context.Background()
	if err := reg.Register(ctx, "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	stop := fakeWorker(t, s, jobs, "v1", 200, []byte("hello"))
	defer stop()

	resp, err := d.Dispatch(ctx, Request{Method: "GET", Path: "/widgets"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a request id")
	}
}

func TestDispatchNoRoute(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	reg := routing.NewRegistry(s)
	d := New(log, s, jobs, reg, routing.NewRoundRobin(s), nil, time.Second, 200*time.Millisecond)

	_, err := d.Dispatch(context.Background(), Request{Method: "GET", Path: "/nope"})
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T (%v)", err, err)
	}
	if apiErr.Tag != apierr.NoRoute {
		t.Fatalf("expected NoRoute, got %s", apiErr.Tag)
	}
}

func TestDispatchTimesOutWhenNoWorkerConsumes(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	reg := routing.NewRegistry(s)
	d := New(log, s, jobs, reg, routing.NewRoundRobin(s), nil, 60*time.Millisecond, 20*time.Millisecond)

	ctx := context.Background()
	if err := reg.Register(ctx, "v1", "GET", "/slow"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := d.Dispatch(ctx, Request{Method: "GET", Path: "/slow"})
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T (%v)", err, err)
	}
	if apiErr.Tag != apierr.DispatchTimeout {
		t.Fatalf("expected DispatchTimeout, got %s", apiErr.Tag)
	}
}

func TestDispatchVersionPinning(t *testing.T) {
	s := storetest.New()
	log := testLogger(t)
	jobs := jobrepo.New(s, time.Minute)
	reg := routing.NewRegistry(s)
	d := New(log, s, jobs, reg, routing.NewRoundRobin(s), nil, time.Second, 200*time.Millisecond)

	ctx := context.Background()
	if err := reg.Register(ctx, "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if err := reg.Register(ctx, "v2", "GET", "/widgets"); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	stopV2 := fakeWorker(t, s, jobs, "v2", 201, []byte("from-v2"))
	defer stopV2()

	resp, err := d.Dispatch(ctx, Request{
		Method:  "GET",
		Path:    "/widgets",
		Headers: map[string]string{routing.HeaderWorkerVersion: "v2"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != 201 || string(resp.Body) != "from-v2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
