package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devenwen/callme-gate/internal/apierr"
	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/metrics"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/store"
)

func queueKey(workerVersion string) string { return "queue:" + workerVersion }
func doneChannel(requestID string) string  { return "jobdone:" + requestID }

// Worker is the App Worker of spec.md §5: it owns one queue
// (queue:<worker_version>), claims jobs off it, runs them through the
// registered Handler, and persists the result. Adapted from the teacher's
// jobs.Worker.Start ticker/claim loop, generalized to a BLPOP-fed,
// errgroup-bounded consumer pool instead of a single-goroutine ticker.
type Worker struct {
	log      *logger.Logger
	store    store.Store
	repo     *jobrepo.Repo
	registry *Registry
	routes   *routing.Registry
	metrics  *metrics.Collector

	version         string
	poolSize        int
	popTimeout      time.Duration
	heartbeatPeriod time.Duration
}

func New(
	log *logger.Logger,
	s store.Store,
	repo *jobrepo.Repo,
	registry *Registry,
	routes *routing.Registry,
	mc *metrics.Collector,
	version string,
	poolSize int,
	popTimeout, heartbeatPeriod time.Duration,
) *Worker {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Worker{
		log:             log.With("component", "Worker", "worker_version", version),
		store:           s,
		repo:            repo,
		registry:        registry,
		routes:          routes,
		metrics:         mc,
		version:         version,
		poolSize:        poolSize,
		popTimeout:      popTimeout,
		heartbeatPeriod: heartbeatPeriod,
	}
}

// AdvertiseRoutes registers every handler in the registry against the shared
// Route Registry, so Gate instances can discover this worker (spec.md §4.3).
func (w *Worker) AdvertiseRoutes(ctx context.Context) error {
	for _, h := range w.registry.Routes() {
		if err := w.routes.Register(ctx, w.version, h.Method(), h.Path()); err != nil {
			return fmt.Errorf("worker: advertise route %s %s: %w", h.Method(), h.Path(), err)
		}
	}
	return nil
}

// Run blocks, claiming and executing jobs until ctx is canceled. It starts a
// heartbeat goroutine and a bounded pool of claim/execute goroutines (via
// errgroup.SetLimit, the same bounding idiom the teacher uses for its
// step-level fan-out in internal/modules/chat/steps).
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.poolSize + 2)

	g.Go(func() error {
		w.heartbeatLoop(gctx)
		return nil
	})
	g.Go(func() error {
		w.queueDepthLoop(gctx)
		return nil
	})
	for i := 0; i < w.poolSize; i++ {
		g.Go(func() error {
			w.claimLoop(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.routes.Heartbeat(ctx, w.version, time.Now()); err != nil {
				w.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// queueDepthLoop samples this worker_version's queue length on the same
// cadence as the heartbeat, populating metrics.Collector.QueueDepth so it
// reflects real state rather than sitting at zero.
func (w *Worker) queueDepthLoop(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	ticker := time.NewTicker(w.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.store.QueueLen(ctx, queueKey(w.version))
			if err != nil {
				w.log.Warn("queue depth sample failed", "error", err)
				continue
			}
			w.metrics.QueueDepth.WithLabelValues(w.version).Set(float64(n))
		}
	}
}

func (w *Worker) claimLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		requestID, ok, err := w.store.QueuePopBlocking(ctx, queueKey(w.version), w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("queue pop failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		w.claimAndRun(ctx, requestID)
	}
}

func (w *Worker) claimAndRun(ctx context.Context, requestID string) {
	job, claimed, err := w.repo.TransitionToInProgress(ctx, requestID)
	if err != nil {
		w.log.Warn("claim failed", "request_id", requestID, "error", err)
		return
	}
	if !claimed {
		// Already claimed, expired, or deleted by the time we got to it;
		// another consumer (possibly in another process) won the race.
		return
	}
	if w.metrics != nil {
		w.metrics.JobsClaimedTotal.WithLabelValues(w.version).Inc()
	}

	jc := newContext(ctx, job, w.repo)
	start := time.Now()

	h, ok := w.registry.Get(job.Method, job.Path)
	if !ok {
		w.log.Warn("no handler registered", "method", job.Method, "path", job.Path, "request_id", requestID)
		_ = jc.Fail(string(apierr.HandlerFailure))
		w.notifyDone(ctx, requestID)
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("handler panic", "request_id", requestID, "panic", r)
				_ = jc.Fail(string(apierr.HandlerPanic))
				if w.metrics != nil {
					w.metrics.JobsFailedTotal.WithLabelValues(w.version, string(apierr.HandlerPanic)).Inc()
				}
			}
		}()
		if err := h.Handle(jc); err != nil {
			w.log.Warn("handler returned error", "request_id", requestID, "error", err)
			_ = jc.Fail(string(apierr.HandlerFailure))
			if w.metrics != nil {
				w.metrics.JobsFailedTotal.WithLabelValues(w.version, string(apierr.HandlerFailure)).Inc()
			}
			return
		}
		if jc.Job.Status == httpjob.StatusInProgress {
			// Handler returned nil without calling Succeed/Fail; treat as a
			// wiring bug rather than leaving the job stuck IN_PROGRESS.
			_ = jc.Fail(string(apierr.HandlerFailure))
			if w.metrics != nil {
				w.metrics.JobsFailedTotal.WithLabelValues(w.version, string(apierr.HandlerFailure)).Inc()
			}
			return
		}
		if w.metrics != nil {
			w.metrics.JobsCompletedTotal.WithLabelValues(w.version).Inc()
		}
	}()

	if w.metrics != nil {
		w.metrics.HandlerLatency.WithLabelValues(w.version).Observe(time.Since(start).Seconds())
	}
	w.notifyDone(ctx, requestID)
}

func (w *Worker) notifyDone(ctx context.Context, requestID string) {
	if err := w.store.Publish(ctx, doneChannel(requestID), "1"); err != nil {
		w.log.Warn("publish completion failed", "request_id", requestID, "error", err)
	}
}
