// Package dispatch implements the Job Dispatcher, the Gate-side half of
// spec.md §4.5: create an HttpJob, enqueue it on the target worker's queue,
// and poll for completion within a deadline. Grounded on the teacher's
// request lifecycle in internal/http/server.go (span-per-request) and
// internal/jobs.Worker's claim loop, mirrored here for the producer side.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devenwen/callme-gate/internal/apierr"
	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/metrics"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/store"
)

var tracer = otel.Tracer("callme-gate/dispatch")

func queueKey(workerVersion string) string { return "queue:" + workerVersion }

// pollBackoff mirrors spec.md §4.5's exponential backoff: start at 20ms,
// double, cap at 200ms.
var (
	pollStart = 20 * time.Millisecond
	pollCap   = 200 * time.Millisecond
)

// Request is the inbound HTTP request as seen by the Gate, already decoded
// out of gin/net-http into a transport-agnostic shape.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
}

// Response is what the Dispatcher hands back to the HTTP layer to write out.
type Response struct {
	RequestID string
	Status    int
	Headers   map[string]string
	Body      []byte
}

type Dispatcher struct {
	log      *logger.Logger
	store    store.Store
	jobs     *jobrepo.Repo
	registry *routing.Registry
	strategy routing.Strategy
	metrics  *metrics.Collector

	deadline       time.Duration
	stuckThreshold time.Duration
}

func New(
	log *logger.Logger,
	s store.Store,
	jobs *jobrepo.Repo,
	registry *routing.Registry,
	strategy routing.Strategy,
	mc *metrics.Collector,
	deadline, stuckThreshold time.Duration,
) *Dispatcher {
	return &Dispatcher{
		log:            log.With("component", "Dispatcher"),
		store:          s,
		jobs:           jobs,
		registry:       registry,
		strategy:       strategy,
		metrics:        mc,
		deadline:       deadline,
		stuckThreshold: stuckThreshold,
	}
}

// Dispatch runs spec.md §4.5's algorithm end to end: match candidates,
// choose a worker, enqueue, poll for completion, and return its result (or
// an *apierr.Error on failure).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gate.dispatch", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	))
	defer span.End()

	start := time.Now()
	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("request_id", requestID))

	candidates, err := d.registry.Match(ctx, req.Method, req.Path)
	if err != nil {
		d.observe(req, "error")
		return nil, apierr.New(apierr.StoreUnavailable, fmt.Errorf("dispatch: match route: %w", err))
	}
	if len(candidates) == 0 {
		d.observe(req, string(apierr.NoRoute))
		return nil, apierr.New(apierr.NoRoute, fmt.Errorf("no route registered for %s %s", req.Method, req.Path))
	}

	pinned := req.Headers[routing.HeaderWorkerVersion]
	strategy := d.strategy
	if pinned != "" {
		strategy = routing.NewVersionPinned(pinned, d.strategy)
	}
	target, err := strategy.Choose(ctx, req.Method, req.Path, candidates)
	if err != nil {
		d.observe(req, string(apierr.NoCandidate))
		return nil, apierr.New(apierr.NoCandidate, fmt.Errorf("dispatch: choose worker: %w", err))
	}
	span.SetAttributes(attribute.String("worker_version", target))

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[httpjob.HeaderJobDeadline] = strconv.FormatInt(start.Add(d.deadline).UnixMilli(), 10)

	job := &httpjob.HttpJob{
		RequestID:    requestID,
		Method:       req.Method,
		Path:         req.Path,
		Query:        req.Query,
		Headers:      headers,
		Body:         req.Body,
		TargetWorker: target,
		Status:       httpjob.StatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		d.observe(req, "error")
		return nil, apierr.New(apierr.StoreUnavailable, fmt.Errorf("dispatch: persist job: %w", err))
	}

	if err := d.enqueue(ctx, target, requestID); err != nil {
		d.observe(req, "error")
		return nil, apierr.New(apierr.StoreUnavailable, err)
	}

	resp, err := d.await(ctx, req, requestID, start)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, target, requestID string) error {
	ctx, span := tracer.Start(ctx, "gate.dispatch.enqueue")
	defer span.End()
	if err := d.store.QueuePush(ctx, queueKey(target), requestID); err != nil {
		return fmt.Errorf("dispatch: enqueue: %w", err)
	}
	return nil
}

// await polls jobrepo with exponential backoff until the job reaches a
// terminal state or the deadline elapses; on timeout or caller cancellation
// it marks the job EXPIRED. While polling, a job still PENDING past the
// stuck threshold is redispatched once to a different candidate; the worker
// that never claimed it is not removed from the route's candidate set.
func (d *Dispatcher) await(ctx context.Context, req Request, requestID string, start time.Time) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gate.dispatch.await")
	defer span.End()

	deadline := start.Add(d.deadline)
	backoff := pollStart
	redispatched := false

	for {
		job, err := d.jobs.Get(ctx, requestID)
		if err != nil {
			d.observe(req, "error")
			return nil, apierr.New(apierr.StoreUnavailable, fmt.Errorf("dispatch: poll: %w", err))
		}
		if job != nil {
			switch job.Status {
			case httpjob.StatusCompleted:
				d.recordLatency(req, start)
				d.observe(req, "completed")
				return &Response{RequestID: requestID, Status: job.ResponseStatus, Headers: job.ResponseHeaders, Body: job.ResponseBody}, nil
			case httpjob.StatusFailed:
				d.observe(req, "failed")
				tag := apierr.HandlerFailure
				if job.Error == string(apierr.HandlerPanic) {
					tag = apierr.HandlerPanic
				}
				return nil, apierr.New(tag, fmt.Errorf("handler failed: %s", job.Error))
			case httpjob.StatusExpired:
				d.observe(req, string(apierr.DispatchTimeout))
				return nil, apierr.New(apierr.DispatchTimeout, fmt.Errorf("job expired before completion"))
			}

			if !redispatched && job.Status == httpjob.StatusPending &&
				time.Since(job.CreatedAt) > d.stuckThreshold {
				if alt, err := d.redispatchOnce(ctx, req, job); err == nil && alt {
					redispatched = true
				}
			}
		}

		if time.Now().After(deadline) {
			if d.metrics != nil {
				d.metrics.DispatchTimeouts.Inc()
			}
			_ = d.jobs.Expire(ctx, requestID)
			d.observe(req, string(apierr.DispatchTimeout))
			return nil, apierr.New(apierr.DispatchTimeout, fmt.Errorf("dispatch: deadline exceeded"))
		}

		select {
		case <-ctx.Done():
			_ = d.jobs.Expire(context.WithoutCancel(ctx), requestID)
			d.observe(req, string(apierr.DispatchTimeout))
			return nil, apierr.New(apierr.DispatchTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > pollCap {
			backoff = pollCap
		}
	}
}

// redispatchOnce retargets a job stuck PENDING past the stuck threshold at a
// different candidate worker, the mitigation spec.md §4.6 prescribes for a
// worker that registered a route but has since died without deregistering.
func (d *Dispatcher) redispatchOnce(ctx context.Context, req Request, job *httpjob.HttpJob) (bool, error) {
	candidates, err := d.registry.Match(ctx, req.Method, req.Path)
	if err != nil || len(candidates) == 0 {
		return false, err
	}
	var alt string
	for _, c := range candidates {
		if c != job.TargetWorker {
			alt = c
			break
		}
	}
	if alt == "" {
		return false, nil
	}
	d.log.Warn("redispatching stuck job", "request_id", job.RequestID, "from", job.TargetWorker, "to", alt)
	job.TargetWorker = alt
	if err := d.jobs.Create(ctx, job); err != nil {
		return false, err
	}
	if err := d.enqueue(ctx, alt, job.RequestID); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) observe(req Request, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.DispatchTotal.WithLabelValues(outcome).Inc()
}

func (d *Dispatcher) recordLatency(req Request, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.DispatchLatency.WithLabelValues(req.Method, req.Path).Observe(time.Since(start).Seconds())
}
