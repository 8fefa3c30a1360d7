// Package jobrepo persists HttpJobs in the shared store (spec.md §4.2). Each
// job is stored whole, as JSON under a single "blob" field of a hash at
// httpjob:<request_id>; status transitions read that field, mutate the job,
// and write it back with one HashSetField call, since HttpJob's fields are
// never written by more than one caller at a time. Adapted from the
// teacher's JobRunRepo.UpdateFields split from its full Create path.
package jobrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/store"
)

const fieldBlob = "blob"

func key(requestID string) string { return "httpjob:" + requestID }

type Repo struct {
	store store.Store
	ttl   time.Duration
}

func New(s store.Store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

// Create writes a freshly built job (status=PENDING) with the repository's
// configured TTL.
func (r *Repo) Create(ctx context.Context, job *httpjob.HttpJob) error {
	return r.write(ctx, job)
}

func (r *Repo) write(ctx context.Context, job *httpjob.HttpJob) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobrepo: marshal: %w", err)
	}
	return r.store.HashSetField(ctx, key(job.RequestID), fieldBlob, string(blob), r.ttl)
}

// Get loads a job by request id. Returns (nil, nil) if unknown (either never
// created or already TTL-expired out of the store).
func (r *Repo) Get(ctx context.Context, requestID string) (*httpjob.HttpJob, error) {
	fields, err := r.store.HashGetAll(ctx, key(requestID))
	if err != nil {
		return nil, fmt.Errorf("jobrepo: get: %w", err)
	}
	blob, ok := fields[fieldBlob]
	if !ok || blob == "" {
		return nil, nil
	}
	var job httpjob.HttpJob
	if err := json.Unmarshal([]byte(blob), &job); err != nil {
		return nil, fmt.Errorf("jobrepo: unmarshal: %w", err)
	}
	return &job, nil
}

func (r *Repo) Delete(ctx context.Context, requestID string) error {
	return r.store.HashDelete(ctx, key(requestID))
}

// TransitionToInProgress performs the guarded PENDING -> IN_PROGRESS move
// from spec.md §4.6 step 4: the caller must not invoke a handler unless this
// returns true, since that means some other consumer already claimed it (or
// it expired or was deleted).
func (r *Repo) TransitionToInProgress(ctx context.Context, requestID string) (*httpjob.HttpJob, bool, error) {
	job, err := r.Get(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if job == nil || job.Status != httpjob.StatusPending {
		return job, false, nil
	}
	job.Status = httpjob.StatusInProgress
	job.UpdatedAt = time.Now()
	if err := r.write(ctx, job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Complete records a successful handler result.
func (r *Repo) Complete(ctx context.Context, job *httpjob.HttpJob, status int, headers map[string]string, body []byte) error {
	job.Status = httpjob.StatusCompleted
	job.ResponseStatus = status
	job.ResponseHeaders = headers
	job.ResponseBody = body
	job.UpdatedAt = time.Now()
	return r.write(ctx, job)
}

// Fail records a handler error as a 500 response carrying the error tag, per
// spec.md §7's HandlerFailure/HandlerPanic taxonomy.
func (r *Repo) Fail(ctx context.Context, job *httpjob.HttpJob, errTag string) error {
	job.Status = httpjob.StatusFailed
	job.Error = errTag
	job.ResponseStatus = 500
	job.UpdatedAt = time.Now()
	return r.write(ctx, job)
}

// Expire marks a job EXPIRED from any prior state; the dispatcher calls it
// on deadline or cancellation. A job whose TTL has already lapsed is gone
// from the store and is left as is.
func (r *Repo) Expire(ctx context.Context, requestID string) error {
	job, err := r.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	job.Status = httpjob.StatusExpired
	job.UpdatedAt = time.Now()
	return r.write(ctx, job)
}
