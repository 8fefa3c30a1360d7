package worker

import (
	"context"
	"encoding/json"

	"github.com/devenwen/callme-gate/internal/httpjob"
	"github.com/devenwen/callme-gate/internal/jobrepo"
)

// Context is the capability-scoped execution handle for a single claimed
// HttpJob, the worker-side analogue of the teacher's runtime.Context:
// handlers never touch the job record or repository directly, only through
// the methods here, so the monotonic status invariant (spec.md §3) stays
// centralized in one place.
type Context struct {
	Ctx context.Context
	Job *httpjob.HttpJob

	repo *jobrepo.Repo
}

func newContext(ctx context.Context, job *httpjob.HttpJob, repo *jobrepo.Repo) *Context {
	return &Context{Ctx: ctx, Job: job, repo: repo}
}

// Method, Path, Query and Headers mirror the inbound HTTP request that
// triggered this job.
func (c *Context) Method() string             { return c.Job.Method }
func (c *Context) Path() string               { return c.Job.Path }
func (c *Context) Query() map[string]string   { return c.Job.Query }
func (c *Context) Headers() map[string]string { return c.Job.Headers }
func (c *Context) Body() []byte               { return c.Job.Body }
func (c *Context) RequestID() string          { return c.Job.RequestID }

// BindJSON decodes the request body as JSON into v, a convenience for the
// common case of a JSON-body handler.
func (c *Context) BindJSON(v any) error {
	return json.Unmarshal(c.Job.Body, v)
}

// Succeed persists a successful response and marks the job COMPLETED.
func (c *Context) Succeed(status int, headers map[string]string, body []byte) error {
	return c.repo.Complete(c.Ctx, c.Job, status, headers, body)
}

// SucceedJSON is Succeed with a value marshaled to a JSON body and the
// appropriate Content-Type set.
func (c *Context) SucceedJSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return c.Succeed(status, headers, body)
}

// Fail marks the job FAILED with the given error tag (spec.md §7's
// HandlerFailure/HandlerPanic taxonomy).
func (c *Context) Fail(errTag string) error {
	return c.repo.Fail(c.Ctx, c.Job, errTag)
}
