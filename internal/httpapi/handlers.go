package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/apierr"
	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/httpapi/response"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/store"
)

// Handlers wires the admin/introspection surface plus the catch-all
// dispatch route onto the Dispatcher, the Route Registry, and the job
// repository (spec.md §6).
type Handlers struct {
	log        *logger.Logger
	store      store.Store
	dispatcher *dispatch.Dispatcher
	jobs       *jobrepo.Repo
	routes     *routing.Registry
}

func NewHandlers(log *logger.Logger, s store.Store, d *dispatch.Dispatcher, jobs *jobrepo.Repo, routes *routing.Registry) *Handlers {
	return &Handlers{log: log, store: s, dispatcher: d, jobs: jobs, routes: routes}
}

// HealthCheck reports the Gate is alive and can reach the store.
func (h *Handlers) HealthCheck(c *gin.Context) {
	if _, _, err := h.store.KVGet(c.Request.Context(), "healthcheck:probe"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRoutes serves the current route table for operators (spec.md §6).
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes, err := h.routes.ListAll(c.Request.Context())
	if err != nil {
		h.log.Error("list routes failed", "error", err)
		response.Error(c, apierr.New(apierr.StoreUnavailable, err))
		return
	}
	response.OK(c, routes)
}

// GetJob reports the current state of a previously dispatched job, for
// clients that polled away or want to re-check a result.
func (h *Handlers) GetJob(c *gin.Context) {
	requestID := c.Param("request_id")
	job, err := h.jobs.Get(c.Request.Context(), requestID)
	if err != nil {
		h.log.Error("get job failed", "request_id", requestID, "error", err)
		response.Error(c, apierr.New(apierr.StoreUnavailable, err))
		return
	}
	if job == nil {
		response.Error(c, apierr.New(apierr.NoRoute, nil))
		return
	}
	response.OK(c, job)
}

// DeleteJob removes a job record, e.g. so a client can free up store space
// once it has consumed the result.
func (h *Handlers) DeleteJob(c *gin.Context) {
	requestID := c.Param("request_id")
	if err := h.jobs.Delete(c.Request.Context(), requestID); err != nil {
		h.log.Error("delete job failed", "request_id", requestID, "error", err)
		response.Error(c, apierr.New(apierr.StoreUnavailable, err))
		return
	}
	c.Status(http.StatusNoContent)
}

// QueueSize reports the current depth of a worker_version's queue, passed
// as ?worker= per spec.md §6 (?worker_version= accepted as an alias).
func (h *Handlers) QueueSize(c *gin.Context) {
	workerVersion := c.Query("worker")
	if workerVersion == "" {
		workerVersion = c.Query("worker_version")
	}
	if workerVersion == "" {
		response.Error(c, apierr.New(apierr.BadRequest, nil))
		return
	}
	n, err := h.store.QueueLen(c.Request.Context(), "queue:"+workerVersion)
	if err != nil {
		h.log.Error("queue size failed", "worker_version", workerVersion, "error", err)
		response.Error(c, apierr.New(apierr.StoreUnavailable, err))
		return
	}
	response.OK(c, gin.H{"worker_version": workerVersion, "size": n})
}

// Dispatch is the catch-all handler: any method/path not matched by the
// routes above is forwarded to the Job Dispatcher (spec.md §4.5).
func (h *Handlers) Dispatch(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apierr.New(apierr.BadRequest, err))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}
	query := make(map[string]string, len(c.Request.URL.Query()))
	for k := range c.Request.URL.Query() {
		query[k] = c.Request.URL.Query().Get(k)
	}

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), dispatch.Request{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Query:   query,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		apiErr, ok := err.(*apierr.Error)
		if !ok {
			apiErr = apierr.New(apierr.StoreUnavailable, err)
		}
		h.log.Warn("dispatch failed", "method", c.Request.Method, "path", c.Request.URL.Path, "tag", apiErr.Tag, "error", apiErr.Err)
		response.Error(c, apiErr)
		return
	}

	c.Writer.Header().Set("X-Request-ID", resp.RequestID)
	for k, v := range resp.Headers {
		c.Writer.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Data(status, resp.Headers["Content-Type"], resp.Body)
}
