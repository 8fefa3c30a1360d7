package main

import (
	"fmt"
	"time"

	"github.com/devenwen/callme-gate/internal/store"
	"github.com/devenwen/callme-gate/internal/worker"
)

// echoHandler responds with the request body unchanged, the minimal smoke
// test for the Gate-Worker round trip (spec.md §8).
type echoHandler struct{}

func (echoHandler) Method() string { return "POST" }
func (echoHandler) Path() string   { return "/echo" }

func (echoHandler) Handle(ctx *worker.Context) error {
	return ctx.Succeed(200, map[string]string{"Content-Type": "application/octet-stream"}, ctx.Body())
}

// counterHandler atomically increments a named counter through the store,
// exercising Store.AtomicIncrement from a business handler rather than only
// from routing internals (spec.md §8 scenario 1).
type counterHandler struct {
	store store.Store
}

func newCounterHandler(s store.Store) *counterHandler { return &counterHandler{store: s} }

func (*counterHandler) Method() string { return "POST" }
func (*counterHandler) Path() string   { return "/api/counter/increment" }

type counterRequest struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

type counterResponse struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func (h *counterHandler) Handle(ctx *worker.Context) error {
	var req counterRequest
	if err := ctx.BindJSON(&req); err != nil {
		return err
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	n, err := h.store.AtomicIncrement(ctx.Ctx, "demo:counter:"+req.Name, req.Amount)
	if err != nil {
		return err
	}
	return ctx.SucceedJSON(200, counterResponse{Name: req.Name, Value: n})
}

// slowHandler sleeps longer than a typical dispatch deadline, letting
// operators exercise the 504/dispatch_timeout path end to end (spec.md §8).
type slowHandler struct {
	delay time.Duration
}

func newSlowHandler(delay time.Duration) *slowHandler { return &slowHandler{delay: delay} }

func (*slowHandler) Method() string { return "GET" }
func (*slowHandler) Path() string   { return "/slow" }

func (h *slowHandler) Handle(ctx *worker.Context) error {
	select {
	case <-time.After(h.delay):
	case <-ctx.Ctx.Done():
		return fmt.Errorf("slow handler canceled: %w", ctx.Ctx.Err())
	}
	return ctx.SucceedJSON(200, map[string]string{"slept_for": h.delay.String()})
}
