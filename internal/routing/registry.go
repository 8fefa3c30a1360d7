package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devenwen/callme-gate/internal/store"
)

const (
	indexKey        = "routes:index"
	lockTTL         = 2 * time.Second
	heartbeatTTL    = 30 * time.Second
	registeredAtTTL = 0 // route metadata outlives any single heartbeat window
)

func candidatesKey(method, path string) string { return "routes:" + routeKey(method, path) }
func workerKey(worker string) string            { return "routes:worker:" + worker }
func lockKey(method, path string) string        { return "route:lock:" + routeKey(method, path) }
func heartbeatKey(worker string) string         { return "heartbeat:" + worker }
func metaKey(method, path, worker string) string {
	return "route:meta:" + routeKey(method, path) + "|" + worker
}

// Registry is the durable, store-backed route multimap described in
// spec.md §4.3. It holds no in-memory state itself — every Gate instance,
// including one cold-started after the last deploy, reads the same data.
type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// Register is idempotent per (method, path, worker_version): calling it N
// times results in exactly one entry. It does not conflict across worker
// versions for the same (method, path) — those accumulate as candidates.
//
// The source's own TODO (spec.md §4.3, §9) admits concurrent registration of
// the same route by two workers may not be safe without a distributed lock;
// this implementation takes the short-lived per-route lock the spec
// prescribes as mitigation, not a stronger consensus check.
func (r *Registry) Register(ctx context.Context, workerVersion, method, path string) error {
	if workerVersion == "" || method == "" || path == "" {
		return fmt.Errorf("routing: register requires worker_version, method and path")
	}
	method = strings.ToUpper(method)

	// Best-effort advisory lock (spec.md §4.3, §9): not acquiring it doesn't
	// block registration, since the common case is idempotent re-registration
	// of a route this worker already owns.
	if _, err := r.store.SetNX(ctx, lockKey(method, path), workerVersion, lockTTL); err != nil {
		return fmt.Errorf("routing: register lock: %w", err)
	}

	if err := r.store.SetAdd(ctx, indexKey, routeKey(method, path)); err != nil {
		return fmt.Errorf("routing: register index: %w", err)
	}
	if err := r.store.SetAdd(ctx, candidatesKey(method, path), workerVersion); err != nil {
		return fmt.Errorf("routing: register candidates: %w", err)
	}
	if err := r.store.SetAdd(ctx, workerKey(workerVersion), routeKey(method, path)); err != nil {
		return fmt.Errorf("routing: register reverse index: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.store.KVSet(ctx, metaKey(method, path, workerVersion), now, registeredAtTTL); err != nil {
		return fmt.Errorf("routing: register meta: %w", err)
	}
	return nil
}

// Deregister removes workerVersion from the candidate set of every route it
// had registered, called on graceful shutdown (spec.md §4.6).
func (r *Registry) Deregister(ctx context.Context, workerVersion string) error {
	owned, err := r.store.SetMembers(ctx, workerKey(workerVersion))
	if err != nil {
		return fmt.Errorf("routing: deregister list: %w", err)
	}
	for _, rk := range owned {
		method, path, ok := splitRouteKey(rk)
		if !ok {
			continue
		}
		if err := r.store.SetRemove(ctx, candidatesKey(method, path), workerVersion); err != nil {
			return fmt.Errorf("routing: deregister candidates: %w", err)
		}
		if err := r.store.KVDelete(ctx, metaKey(method, path, workerVersion)); err != nil {
			return fmt.Errorf("routing: deregister meta: %w", err)
		}
		remaining, err := r.store.SetMembers(ctx, candidatesKey(method, path))
		if err != nil {
			return fmt.Errorf("routing: deregister check candidates: %w", err)
		}
		if len(remaining) == 0 {
			_ = r.store.SetRemove(ctx, indexKey, rk)
		}
		if err := r.store.SetRemove(ctx, workerKey(workerVersion), rk); err != nil {
			return fmt.Errorf("routing: deregister reverse index: %w", err)
		}
	}
	return nil
}

// Match returns the candidate worker versions for an exact (method, path);
// order is not guaranteed, callers needing determinism (e.g. round-robin)
// must sort.
func (r *Registry) Match(ctx context.Context, method, path string) ([]string, error) {
	method = strings.ToUpper(method)
	members, err := r.store.SetMembers(ctx, candidatesKey(method, path))
	if err != nil {
		return nil, fmt.Errorf("routing: match: %w", err)
	}
	return members, nil
}

// ListAll returns every registered route for the /routes introspection
// endpoint (spec.md §6).
func (r *Registry) ListAll(ctx context.Context) ([]Route, error) {
	routeKeys, err := r.store.SetMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("routing: list_all index: %w", err)
	}
	sort.Strings(routeKeys)

	out := []Route{}
	for _, rk := range routeKeys {
		method, path, ok := splitRouteKey(rk)
		if !ok {
			continue
		}
		workers, err := r.store.SetMembers(ctx, candidatesKey(method, path))
		if err != nil {
			return nil, fmt.Errorf("routing: list_all candidates: %w", err)
		}
		sort.Strings(workers)
		for _, w := range workers {
			route := Route{Method: method, PathPattern: path, WorkerVersion: w}
			if raw, ok, _ := r.store.KVGet(ctx, metaKey(method, path, w)); ok {
				if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
					route.RegisteredAt = t
				}
			}
			if raw, ok, _ := r.store.KVGet(ctx, heartbeatKey(w)); ok {
				if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
					route.LastHeartbeatAt = t
				}
			}
			out = append(out, route)
		}
	}
	return out, nil
}

// Heartbeat refreshes a worker version's liveness timestamp, TTLed per
// spec.md §6's heartbeat:<worker_version> schema entry.
func (r *Registry) Heartbeat(ctx context.Context, workerVersion string, now time.Time) error {
	return r.store.KVSet(ctx, heartbeatKey(workerVersion), now.UTC().Format(time.RFC3339Nano), heartbeatTTL)
}

func splitRouteKey(rk string) (method, path string, ok bool) {
	idx := strings.Index(rk, "|")
	if idx < 0 {
		return "", "", false
	}
	return rk[:idx], rk[idx+1:], true
}
