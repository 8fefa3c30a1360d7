// Package routing implements the Route Registry and Route Strategy from
// spec.md §4.3-4.4: a durable multimap of (method, path) -> candidate worker
// versions, backed by the shared store so any Gate instance — including a
// freshly cold-started one — sees the current routes.
package routing

import "time"

// Route is a single (method, path, worker_version) advertisement.
// (method, path_pattern, worker_version) is unique; multiple worker
// versions may advertise the same (method, path) and form the candidate set
// for load balancing (spec.md §3).
type Route struct {
	Method          string    `json:"method"`
	PathPattern     string    `json:"path"`
	WorkerVersion   string    `json:"worker_version"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

func routeKey(method, path string) string {
	return method + "|" + path
}
