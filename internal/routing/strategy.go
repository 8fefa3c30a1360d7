package routing

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/devenwen/callme-gate/internal/store"
)

// HeaderWorkerVersion pins a dispatch to a specific worker_version,
// restricting the candidate set before the default strategy runs
// (spec.md §4.4).
const HeaderWorkerVersion = "X-Worker-Version"

// Strategy picks one worker_version from a candidate set for a given route.
// Implementations must be deterministic when indifferent: ties break by
// lexicographic order of worker_version (spec.md §4.4).
type Strategy interface {
	Choose(ctx context.Context, method, path string, candidates []string) (string, error)
}

// ErrNoCandidate is returned when candidates is empty after any filtering
// (e.g. version pinning); callers map this to a 503 per spec.md §7.
var ErrNoCandidate = fmt.Errorf("routing: no candidate available")

func sortedCopy(candidates []string) []string {
	out := append([]string(nil), candidates...)
	sort.Strings(out)
	return out
}

// RoundRobin maintains a persistent cursor per (method, path) in the store
// via atomic-increment modulo candidate count, so it stays stable across
// concurrent Gate replicas (spec.md §4.4).
type RoundRobin struct {
	store store.Store
}

func NewRoundRobin(s store.Store) *RoundRobin { return &RoundRobin{store: s} }

func (rr *RoundRobin) Choose(ctx context.Context, method, path string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}
	sorted := sortedCopy(candidates)
	cursorKey := "route:cursor:" + routeKey(strings.ToUpper(method), path)
	n, err := rr.store.AtomicIncrement(ctx, cursorKey, 1)
	if err != nil {
		return "", fmt.Errorf("routing: round-robin cursor: %w", err)
	}
	idx := int(((n - 1) % int64(len(sorted))+int64(len(sorted))) % int64(len(sorted)))
	return sorted[idx], nil
}

// Random picks uniformly over the candidate set.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (Random) Choose(_ context.Context, _, _ string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}
	sorted := sortedCopy(candidates)
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(sorted))))
	if err != nil {
		return "", fmt.Errorf("routing: random: %w", err)
	}
	return sorted[n.Int64()], nil
}

// VersionPinned restricts the candidate set to a single worker_version (read
// from the X-Worker-Version request header by the caller) and otherwise
// defers to an inner strategy; it fails with ErrNoCandidate if the pinned
// version isn't in the candidate set.
type VersionPinned struct {
	Pinned string
	Inner  Strategy
}

func NewVersionPinned(pinned string, inner Strategy) *VersionPinned {
	return &VersionPinned{Pinned: pinned, Inner: inner}
}

func (v *VersionPinned) Choose(ctx context.Context, method, path string, candidates []string) (string, error) {
	var filtered []string
	for _, c := range candidates {
		if c == v.Pinned {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return "", ErrNoCandidate
	}
	return v.Inner.Choose(ctx, method, path, filtered)
}
