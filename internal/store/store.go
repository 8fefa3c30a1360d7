// Package store defines the Store Client capability set (spec.md §4.1)
// consumed by every other component: queues, KV with TTL, hashes, atomic
// counters, pub/sub, and sets. It is the only abstraction boundary between
// callme-gate's logic and the shared data store.
package store

import (
	"context"
	"time"
)

// Store is safe for concurrent use by many goroutines.
type Store interface {
	// QueuePush appends item to the tail of the named list.
	QueuePush(ctx context.Context, queue string, item string) error
	// QueuePopBlocking pops the head of the named list, blocking up to
	// timeout. Returns ("", false, nil) on a timeout with no error.
	QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, bool, error)
	// QueueLen reports the current depth of the named list.
	QueueLen(ctx context.Context, queue string) (int64, error)

	// KVSet stores value under key with the given TTL (0 = no expiry).
	KVSet(ctx context.Context, key string, value string, ttl time.Duration) error
	// KVGet returns (value, true, nil) if key exists, ("", false, nil) if not.
	KVGet(ctx context.Context, key string) (string, bool, error)
	KVDelete(ctx context.Context, key string) error

	// HashSetField sets one field of a hash and refreshes its TTL when ttl > 0.
	HashSetField(ctx context.Context, key, field, value string, ttl time.Duration) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDelete(ctx context.Context, key string) error

	// AtomicIncrement adds delta to the integer stored at key and returns
	// the new value; the key is created at 0 if absent.
	AtomicIncrement(ctx context.Context, key string, delta int64) (int64, error)

	// SetNX sets key to value with ttl only if it does not already exist,
	// reporting whether this call won the race (used for the route lock).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	SetAdd(ctx context.Context, key string, member string) error
	SetRemove(ctx context.Context, key string, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	Publish(ctx context.Context, channel string, message string) error
	// Subscribe returns a channel of messages on the given channel and a
	// close function the caller must invoke to release the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)

	Close() error
}
