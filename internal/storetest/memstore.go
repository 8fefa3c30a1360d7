package storetest

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/devenwen/callme-gate/internal/store"
)

// MemStore is a minimal in-process Store used by this repo's tests; it
// implements just enough of store.Store's semantics (blocking pop via
// polling, KV TTL as a wall-clock deadline) to exercise callers without a
// running redis instance. Hash TTLs are ignored: hashes never expire.
type MemStore struct {
	mu     sync.Mutex
	queues map[string]*list.List
	kv     map[string]kvEntry
	hashes map[string]map[string]string
	ints   map[string]int64
	sets   map[string]map[string]bool
	subs   map[string][]chan string
}

type kvEntry struct {
	value   string
	expires time.Time
}

func New() *MemStore {
	return &MemStore{
		queues: make(map[string]*list.List),
		kv:     make(map[string]kvEntry),
		hashes: make(map[string]map[string]string),
		ints:   make(map[string]int64),
		sets:   make(map[string]map[string]bool),
		subs:   make(map[string][]chan string),
	}
}

var _ store.Store = (*MemStore)(nil)

func (m *MemStore) QueuePush(_ context.Context, queue string, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queue]
	if !ok {
		q = list.New()
		m.queues[queue] = q
	}
	q.PushBack(item)
	return nil
}

func (m *MemStore) QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		q, ok := m.queues[queue]
		if ok && q.Len() > 0 {
			el := q.Front()
			q.Remove(el)
			m.mu.Unlock()
			return el.Value.(string), true, nil
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (m *MemStore) QueueLen(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queue]
	if !ok {
		return 0, nil
	}
	return int64(q.Len()), nil
}

func (m *MemStore) KVSet(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.kv[key] = kvEntry{value: value, expires: exp}
	return nil
}

func (m *MemStore) KVGet(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemStore) KVDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *MemStore) HashSetField(_ context.Context, key, field, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemStore) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) HashDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	return nil
}

func (m *MemStore) AtomicIncrement(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] += delta
	return m.ints[key], nil
}

func (m *MemStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.kv[key]; ok {
		if e.expires.IsZero() || time.Now().Before(e.expires) {
			return false, nil
		}
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.kv[key] = kvEntry{value: value, expires: exp}
	return true, nil
}

func (m *MemStore) SetAdd(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]bool)
		m.sets[key] = s
	}
	s[member] = true
	return nil
}

func (m *MemStore) SetRemove(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[key]; ok {
		delete(s, member)
	}
	return nil
}

func (m *MemStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemStore) Publish(_ context.Context, channel string, message string) error {
	m.mu.Lock()
	subs := append([]chan string(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- message:
		default:
		}
	}
	return nil
}

func (m *MemStore) Subscribe(_ context.Context, channel string) (<-chan string, func() error, error) {
	ch := make(chan string, 16)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()
	closeFn := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[channel]
		for i, c := range subs {
			if c == ch {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
		return nil
	}
	return ch, closeFn, nil
}

func (m *MemStore) Close() error { return nil }
