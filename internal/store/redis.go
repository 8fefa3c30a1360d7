package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/devenwen/callme-gate/internal/logger"
)

const maxTransientRetries = 3

// RedisStore is the production Store backed by github.com/redis/go-redis/v9,
// following the dial/ping/wrap-errors shape of the teacher's
// internal/clients/redis.sseBus constructor.
type RedisStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

func NewRedisStore(log *logger.Logger, cfg Config) (*RedisStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts := &goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}

	return &RedisStore{log: log.With("component", "RedisStore"), rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// withRetry retries transient store failures a bounded number of times with
// capped backoff before giving up, per spec.md §4.1.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, goredis.Nil) {
			return err // not found is not transient, never retry
		}
		if attempt == maxTransientRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
	return fmt.Errorf("store operation failed after retries: %w", err)
}

func (s *RedisStore) QueuePush(ctx context.Context, queue string, item string) error {
	return withRetry(ctx, func() error {
		return s.rdb.RPush(ctx, queue, item).Err()
	})
}

func (s *RedisStore) QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	res, err := s.rdb.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store queue pop: %w", err)
	}
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (s *RedisStore) QueueLen(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var e error
		n, e = s.rdb.LLen(ctx, queue).Result()
		return e
	})
	return n, err
}

func (s *RedisStore) KVSet(ctx context.Context, key string, value string, ttl time.Duration) error {
	return withRetry(ctx, func() error {
		return s.rdb.Set(ctx, key, value, ttl).Err()
	})
}

func (s *RedisStore) KVGet(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := withRetry(ctx, func() error {
		var e error
		v, e = s.rdb.Get(ctx, key).Result()
		return e
	})
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) KVDelete(ctx context.Context, key string) error {
	return withRetry(ctx, func() error {
		return s.rdb.Del(ctx, key).Err()
	})
}

func (s *RedisStore) HashSetField(ctx context.Context, key, field, value string, ttl time.Duration) error {
	return withRetry(ctx, func() error {
		if err := s.rdb.HSet(ctx, key, field, value).Err(); err != nil {
			return err
		}
		if ttl > 0 {
			return s.rdb.Expire(ctx, key, ttl).Err()
		}
		return nil
	})
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var m map[string]string
	err := withRetry(ctx, func() error {
		var e error
		m, e = s.rdb.HGetAll(ctx, key).Result()
		return e
	})
	return m, err
}

func (s *RedisStore) HashDelete(ctx context.Context, key string) error {
	return withRetry(ctx, func() error {
		return s.rdb.Del(ctx, key).Err()
	})
}

func (s *RedisStore) AtomicIncrement(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var e error
		n, e = s.rdb.IncrBy(ctx, key, delta).Result()
		return e
	})
	return n, err
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var ok bool
	err := withRetry(ctx, func() error {
		var e error
		ok, e = s.rdb.SetNX(ctx, key, value, ttl).Result()
		return e
	})
	return ok, err
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, member string) error {
	return withRetry(ctx, func() error {
		return s.rdb.SAdd(ctx, key, member).Err()
	})
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, member string) error {
	return withRetry(ctx, func() error {
		return s.rdb.SRem(ctx, key, member).Err()
	})
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	var m []string
	err := withRetry(ctx, func() error {
		var e error
		m, e = s.rdb.SMembers(ctx, key).Result()
		return e
	})
	return m, err
}

func (s *RedisStore) Publish(ctx context.Context, channel string, message string) error {
	return withRetry(ctx, func() error {
		return s.rdb.Publish(ctx, channel, message).Err()
	})
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	sub := s.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("store subscribe: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close, nil
}
