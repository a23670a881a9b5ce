package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bramble-labs/bramble/snapshot"
)

// DefaultRedisPrefix namespaces history keys in a shared Redis.
const DefaultRedisPrefix = "bramble:hist:"

// RedisStore keeps per-execution snapshot lists in Redis. Each execution
// is one list (RPUSH order = tick order) trimmed to the retention bound.
type RedisStore struct {
	client *redis.Client
	prefix string
	max    int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisRetention bounds snapshots kept per execution (0 = unlimited).
func WithRedisRetention(maxPerExecution int) RedisOption {
	return func(s *RedisStore) {
		s.max = maxPerExecution
	}
}

// NewRedisStore connects to Redis and returns a snapshot store.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(executionID string) string {
	return s.prefix + executionID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, snap *snapshot.ExecutionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("history: nil snapshot")
	}
	if snap.ExecutionID == "" {
		return fmt.Errorf("history: snapshot without execution id")
	}
	if snap.TickCount < 1 {
		return fmt.Errorf("%w: tick %d", ErrInvalidRange, snap.TickCount)
	}

	key := s.key(snap.ExecutionID)

	last, err := s.client.LRange(ctx, key, -1, -1).Result()
	if err != nil {
		return fmt.Errorf("history: read list tail: %w", err)
	}
	if len(last) == 1 {
		prev, err := decodeSnapshot(last[0])
		if err != nil {
			return err
		}
		if prev.TickCount >= snap.TickCount {
			return fmt.Errorf("history: tick %d not after %d for execution %s",
				snap.TickCount, prev.TickCount, snap.ExecutionID)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("history: marshal snapshot: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.max > 0 {
		pipe.LTrim(ctx, key, int64(-s.max), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Tick implements Store.
func (s *RedisStore) Tick(ctx context.Context, executionID string, n int) (*snapshot.ExecutionSnapshot, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: tick %d", ErrInvalidRange, n)
	}

	list, err := s.load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if snap := findTick(list, n); snap != nil {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: execution %s has no tick %d", ErrHistoryUnavailable, executionID, n)
}

// Range implements Store.
func (s *RedisStore) Range(ctx context.Context, executionID string, from, to int) ([]*snapshot.ExecutionSnapshot, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	list, err := s.load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	var out []*snapshot.ExecutionSnapshot
	for _, snap := range list {
		if snap.TickCount < from {
			continue
		}
		if snap.TickCount > to {
			break
		}
		out = append(out, snap)
	}
	return out, nil
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, executionID string) (*snapshot.ExecutionSnapshot, error) {
	last, err := s.client.LRange(ctx, s.key(executionID), -1, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: latest: %w", err)
	}
	if len(last) == 0 {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	return decodeSnapshot(last[0])
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, executionID string) (int, error) {
	n, err := s.client.LLen(ctx, s.key(executionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}
	return int(n), nil
}

// DeleteExecution implements Store.
func (s *RedisStore) DeleteExecution(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, s.key(executionID)).Err(); err != nil {
		return fmt.Errorf("history: delete execution: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// load fetches and decodes the full snapshot list for an execution.
func (s *RedisStore) load(ctx context.Context, executionID string) ([]*snapshot.ExecutionSnapshot, error) {
	vals, err := s.client.LRange(ctx, s.key(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: execution %s", ErrHistoryUnavailable, executionID)
	}

	list := make([]*snapshot.ExecutionSnapshot, 0, len(vals))
	for _, v := range vals {
		snap, err := decodeSnapshot(v)
		if err != nil {
			return nil, err
		}
		list = append(list, snap)
	}
	return list, nil
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)
