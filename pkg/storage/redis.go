package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/redis/go-redis/v9"

	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/types"
)

const (
	redisRunKeyPrefix = "solarconsumer:run:"
	redisRunIndexKey  = "solarconsumer:runs"
)

// RedisProvider implements Database using Redis. Runs are stored as JSON
// strings that expire after the configured TTL, and a sorted set scored by
// creation time indexes them for listing.
type RedisProvider struct {
	url string
	ttl time.Duration

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisProvider returns an uninitialized provider for a redis:// URL.
// Init must be called before use.
func NewRedisProvider(url string, ttl time.Duration) *RedisProvider {
	return &RedisProvider{
		url: url,
		ttl: ttl,
	}
}

func configuredRedis() *RedisProvider {
	r := &RedisProvider{}
	url := lflag.String("redis-url", "redis://localhost:6379/0", "Redis connection URL")
	ttl := lflag.Duration("redis-ttl", 30*24*time.Hour, "How long runs are kept in redis (0 keeps them forever)")

	lflag.Do(func() {
		r.url = *url
		r.ttl = *ttl
	})
	return r
}

// Validate checks if the provider is properly configured.
func (r *RedisProvider) Validate() error {
	if r.url == "" {
		return errors.New("redis url cannot be empty")
	}
	if _, err := redis.ParseURL(r.url); err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	if r.ttl < 0 {
		return errors.New("redis ttl must be >= 0")
	}
	return nil
}

// Init connects to redis and verifies the connection.
func (r *RedisProvider) Init(ctx context.Context) error {
	opts, err := redis.ParseURL(r.url)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
	return nil
}

func (r *RedisProvider) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errors.New("redis client is not initialized")
	}
	return r.client, nil
}

func runKey(id string) string {
	return redisRunKeyPrefix + id
}

func (r *RedisProvider) CreateRun(ctx context.Context, run types.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}
	client, err := r.conn()
	if err != nil {
		return err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	ok, err := client.SetNX(ctx, runKey(run.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store run in redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	err = client.ZAdd(ctx, redisRunIndexKey, redis.Z{
		Score:  float64(run.Created.UnixMilli()),
		Member: run.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index run in redis: %w", err)
	}
	return nil
}

// update applies fn to the stored run with optimistic locking on its key.
func (r *RedisProvider) update(ctx context.Context, id string, fn func(*types.Run) error) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	key := runKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get run from redis: %w", err)
		}
		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}
		if err := fn(&run); err != nil {
			return err
		}
		data, err = json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for range 3 {
		err = client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update run %s: too much contention", id)
}

func (r *RedisProvider) CompleteRun(ctx context.Context, id string, c Completion) error {
	return r.update(ctx, id, c.apply)
}

func (r *RedisProvider) FailRun(ctx context.Context, id string, f Failure) error {
	return r.update(ctx, id, f.apply)
}

func (r *RedisProvider) GetRun(ctx context.Context, id string) (types.Run, error) {
	client, err := r.conn()
	if err != nil {
		return types.Run{}, err
	}
	data, err := client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return types.Run{}, fmt.Errorf("failed to get run from redis: %w", err)
	}
	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return types.Run{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first. Index entries whose run has
// expired are pruned.
func (r *RedisProvider) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	client, err := r.conn()
	if err != nil {
		return nil, err
	}
	ids, err := client.ZRevRange(ctx, redisRunIndexKey, 0, int64(listLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}
	vals, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get runs from redis: %w", err)
	}

	runs := make([]types.Run, 0, len(vals))
	var expired []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var run types.Run
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal run", slog.String("runID", ids[i]), slog.Any("err", err))
			continue
		}
		runs = append(runs, run)
	}
	if len(expired) > 0 {
		if err := client.ZRem(ctx, redisRunIndexKey, expired...).Err(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to prune expired runs", slog.Any("err", err))
		}
	}
	return runs, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times.
func (r *RedisProvider) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
