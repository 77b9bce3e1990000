package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/pkg/circuitbreaker"
	"github.com/jwalitptl/comms-notebook/pkg/metrics"
)

// WatermarkStore keeps watermarks in two Redis hashes: one for values and
// one for their update times.
type WatermarkStore struct {
	client  *redis.Client
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	values  string
	updated string
}

var _ repository.WatermarkRepository = (*WatermarkStore)(nil)

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.RetryBackoff
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewWatermarkStore wraps client. metrics may be nil.
func NewWatermarkStore(client *redis.Client, keyPrefix string, m *metrics.Metrics) *WatermarkStore {
	if keyPrefix == "" {
		keyPrefix = "notebook"
	}
	return &WatermarkStore{
		client:  client,
		metrics: m,
		values:  keyPrefix + ":watermarks",
		updated: keyPrefix + ":watermarks:updated_at",
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-watermarks",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}),
	}
}

func (s *WatermarkStore) do(op string, fn func() error) error {
	err := s.cb.Execute(fn)
	s.metrics.ObserveRedis(op, err)
	return err
}

func (s *WatermarkStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.do("hget", func() error {
		v, err := s.client.HGet(ctx, s.values, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get watermark %q: %w", key, err)
	}
	return value, found, nil
}

// Set writes the value and its update time in one MULTI/EXEC.
func (s *WatermarkStore) Set(ctx context.Context, key, value string) error {
	err := s.do("hset", func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.values, key, value)
			pipe.HSet(ctx, s.updated, key, model.FormatTimestamp(time.Now()))
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set watermark %q: %w", key, err)
	}
	return nil
}

func (s *WatermarkStore) List(ctx context.Context) ([]*model.Watermark, error) {
	var values, updated map[string]string
	err := s.do("hgetall", func() error {
		var err error
		if values, err = s.client.HGetAll(ctx, s.values).Result(); err != nil {
			return err
		}
		updated, err = s.client.HGetAll(ctx, s.updated).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}

	out := make([]*model.Watermark, 0, len(values))
	for k, v := range values {
		w := &model.Watermark{Key: k, Value: v}
		if ts, err := model.ParseTimestamp(updated[k]); err == nil {
			w.UpdatedAt = ts
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *WatermarkStore) Delete(ctx context.Context, key string) error {
	var removed int64
	err := s.do("hdel", func() error {
		var err error
		removed, err = s.client.HDel(ctx, s.values, key).Result()
		if err != nil {
			return err
		}
		return s.client.HDel(ctx, s.updated, key).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete watermark %q: %w", key, err)
	}
	if removed == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *WatermarkStore) Clear(ctx context.Context) error {
	if err := s.do("del", func() error {
		return s.client.Del(ctx, s.values, s.updated).Err()
	}); err != nil {
		return fmt.Errorf("failed to clear watermarks: %w", err)
	}
	return nil
}

// PingContext reports whether Redis is reachable.
func (s *WatermarkStore) PingContext(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
