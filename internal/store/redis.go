package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"sleepalarm/internal/config"
	"sleepalarm/internal/model"
)

// RedisStore keeps the snapshot as a JSON string, the fired keys as a SET
// and the reset day as a plain string, all under one key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore connects and pings.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) snapshotKey() string  { return s.prefix + "snapshot:latest" }
func (s *RedisStore) triggeredKey() string { return s.prefix + "triggered" }
func (s *RedisStore) resetDayKey() string  { return s.prefix + "triggered:last_reset_day" }

func (s *RedisStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	val, err := s.client.Get(ctx, s.snapshotKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("store: get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.snapshotKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("store: set snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadTriggerLog(ctx context.Context) (model.TriggerLogState, error) {
	keys, err := s.client.SMembers(ctx, s.triggeredKey()).Result()
	if err != nil {
		return model.TriggerLogState{}, fmt.Errorf("store: smembers: %w", err)
	}
	day, err := s.client.Get(ctx, s.resetDayKey()).Result()
	if err != nil && err != redis.Nil {
		return model.TriggerLogState{}, fmt.Errorf("store: get reset day: %w", err)
	}
	sort.Strings(keys)
	return model.TriggerLogState{Keys: keys, LastResetDay: day}, nil
}

// SaveTriggerLog replaces the stored set in one MULTI/EXEC.
func (s *RedisStore) SaveTriggerLog(ctx context.Context, st model.TriggerLogState) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.triggeredKey())
		if len(st.Keys) > 0 {
			members := make([]interface{}, len(st.Keys))
			for i, k := range st.Keys {
				members[i] = k
			}
			pipe.SAdd(ctx, s.triggeredKey(), members...)
		}
		pipe.Set(ctx, s.resetDayKey(), st.LastResetDay, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save trigger log: %w", err)
	}
	s.logger.Debug("trigger log saved", zap.Int("keys", len(st.Keys)), zap.String("day", st.LastResetDay))
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
