package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dialcraft/wfm-backend/internal/types"
)

const (
	statePrefix   = "agent:state:"
	metricsPrefix = "agent:metrics:"
)

// RedisStore implements Store against a shared Redis instance. Counters
// live in per-day hashes mutated with HINCRBY so increments are atomic
// across processes.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string, db int, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", addr).Int("db", db).Msg("redis cache initialized")

	return &RedisStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

func stateKey(agentID string) string {
	return statePrefix + agentID
}

func redisMetricsKey(agentID, dateKey string) string {
	return metricsPrefix + agentID + ":" + dateKey
}

func (s *RedisStore) GetAgentState(agentID string) (*types.CachedAgentState, error) {
	data, err := s.client.Get(context.Background(), stateKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read agent state: %w", err)
	}

	var state types.CachedAgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode agent state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) SetAgentState(agentID string, state types.CachedAgentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode agent state: %w", err)
	}
	if err := s.client.Set(context.Background(), stateKey(agentID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAgentState(agentID string) error {
	if err := s.client.Del(context.Background(), stateKey(agentID)).Err(); err != nil {
		return fmt.Errorf("failed to delete agent state: %w", err)
	}
	return nil
}

func (s *RedisStore) ListAgentStates() (map[string]types.CachedAgentState, error) {
	ctx := context.Background()
	states := make(map[string]types.CachedAgentState)

	iter := s.client.Scan(ctx, 0, statePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read agent state: %w", err)
		}

		var state types.CachedAgentState
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("skipping undecodable agent state")
			continue
		}
		states[strings.TrimPrefix(key, statePrefix)] = state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan agent states: %w", err)
	}
	return states, nil
}

func (s *RedisStore) IncrMetric(agentID, dateKey string, field types.MetricField, delta int64) error {
	ctx := context.Background()
	key := redisMetricsKey(agentID, dateKey)
	now := s.now()

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, string(field), delta)
	pipe.HSet(ctx, key, "last_update", now.Format(time.RFC3339))
	pipe.ExpireAt(ctx, key, endOfDay(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return nil
}

func (s *RedisStore) GetMetrics(agentID, dateKey string) (*types.DailyMetrics, error) {
	fields, err := s.client.HGetAll(context.Background(), redisMetricsKey(agentID, dateKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeMetrics(fields), nil
}

func (s *RedisStore) EnsureMetrics(agentID, dateKey string) (*types.DailyMetrics, error) {
	ctx := context.Background()
	key := redisMetricsKey(agentID, dateKey)
	now := s.now()

	// HSETNX initializes the hash without clobbering concurrent increments
	created, err := s.client.HSetNX(ctx, key, "last_update", now.Format(time.RFC3339)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if created {
		if err := s.client.ExpireAt(ctx, key, endOfDay(now)).Err(); err != nil {
			return nil, fmt.Errorf("failed to set metrics expiry: %w", err)
		}
	}

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	return decodeMetrics(fields), nil
}

func decodeMetrics(fields map[string]string) *types.DailyMetrics {
	metrics := &types.DailyMetrics{
		ProductiveTime:    parseCounter(fields, types.MetricProductiveTime),
		PauseTime:         parseCounter(fields, types.MetricPauseTime),
		CallTime:          parseCounter(fields, types.MetricCallTime),
		AfterCallWorkTime: parseCounter(fields, types.MetricAfterCallWorkTime),
		Calls:             parseCounter(fields, types.MetricCalls),
		Sales:             parseCounter(fields, types.MetricSales),
	}
	if raw, ok := fields["last_update"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			metrics.LastUpdate = t
		}
	}
	return metrics
}

func parseCounter(fields map[string]string, field types.MetricField) int64 {
	raw, ok := fields[string(field)]
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
