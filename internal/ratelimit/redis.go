package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding-window admission in one round trip. Scores are unix milliseconds.
// Returns {admitted, count, oldestScore}.
const admitLuaScript = `
local key = KEYS[1]
local now = ARGV[1]
local cutoff = ARGV[2]
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = ARGV[5]

redis.call("ZREMRANGEBYSCORE", key, "-inf", cutoff)

local count = redis.call("ZCARD", key)
if count >= limit then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    return {0, count, oldest[2]}
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, ttl)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {1, count + 1, oldest[2]}
`

// RedisStore keeps event logs in Redis sorted sets so several API instances
// share one allowance per origin. Keys expire one window after their newest event.
type RedisStore struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisStore creates a RedisStore using client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "ratelimit:",
		script: redis.NewScript(admitLuaScript),
	}
}

// NewRedisStoreFromURL connects to Redis and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStore(client), nil
}

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Usage, error) {
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
	cutoff := now.Add(-window).UnixMilli()

	res, err := s.script.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		cutoff,
		limit,
		member,
		window.Milliseconds(),
	).Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 3 {
		return Usage{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)

	usage := Usage{
		Count:    int(count),
		Admitted: admitted == 1,
	}
	if usage.Admitted {
		usage.Token = member
	}
	if raw, ok := res[2].(string); ok {
		if ms, err := strconv.ParseFloat(raw, 64); err == nil {
			usage.Oldest = time.UnixMilli(int64(ms))
		}
	}
	return usage, nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, key, token string) error {
	if err := s.client.ZRem(ctx, s.prefix+key, token).Err(); err != nil {
		return fmt.Errorf("failed to release rate limit slot: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
