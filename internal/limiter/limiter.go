// Package limiter реализует распределённый лимит запросов на один API-ключ
// поверх Redis. Алгоритм token bucket исполняется атомарно Lua-скриптом,
// поэтому лимит корректно работает при нескольких процессах сервиса.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/license-gatekeeper/internal/config"
)

// ErrRateLimitExceeded возвращается, когда бюджет ключа исчерпан.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// tokenBucketScript атомарно пополняет и списывает токены ведра.
// KEYS[1] — ключ лимита, ARGV: ёмкость, скорость пополнения в токенах/с,
// текущее время unix, запрошенные токены. Возвращает 1/0.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local info = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(info[1])
local last_refill = tonumber(info[2])

if not tokens then
	tokens = capacity
	last_refill = now
end

local delta = math.max(0, now - last_refill)
local filled = tokens + (delta * rate)
if filled > capacity then
	filled = capacity
end

local allowed = 0
if filled >= requested then
	allowed = 1
	filled = filled - requested
end

redis.call("HMSET", key, "tokens", filled, "last_refill", now)
redis.call("EXPIRE", key, 60)

return allowed
`

// KeyLimiter ограничивает частоту верификаций по каждому API-ключу.
type KeyLimiter struct {
	client *redis.Client
	rate   float64
	burst  int
}

// New подключается к Redis и создает KeyLimiter с настройками из конфига.
func New(ctx context.Context, cfg config.RedisConnection, limits config.RateLimit) (*KeyLimiter, error) {
	const op = "limiter.New"
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &KeyLimiter{client: client, rate: limits.KeyRate, burst: limits.KeyBurst}, nil
}

// Allow проверяет, укладывается ли запрос по ключу key в лимит.
// Возвращает ErrRateLimitExceeded, когда ведро пусто.
func (l *KeyLimiter) Allow(ctx context.Context, key string) error {
	const op = "limiter.Allow"
	res, err := l.client.Eval(ctx, tokenBucketScript,
		[]string{"ratelimit:" + key},
		l.burst, l.rate, time.Now().Unix(), 1).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return fmt.Errorf("%s: unexpected script result %v", op, res)
	}
	if allowed != 1 {
		return ErrRateLimitExceeded
	}
	return nil
}

// Close закрывает подключение к Redis.
func (l *KeyLimiter) Close() error {
	return l.client.Close()
}
