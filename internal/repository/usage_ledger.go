package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// UsageLedger tracks the notional a user has copied per UTC day.
type UsageLedger interface {
	Used(ctx context.Context, userID string, day time.Time) (float64, error)
	Add(ctx context.Context, userID string, day time.Time, amount float64) (float64, error)
}

func dayKey(day time.Time) string {
	return day.UTC().Format("2006-01-02")
}

type MemoryUsageLedger struct {
	mu   sync.Mutex
	used map[string]float64
}

func NewMemoryUsageLedger() *MemoryUsageLedger {
	return &MemoryUsageLedger{used: make(map[string]float64)}
}

func (l *MemoryUsageLedger) Used(_ context.Context, userID string, day time.Time) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[userID+"|"+dayKey(day)], nil
}

func (l *MemoryUsageLedger) Add(_ context.Context, userID string, day time.Time, amount float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := userID + "|" + dayKey(day)
	l.used[key] += amount
	return l.used[key], nil
}

// RedisUsageLedger keeps one INCRBYFLOAT counter per user and day. Keys
// expire after ttl so old days never need cleaning up.
type RedisUsageLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisUsageLedger(client *redis.Client, prefix string, ttl time.Duration) *RedisUsageLedger {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisUsageLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisUsageLedger) key(userID string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, userID, dayKey(day))
}

func (l *RedisUsageLedger) Used(ctx context.Context, userID string, day time.Time) (float64, error) {
	key := l.key(userID, day)
	v, err := l.client.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return v, nil
}

func (l *RedisUsageLedger) Add(ctx context.Context, userID string, day time.Time, amount float64) (float64, error) {
	key := l.key(userID, day)
	var incr *redis.FloatCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrByFloat(ctx, key, amount)
		pipe.Expire(ctx, key, l.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis INCRBYFLOAT %s: %w", key, err)
	}
	return incr.Val(), nil
}
