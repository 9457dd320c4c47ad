package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix  = "otp:code:"
	limitKeyPrefix = "otp:limit:"
)

// RedisStore shares codes and counters between gateway replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, mobile, code string, ttl time.Duration) error {
	return r.client.Set(ctx, codeKeyPrefix+mobile, code, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, mobile string) (string, error) {
	code, err := r.client.Get(ctx, codeKeyPrefix+mobile).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	return code, err
}

func (r *RedisStore) Delete(ctx context.Context, mobile string) error {
	return r.client.Del(ctx, codeKeyPrefix+mobile).Err()
}

// Hit counts events in a fixed window; the key expires with the window.
func (r *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = limitKeyPrefix + key
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
