package storage

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/minus-twelve/authdb/types"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

type RedisBackend struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisBackend dials lazily: no PING is sent, so an unreachable server
// only shows up as an error on the first command.
func NewRedisBackend(cfg types.RedisConfig) *RedisBackend {
	host := cfg.Host
	if host == "" {
		host = types.DefaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = types.DefaultPort
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	return &RedisBackend{client: client, owned: true}
}

// NewRedisBackendFromClient uses an already connected client as-is.
// The caller keeps ownership and Close leaves it open.
func NewRedisBackendFromClient(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// TTL reports the remaining lifetime of key. A key without a deadline
// reports found with a negative duration.
func (r *RedisBackend) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// -2 means the key does not exist, -1 means it has no expire.
	if d == -2 {
		return 0, false, nil
	}
	return d, true, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisBackend) Client() redis.UniversalClient {
	return r.client
}

func (r *RedisBackend) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
