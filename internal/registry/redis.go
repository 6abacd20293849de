package registry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps recipients in a sorted set scored by first registration time
// in unix milliseconds. ZADD NX leaves the original score in place.
type Redis struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

// NewRedis connects to redisURL and fails fast if the server is unreachable.
func NewRedis(ctx context.Context, redisURL, key string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisClient(rdb, key), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key, now: time.Now}
}

func (r *Redis) Register(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	z := redis.Z{Score: float64(r.now().UnixMilli()), Member: id}
	if err := r.rdb.ZAddNX(ctx, r.key, z).Err(); err != nil {
		return unavailable("register", err)
	}
	return nil
}

func (r *Redis) ListAll(ctx context.Context) ([]Recipient, error) {
	zs, err := r.rdb.ZRangeWithScores(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	out := make([]Recipient, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Recipient{ID: id, RegisteredAt: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int(n), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
