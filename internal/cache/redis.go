package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("train lock not acquired")
	ErrLockNotOwned    = errors.New("train lock not owned")
)

const lockRetryDelay = 20 * time.Millisecond

// releaseScript deletes the key only if it still carries our owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client   *redis.Client
	routeTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, routeTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		routeTTL: routeTTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetRoute returns cached trains for a route, or nil on a miss.
func (c *RedisCache) GetRoute(ctx context.Context, source, destination string) ([]domain.Train, error) {
	data, err := c.client.Get(ctx, routeKey(source, destination)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	trains := make([]domain.Train, 0)
	if err := json.Unmarshal(data, &trains); err != nil {
		return nil, err
	}
	return trains, nil
}

func (c *RedisCache) SetRoute(ctx context.Context, source, destination string, trains []domain.Train) error {
	payload, err := json.Marshal(trains)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, routeKey(source, destination), payload, c.routeTTL).Err()
}

func (c *RedisCache) InvalidateRoute(ctx context.Context, source, destination string) error {
	return c.client.Del(ctx, routeKey(source, destination)).Err()
}

// LockTrain takes the cross-process lock for a train, retrying until ctx is
// done. The returned function releases it if we still own it.
func (c *RedisCache) LockTrain(ctx context.Context, trainID int64, ttl time.Duration) (func(context.Context) error, error) {
	key := trainLockKey(trainID)
	owner := uuid.NewString()

	for {
		ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire train lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, c.client, []string{key}, owner).Int()
		if err != nil {
			return fmt.Errorf("release train lock: %w", err)
		}
		if n == 0 {
			return ErrLockNotOwned
		}
		return nil
	}, nil
}

func routeKey(source, destination string) string {
	return "cache:route:" + strconv.Quote(source) + ":" + strconv.Quote(destination)
}

func trainLockKey(trainID int64) string {
	return fmt.Sprintf("lock:train:%d", trainID)
}
