package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-qrinventory/internal/logger"

	"github.com/go-redis/redis/v8"
)

const lockPrefix = "qrinv_lock:"

type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Redis{Client: client, LockTTL: lockTTL, Logger: log}
}

// Lock takes key for owner until LockTTL passes or Unlock is called.
func (r *Redis) Lock(ctx context.Context, key, owner string) (bool, error) {
	return r.Client.SetNX(ctx, lockPrefix+key, owner, r.LockTTL).Result()
}

// Unlock releases key only if owner still holds it.
func (r *Redis) Unlock(ctx context.Context, key, owner string) error {
	redisKey := lockPrefix + key
	val, err := r.Client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val == owner {
		return r.Client.Del(ctx, redisKey).Err()
	}
	return nil
}

// LockAll takes every key or none of them.
func (r *Redis) LockAll(ctx context.Context, keys []string, owner string) (bool, error) {
	locked := make([]string, 0, len(keys))
	release := func() {
		for _, l := range locked {
			if err := r.Unlock(ctx, l, owner); err != nil && r.Logger != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("failed to release %s: %v", l, err))
			}
		}
	}
	for _, key := range keys {
		ok, err := r.Lock(ctx, key, owner)
		if err != nil {
			release()
			return false, err
		}
		if !ok {
			release()
			return false, nil
		}
		locked = append(locked, key)
	}
	return true, nil
}

func (r *Redis) UnlockAll(ctx context.Context, keys []string, owner string) error {
	var firstErr error
	for _, key := range keys {
		if err := r.Unlock(ctx, key, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
