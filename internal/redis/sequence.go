package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const sequencePrefix = "qrinv_seq:"

// NextSequence returns the next value of a monotonic counter.
func (r *Redis) NextSequence(ctx context.Context, name string) (int64, error) {
	return r.Client.Incr(ctx, sequencePrefix+name).Result()
}

// EnsureSequenceAtLeast raises the counter to floor if it is behind, e.g.
// when redis was flushed but the store already holds higher values.
func (r *Redis) EnsureSequenceAtLeast(ctx context.Context, name string, floor int64) error {
	key := sequencePrefix + name
	return r.Client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != "" {
			n, err := strconv.ParseInt(current, 10, 64)
			if err != nil {
				return err
			}
			if n >= floor {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, floor, 0)
			return nil
		})
		return err
	}, key)
}
