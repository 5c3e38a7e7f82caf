package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisKV stores values in one hash and indexes keys in a sorted set with
// equal scores, so ZRANGEBYLEX gives ordered prefix scans.
type RedisKV struct {
	client *redis.Client
	values string
	index  string
}

// NewRedisKV creates a KV under namespace (e.g. "edutrack:kv").
func NewRedisKV(client *redis.Client, namespace string) *RedisKV {
	if namespace == "" {
		namespace = "edutrack:kv"
	}
	return &RedisKV{client: client, values: namespace + ":values", index: namespace + ":keys"}
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("key required")
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.values, key, value)
		p.ZAdd(ctx, r.index, redis.Z{Score: 0, Member: key})
		return nil
	})
	return err
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.HGet(ctx, r.values, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, err
}

func (r *RedisKV) Scan(ctx context.Context, prefix string) ([]Pair, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng = &redis.ZRangeBy{Min: "[" + prefix, Max: "(" + prefix + "\xff"}
	}
	keys, err := r.client.ZRangeByLex(ctx, r.index, rng).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Pair, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.client.HMGet(ctx, r.values, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, Pair{Key: keys[i], Value: []byte(s)})
	}
	return out, nil
}
