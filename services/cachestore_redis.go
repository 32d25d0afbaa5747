package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisCacheKey = "wechat-publisher:upload-cache"

// RedisStore 以 redis hash 保存缓存，字段为内容哈希
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		key: redisCacheKey,
	}
}

func (s *RedisStore) Load() (map[string]Asset, error) {
	raw, err := s.rdb.HGetAll(context.Background(), s.key).Result()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]Asset, len(raw))
	for hash, value := range raw {
		var a Asset
		if err := json.Unmarshal([]byte(value), &a); err != nil {
			return nil, fmt.Errorf("decode cache entry %s: %w", hash, err)
		}
		entries[hash] = a
	}
	return entries, nil
}

func (s *RedisStore) Save(entries map[string]Asset) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(entries))
	for hash, a := range entries {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		values[hash] = string(data)
	}
	return s.rdb.HSet(context.Background(), s.key, values).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
