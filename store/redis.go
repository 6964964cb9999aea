package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/creditiq/core"
)

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // 所有 key 的前缀，例如 "creditiq:"
}

// RedisStore 是 Redis 实现的 Store，多实例部署时共享预测缓存。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储，连接失败时返回错误。
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis ping failed", err)
	}
	return &RedisStore{client: client, prefix: opts.KeyPrefix}, nil
}

// NewRedisStoreFromClient 使用已有的 client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Ping 检查连接，用于就绪探针
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ core.Store = (*RedisStore)(nil)
