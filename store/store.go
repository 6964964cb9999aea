// Package store 提供 core.Store 的内存与 Redis 实现，用于预测结果缓存。
package store

import (
	"fmt"

	"github.com/rushteam/creditiq/core"
)

// 存储后端
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config 缓存存储配置
type Config struct {
	Backend   string
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// New 按配置创建存储；BackendNone 或空返回 (nil, nil)，表示不启用缓存。
func New(cfg Config) (core.Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		s, err := NewRedisStore(RedisOptions{
			Addr:      cfg.Addr,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
