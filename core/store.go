package core

import (
	"context"
	"time"
)

// Store 是缓存存储的领域接口。
//
// 使用场景：
//   - 预测结果缓存：推理是确定性的，相同向量可复用上次结果
//
// 实现：
//   - store.MemoryStore 实现此接口
//   - store.RedisStore 实现此接口
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// Close 关闭连接/释放资源
	Close() error
}
