package cache

import (
	"context"
	"time"
)

// Cache 定义了一个通用的缓存操作接口，支持泛型。
// T 代表需要缓存的数据类型。
type Cache[T any] interface {
	// Get 从缓存中获取指定 key 的值。
	// 如果缓存未命中，应返回 ErrNotFound。
	// 如果缓存了空值，应返回 ErrNilValue。
	Get(ctx context.Context, key string) (T, error)

	// Set 将键值对存入缓存，并设置过期时间。
	// 实现应处理 TTL 和 TTL Jitter。
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// SetNil 缓存一个空值，表示数据库中不存在该记录（防止缓存穿透）。
	SetNil(ctx context.Context, key string) error

	// Delete 从缓存中删除指定的 key。
	Delete(ctx context.Context, key string) error
}

// Invalidator 只负责删除 key，用于跨实例的缓存失效
type Invalidator interface {
	Delete(ctx context.Context, key string) error
}
