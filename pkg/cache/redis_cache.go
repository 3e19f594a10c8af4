package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/willf/bloom"
	"go.uber.org/zap"
)

const (
	// NilValuePlaceholder 用于在 Redis 中标记空值，以区分 key 不存在和 key 存在但值为空。
	NilValuePlaceholder = "__NIL_VALUE__"
	// NilValueTTL 设置空值的较短 TTL，防止长时间缓存不存在的数据。
	NilValueTTL = 5 * time.Minute
	// DefaultTTLJitterPercent 在基础 TTL 上增加 0% 到 10% 的随机时间。
	DefaultTTLJitterPercent = 0.1
)

// Store 持有 redis 连接、key 前缀和布隆过滤器，可被多个类型化的缓存共享。
// 布隆过滤器记录本实例写入过的 key，判定不存在的 key 直接返回未命中，不访问 redis。
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewStore 创建共享存储。estimatedKeys 为 0 时不启用布隆过滤器。
func NewStore(client *redis.Client, prefix string, estimatedKeys uint, fpRate float64, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{client: client, prefix: prefix, logger: logger.Named("cache")}
	if estimatedKeys > 0 {
		if fpRate <= 0 || fpRate >= 1 {
			fpRate = 0.01
		}
		s.filter = bloom.NewWithEstimates(estimatedKeys, fpRate)
	}
	return s, nil
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) mightContain(key string) bool {
	if s.filter == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(key)
}

func (s *Store) remember(key string) {
	if s.filter == nil {
		return
	}
	s.mu.Lock()
	s.filter.AddString(key)
	s.mu.Unlock()
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	if !s.mightContain(key) {
		return nil, ErrNotFound
	}
	k := s.key(key)
	val, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("cache: redis get failed for key %s: %w", k, err)
	}
	if string(val) == NilValuePlaceholder {
		return nil, ErrNilValue
	}
	return val, nil
}

func (s *Store) set(ctx context.Context, key string, data any, ttl time.Duration) error {
	k := s.key(key)
	if err := s.client.Set(ctx, k, data, addJitter(ttl)).Err(); err != nil {
		return fmt.Errorf("cache: redis set failed for key %s: %w", k, err)
	}
	s.remember(key)
	return nil
}

// Delete 删除 key。key 不存在时 Del 同样成功。
func (s *Store) Delete(ctx context.Context, key string) error {
	k := s.key(key)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("cache: redis del failed for key %s: %w", k, err)
	}
	return nil
}

// redisCache 用 sonic 序列化值的类型化缓存
type redisCache[T any] struct {
	store *Store
}

// NewRedisCache 在共享存储上创建类型化缓存
func NewRedisCache[T any](store *Store) Cache[T] {
	return &redisCache[T]{store: store}
}

func (r *redisCache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	val, err := r.store.get(ctx, key)
	if err != nil {
		return zero, err
	}
	var out T
	if err := sonic.Unmarshal(val, &out); err != nil {
		// 数据损坏或类型不匹配，删除后按未命中处理
		if delErr := r.store.Delete(ctx, key); delErr != nil {
			r.store.logger.Warn("删除损坏的缓存数据失败", zap.String("key", key), zap.Error(delErr))
		}
		return zero, fmt.Errorf("cache: failed to unmarshal data for key %s: %w", key, err)
	}
	return out, nil
}

func (r *redisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal data for key %s: %w", key, err)
	}
	return r.store.set(ctx, key, data, ttl)
}

func (r *redisCache[T]) SetNil(ctx context.Context, key string) error {
	return r.store.set(ctx, key, NilValuePlaceholder, NilValueTTL)
}

func (r *redisCache[T]) Delete(ctx context.Context, key string) error {
	return r.store.Delete(ctx, key)
}

// addJitter 为 TTL 增加随机偏移，防止缓存雪崩
func addJitter(baseTTL time.Duration) time.Duration {
	if baseTTL <= 0 {
		return baseTTL // 0 或负数 TTL 通常表示不过期或立即过期，不添加 jitter
	}
	jitter := time.Duration(rand.Float64() * DefaultTTLJitterPercent * float64(baseTTL))
	return baseTTL + jitter
}

var (
	_ Cache[[]byte] = (*redisCache[[]byte])(nil)
	_ Invalidator   = (*Store)(nil)
)
