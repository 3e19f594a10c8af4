package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient 指向一个不可达地址，任何真正到达 redis 的调用都会失败
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNewStore(t *testing.T) {
	t.Run("redis客户端不能为空", func(t *testing.T) {
		_, err := NewStore(nil, "p:", 10, 0.01, nil)
		assert.ErrorIs(t, err, ErrNilClient)
	})

	t.Run("未配置预估数量时不启用布隆过滤器", func(t *testing.T) {
		s, err := NewStore(unreachableClient(), "p:", 0, 0, nil)
		require.NoError(t, err)
		assert.Nil(t, s.filter)
		assert.True(t, s.mightContain("anything"))
	})
}

func TestRedisCache_BloomGuard(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(unreachableClient(), "p:", 1000, 0.001, nil)
	require.NoError(t, err)
	c := NewRedisCache[string](s)

	t.Run("从未写入的key直接未命中", func(t *testing.T) {
		_, err := c.Get(ctx, "Person:1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("写入过的key会访问redis", func(t *testing.T) {
		s.remember("Person:2")
		_, err := c.Get(ctx, "Person:2")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("写入失败不记录key", func(t *testing.T) {
		err := c.Set(ctx, "Person:3", "x", time.Minute)
		require.Error(t, err)
		assert.False(t, s.mightContain("Person:3"))
	})
}

func TestAddJitter(t *testing.T) {
	t.Run("非正数TTL原样返回", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), addJitter(0))
		assert.Equal(t, -time.Second, addJitter(-time.Second))
	})

	t.Run("偏移不超过10%", func(t *testing.T) {
		base := 100 * time.Second
		for i := 0; i < 100; i++ {
			got := addJitter(base)
			assert.GreaterOrEqual(t, got, base)
			assert.LessOrEqual(t, got, base+10*time.Second)
		}
	})
}
