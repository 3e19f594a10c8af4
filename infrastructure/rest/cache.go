package rest

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultRefetchTime 缓存的实体超过该时间后需要重新获取
const DefaultRefetchTime = 1000 * time.Second

// DefaultMaxEntries 节点和关系各自最多缓存的数量
const DefaultMaxEntries = 100_000

// LoadMode 按 ID 读取实体时如何使用缓存
type LoadMode int

const (
	// LoadDefault 缓存未过期时使用缓存，否则请求服务器
	LoadDefault LoadMode = iota
	// LoadFromCache 只使用缓存，未命中时返回只带 ID 和 URI 的实体，不发请求
	LoadFromCache
	// LoadForceFromServer 总是请求服务器
	LoadForceFromServer
)

// EntityCache 按 ID 缓存节点与关系，按获取时间判断是否过期。
// 存储使用 ristretto，超出 maxEntries 时按访问频率淘汰。
type EntityCache struct {
	nodes   *ristretto.Cache[int64, *RestNode]
	rels    *ristretto.Cache[int64, *RestRelationship]
	refetch time.Duration
	now     func() time.Time
}

// NewEntityCache refetch 不大于 0 时使用 DefaultRefetchTime，maxEntries 不大于 0 时使用 DefaultMaxEntries
func NewEntityCache(refetch time.Duration, maxEntries int64) (*EntityCache, error) {
	if refetch <= 0 {
		refetch = DefaultRefetchTime
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	nodes, err := ristretto.NewCache(&ristretto.Config[int64, *RestNode]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("rest: create node cache: %w", err)
	}
	rels, err := ristretto.NewCache(&ristretto.Config[int64, *RestRelationship]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		nodes.Close()
		return nil, fmt.Errorf("rest: create relationship cache: %w", err)
	}
	return &EntityCache{nodes: nodes, rels: rels, refetch: refetch, now: time.Now}, nil
}

// HasToUpdate 获取时间距今是否超过 refetch
func (c *EntityCache) HasToUpdate(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) > c.refetch
}

// Node 返回未过期的节点
func (c *EntityCache) Node(id int64) (*RestNode, bool) {
	n, ok := c.nodes.Get(id)
	if !ok || c.HasToUpdate(n.fetchedAt) {
		return nil, false
	}
	return n, true
}

// Relationship 返回未过期的关系
func (c *EntityCache) Relationship(id int64) (*RestRelationship, bool) {
	r, ok := c.rels.Get(id)
	if !ok || c.HasToUpdate(r.fetchedAt) {
		return nil, false
	}
	return r, true
}

// AddNode 缓存节点并刷新获取时间，nil 原样返回
func (c *EntityCache) AddNode(n *RestNode) *RestNode {
	if n == nil {
		return nil
	}
	n.fetchedAt = c.now()
	c.nodes.Set(n.ID, n, 1)
	// 写入是异步的，等待后立即可读
	c.nodes.Wait()
	return n
}

// AddRelationship 缓存关系并刷新获取时间
func (c *EntityCache) AddRelationship(r *RestRelationship) *RestRelationship {
	if r == nil {
		return nil
	}
	r.fetchedAt = c.now()
	c.rels.Set(r.ID, r, 1)
	c.rels.Wait()
	return r
}

func (c *EntityCache) RemoveNode(id int64) {
	c.nodes.Del(id)
}

func (c *EntityCache) RemoveRelationship(id int64) {
	c.rels.Del(id)
}

// Clear 清空缓存，写入 Cypher 后调用
func (c *EntityCache) Clear() {
	c.nodes.Clear()
	c.rels.Clear()
}

// Close 停止 ristretto 的后台协程
func (c *EntityCache) Close() {
	c.nodes.Close()
	c.rels.Close()
}
