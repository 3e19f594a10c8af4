package cache

import "errors"

var (
	// ErrNotFound 实体不在缓存中（布隆过滤器判定不存在或 redis 没有该 key），调用方应回源数据库
	ErrNotFound = errors.New("cache: key not found")

	// ErrNilValue 缓存中记录了"该 ID 没有实体"，仓库据此直接返回未找到，不再查询数据库
	ErrNilValue = errors.New("cache: stored nil value")

	// ErrNilClient 创建 Store 时没有提供 redis 客户端
	ErrNilClient = errors.New("cache: redis client cannot be nil")
)
