package neo4jdal

import "errors"

var (
	// ErrNotFound 表示在数据库中未找到请求的记录。
	ErrNotFound = errors.New("neo4jdal: record not found")
	// ErrUnexpectedResult 事务返回了非预期的结果类型，或计数查询没有返回数值
	ErrUnexpectedResult = errors.New("neo4jdal: unexpected result")
)
