package mapping

import "errors"

var (
	// ErrMapping 表示实体元数据不合法（重复属性、动态关系冲突、ID 策略错误等）。
	// 这类错误属于编程错误，在注册实体时暴露。
	ErrMapping = errors.New("mapping: invalid entity definition")

	// ErrUnknownEntity 表示请求的实体类型没有注册到 Context。
	ErrUnknownEntity = errors.New("mapping: unknown entity")

	// ErrUnknownProperty 表示属性路径无法在实体上解析。
	ErrUnknownProperty = errors.New("mapping: unknown property")
)
