package legacy

import "errors"

var (
	// ErrOrNotSupported START/WHERE 模型无法表达 Or 组合
	ErrOrNotSupported = errors.New("legacy: Or is not supported by the start/match/where builder")
	// ErrUnsupportedPart 片段的比较类型无法落到任何子句上
	ErrUnsupportedPart = errors.New("legacy: unsupported part")
	// ErrUnknownParameter 参数下标没有对应的子句
	ErrUnknownParameter = errors.New("legacy: unknown parameter index")
	// ErrParameterCount 实参个数与占位符个数不一致
	ErrParameterCount = errors.New("legacy: parameter count mismatch")
	// ErrInvalidValue 实参无法转换为索引查询
	ErrInvalidValue = errors.New("legacy: invalid parameter value")
)
