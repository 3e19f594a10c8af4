// Package filter 是派生查询的结构化谓词模型：每个方法名片段构建为一个或多个 Filter，
// 实参在调用时才绑定，渲染时再根据映射元数据生成 MATCH/WHERE。
package filter

import (
	"errors"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/geo"
)

var (
	// ErrParameterCount 实参个数与声明不一致
	ErrParameterCount = errors.New("filter: parameter count mismatch")
	// ErrUnsupportedPart 片段无法转换为 Filter
	ErrUnsupportedPart = errors.New("filter: unsupported part")
	// ErrNestedOr 跨关系的 Filter 不能用 OR 组合
	ErrNestedOr = errors.New("filter: filters containing nested paths cannot be combined via the logical OR operator")
	// ErrInvalidValue 实参类型不符合比较方式
	ErrInvalidValue = errors.New("filter: invalid value")
)

// Operator 比较方式
type Operator string

const (
	OpEquals           Operator = "EQUALS"
	OpGreaterThan      Operator = "GREATER_THAN"
	OpGreaterThanEqual Operator = "GREATER_THAN_EQUAL"
	OpLessThan         Operator = "LESS_THAN"
	OpLessThanEqual    Operator = "LESS_THAN_EQUAL"
	OpLike             Operator = "LIKE"
	OpStartingWith     Operator = "STARTING_WITH"
	OpEndingWith       Operator = "ENDING_WITH"
	OpContaining       Operator = "CONTAINING"
	OpIn               Operator = "IN"
	OpIsNull           Operator = "IS_NULL"
	OpIsTrue           Operator = "IS_TRUE"
	OpIsFalse          Operator = "IS_FALSE"
	OpExists           Operator = "EXISTS"
	OpIsEmpty          Operator = "IS_EMPTY"
	OpMatches          Operator = "MATCHES"
	OpDistance         Operator = "DISTANCE"
)

// BooleanOperator 与前一个 Filter 的连接方式，第一个 Filter 为 None
type BooleanOperator string

const (
	None BooleanOperator = ""
	And  BooleanOperator = "AND"
	Or   BooleanOperator = "OR"
)

// Hop 是嵌套 Filter 经过的一段关系
type Hop struct {
	Type      string // 动态关系为空
	Direction mapping.Direction
	Target    *mapping.NodeDescription
}

// Distance 距离比较的参数，单位米
type Distance struct {
	Center geo.Point
	Meters float64
}

// Filter 是一个绑定了值的谓词
type Filter struct {
	PropertyName    string
	Operator        Operator
	Value           any
	BooleanOperator BooleanOperator
	Negated         bool
	IgnoreCase      bool
	// CollectionProperty 属性本身是列表，Containing 变为成员判断
	CollectionProperty bool
	// InternalID 比较的是 id(节点) 而不是属性
	InternalID bool
	// NestedPath 非空表示谓词作用在关系另一端的节点上
	NestedPath []Hop
	Owner      *mapping.NodeDescription
	Distance   *Distance
}

// IsNested 是否跨关系
func (f *Filter) IsNested() bool {
	return len(f.NestedPath) > 0
}

// Filters 按声明顺序排列
type Filters []*Filter

// HasNested 是否包含跨关系的 Filter
func (fs Filters) HasNested() bool {
	for _, f := range fs {
		if f.IsNested() {
			return true
		}
	}
	return false
}

// HasOr 是否包含 OR 连接
func (fs Filters) HasOr() bool {
	for _, f := range fs {
		if f.BooleanOperator == Or {
			return true
		}
	}
	return false
}
