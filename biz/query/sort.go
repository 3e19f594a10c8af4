package query

import "strings"

// Direction 排序方向
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Order 是一个排序项。Property 可以是属性路径（name、hobbies.name），
// 也可以是函数调用形式（toLower(name)）。
type Order struct {
	Property   string
	Direction  Direction
	IgnoreCase bool
}

// AscOrder 升序
func AscOrder(property string) Order { return Order{Property: property} }

// DescOrder 降序
func DescOrder(property string) Order { return Order{Property: property, Direction: Desc} }

// Sort 是有序的排序项列表，nil 表示不排序
type Sort []Order

// By 按给定属性升序
func By(properties ...string) Sort {
	s := make(Sort, 0, len(properties))
	for _, p := range properties {
		s = append(s, AscOrder(p))
	}
	return s
}

// ByOrders 由排序项构建
func ByOrders(orders ...Order) Sort {
	return append(Sort{}, orders...)
}

// And 追加另一个排序
func (s Sort) And(other Sort) Sort {
	out := make(Sort, 0, len(s)+len(other))
	out = append(out, s...)
	return append(out, other...)
}

// IsSorted 是否包含排序项
func (s Sort) IsSorted() bool {
	return len(s) > 0
}

// String 输出 `a ASC, b DESC` 形式
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		parts[i] = o.Property + " " + o.Direction.String()
	}
	return strings.Join(parts, ", ")
}
