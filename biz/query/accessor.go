package query

import "fmt"

// Param 是按名称绑定的参数，用于字符串查询中的 $name
type Param struct {
	Name  string
	Value any
}

// Named 创建命名参数
func Named(name string, value any) Param {
	return Param{Name: name, Value: value}
}

// ParameterAccessor 包装一次方法调用的实参。
// Sort 和 *Pageable 类型的实参是特殊参数，不参与占位符绑定。
type ParameterAccessor struct {
	base     Sort
	values   []any
	named    map[string]any
	sort     Sort
	pageable *Pageable
}

// NewParameterAccessor 按调用顺序解析实参
func NewParameterAccessor(args ...any) *ParameterAccessor {
	a := &ParameterAccessor{named: make(map[string]any)}
	for _, arg := range args {
		switch v := arg.(type) {
		case Sort:
			a.sort = a.sort.And(v)
		case Order:
			a.sort = append(a.sort, v)
		case *Pageable:
			a.pageable = v
		case Param:
			a.named[v.Name] = v.Value
			a.values = append(a.values, v.Value)
		default:
			a.values = append(a.values, arg)
		}
	}
	return a
}

// Values 参与绑定的实参（按位置）
func (a *ParameterAccessor) Values() []any {
	return a.values
}

// Value 按位置取实参
func (a *ParameterAccessor) Value(i int) (any, error) {
	if i < 0 || i >= len(a.values) {
		return nil, fmt.Errorf("query: parameter index %d out of range (%d values)", i, len(a.values))
	}
	return a.values[i], nil
}

// Parameters 返回字符串查询的参数 map：命名参数用名字，其余用位置下标
func (a *ParameterAccessor) Parameters() map[string]any {
	params := make(map[string]any, len(a.values))
	for i, v := range a.values {
		params[fmt.Sprint(i)] = v
	}
	for k, v := range a.named {
		params[k] = v
	}
	return params
}

// WithSort 设置方法名中声明的排序，它排在所有调用时传入的排序之前
func (a *ParameterAccessor) WithSort(base Sort) *ParameterAccessor {
	a.base = base
	return a
}

// Sort 依次合并方法名排序、分页参数的排序和单独传入的排序
func (a *ParameterAccessor) Sort() Sort {
	sort := a.base
	if a.pageable != nil {
		sort = sort.And(a.pageable.Sort)
	}
	sort = sort.And(a.sort)
	if !sort.IsSorted() {
		return nil
	}
	return sort
}

// Pageable 分页参数，可能为 nil
func (a *ParameterAccessor) Pageable() *Pageable {
	return a.pageable
}
