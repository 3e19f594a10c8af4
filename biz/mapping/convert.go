package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrConversion 表示图属性值无法写入结构体字段
var ErrConversion = errors.New("mapping: value conversion failed")

// ToProperties 把实体转换为写入图数据库的属性 map。
// 内部 ID、关联字段和动态标签字段不会出现在结果中。
func (c *Context) ToProperties(entity any) (map[string]any, error) {
	nd, v, err := c.entityValue(entity)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any)
	for _, p := range nd.GraphProperties() {
		if p.DynamicLabels || (p.IsID && nd.IsUsingInternalIDs()) {
			continue
		}
		fv, ok := fieldByIndex(v, p.fieldIndex)
		if !ok {
			continue
		}
		props[p.PropertyName] = toGraphValue(fv)
	}
	return props, nil
}

// ExtraLabels 返回实体动态标签字段的值
func (c *Context) ExtraLabels(entity any) ([]string, error) {
	nd, v, err := c.entityValue(entity)
	if err != nil {
		return nil, err
	}
	for _, p := range nd.GraphProperties() {
		if !p.DynamicLabels {
			continue
		}
		fv, ok := fieldByIndex(v, p.fieldIndex)
		if !ok {
			return nil, nil
		}
		labels, ok := fv.Interface().([]string)
		if !ok {
			return nil, fmt.Errorf("%w: labels field %s.%s must be []string", ErrMapping, nd.Name, p.FieldName)
		}
		return labels, nil
	}
	return nil, nil
}

// Populate 把节点写回 dst，dst 必须是已注册实体的非 nil 指针
func (c *Context) Populate(node GraphNode, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: populate target must be a non-nil pointer, got %T", ErrConversion, dst)
	}
	nd, err := c.NodeDescription(rv.Type())
	if err != nil {
		return err
	}
	v := rv.Elem()

	for _, p := range nd.GraphProperties() {
		fv := fieldByIndexAlloc(v, p.fieldIndex)
		switch {
		case p.IsID && nd.IsUsingInternalIDs():
			err = assignValue(fv, node.ID)
		case p.DynamicLabels:
			err = assignValue(fv, extraLabels(nd, node.Labels))
		default:
			raw, ok := node.Props[p.PropertyName]
			if !ok {
				continue
			}
			err = assignValue(fv, raw)
		}
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrConversion, nd.Name, p.FieldName, err)
		}
	}
	return nil
}

// IDValue 返回实体的 ID，零值返回 nil（表示尚未持久化）
func (c *Context) IDValue(entity any) (any, error) {
	nd, v, err := c.entityValue(entity)
	if err != nil {
		return nil, err
	}
	fv, ok := fieldByIndex(v, nd.idProperty.fieldIndex)
	if !ok || fv.IsZero() {
		return nil, nil
	}
	return toGraphValue(fv), nil
}

// SetID 把生成的 ID 写回实体
func (c *Context) SetID(entity any, id any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: SetID target must be a non-nil pointer, got %T", ErrConversion, entity)
	}
	nd, err := c.NodeDescription(rv.Type())
	if err != nil {
		return err
	}
	return assignValue(fieldByIndexAlloc(rv.Elem(), nd.idProperty.fieldIndex), id)
}

func (c *Context) entityValue(entity any) (*NodeDescription, reflect.Value, error) {
	nd, err := c.NodeDescription(entity)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	if nd.GoType == nil {
		return nil, reflect.Value{}, fmt.Errorf("%w: entity %s has no Go type", ErrConversion, nd.Name)
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, reflect.Value{}, fmt.Errorf("%w: nil %s", ErrConversion, nd.Name)
		}
		v = v.Elem()
	}
	return nd, v, nil
}

func extraLabels(nd *NodeDescription, labels []string) []string {
	static := make(map[string]struct{})
	for _, l := range nd.AllLabels() {
		static[l] = struct{}{}
	}
	out := []string{}
	for _, l := range labels {
		if _, ok := static[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}

// fieldByIndex 只读访问，嵌入指针为 nil 时返回 false
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// fieldByIndexAlloc 写访问，按需分配嵌入指针
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// toGraphValue 把字段值规整为驱动可接受的类型
func toGraphValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return toGraphValue(v.Elem())
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
			return v.Bytes()
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = toGraphValue(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}

func assignValue(dst reflect.Value, raw any) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(raw)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		ptr := reflect.New(dst.Type().Elem())
		if err := assignValue(ptr.Elem(), raw); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	case reflect.String:
		if s, ok := raw.(string); ok {
			dst.SetString(s)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := toInt64(raw); ok {
			dst.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := toInt64(raw); ok && n >= 0 {
			dst.SetUint(uint64(n))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := toFloat64(raw); ok {
			dst.SetFloat(f)
			return nil
		}
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			dst.SetBool(b)
			return nil
		}
	case reflect.Slice:
		if src.Kind() == reflect.Slice || src.Kind() == reflect.Array {
			out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
			for i := 0; i < src.Len(); i++ {
				if err := assignValue(out.Index(i), src.Index(i).Interface()); err != nil {
					return err
				}
			}
			dst.Set(out)
			return nil
		}
	case reflect.Struct:
		// REST 传输下时间以字符串返回
		if dst.Type() == timeType {
			if s, ok := raw.(string); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return err
				}
				dst.Set(reflect.ValueOf(t))
				return nil
			}
			// 旧式查询按毫秒时间戳写入
			if ms, ok := toInt64(raw); ok {
				dst.Set(reflect.ValueOf(time.UnixMilli(ms).UTC()))
				return nil
			}
		}
	}
	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind() {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", raw, dst.Type())
}

func toInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
