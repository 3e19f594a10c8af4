package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

const tagName = "graph"

// Labeled 可由实体实现，用于声明主标签和附加标签。
// 未实现时主标签为类型名。
type Labeled interface {
	NodeLabels() []string
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	labeledType = reflect.TypeOf((*Labeled)(nil)).Elem()
)

// tagOptions 是 `graph:"name,opt,opt=value"` 的解析结果
type tagOptions struct {
	name      string
	skip      bool
	id        bool
	internal  bool
	uuid      bool
	index     bool
	indexName string
	fullText  bool
	spatial   bool
	unique    bool
	labels    bool
	relType   string
	hasRel    bool
	direction string
}

func parseTag(tag string) tagOptions {
	var opts tagOptions
	if tag == "-" {
		opts.skip = true
		return opts
	}
	parts := strings.Split(tag, ",")
	opts.name = strings.TrimSpace(parts[0])
	for _, raw := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(raw), "=")
		switch key {
		case "id":
			opts.id = true
		case "internal":
			opts.internal = true
		case "uuid":
			opts.uuid = true
		case "index":
			opts.index = true
			opts.indexName = value
		case "fulltext":
			opts.index = true
			opts.fullText = true
			opts.indexName = value
		case "spatial":
			opts.index = true
			opts.spatial = true
			opts.indexName = value
		case "unique":
			opts.unique = true
		case "labels":
			opts.labels = true
		case "rel":
			opts.hasRel = true
			opts.relType = value
		case "dir":
			opts.direction = value
		}
	}
	return opts
}

type scannedField struct {
	field reflect.StructField
	index []int
}

// collectFields 展开匿名嵌入字段，相当于继承层次中的全部字段
func collectFields(t reflect.Type, prefix []int) []scannedField {
	var out []scannedField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		idx := append(append([]int{}, prefix...), i)
		if f.Anonymous && f.Tag.Get(tagName) == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				out = append(out, collectFields(ft, idx)...)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		out = append(out, scannedField{field: f, index: idx})
	}
	return out
}

// isEntityType 判断类型能否作为关系目标：非 time.Time 的结构体或其指针
func isEntityType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

// associationTarget 返回关联字段的目标类型；dynamic 表示 map[string]X 形式的动态关系
func associationTarget(t reflect.Type) (target reflect.Type, dynamic bool, ok bool) {
	switch t.Kind() {
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, false, false
		}
		elem := t.Elem()
		if elem.Kind() == reflect.Slice {
			elem = elem.Elem()
		}
		if isEntityType(elem) {
			return derefType(elem), true, true
		}
	case reflect.Slice:
		if isEntityType(t.Elem()) {
			return derefType(t.Elem()), false, true
		}
	default:
		if isEntityType(t) {
			return derefType(t), false, true
		}
	}
	return nil, false, false
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// lowerFirst 把 Go 导出字段名转为图属性名，例如 Name -> name, ID -> id
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if strings.ToUpper(s) == s {
		return strings.ToLower(s)
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// upperSnake 生成默认关系类型，例如 bestFriends -> BEST_FRIENDS
func upperSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func labelsOf(t reflect.Type) []string {
	if reflect.PointerTo(t).Implements(labeledType) {
		if l, ok := reflect.New(t).Interface().(Labeled); ok {
			return l.NodeLabels()
		}
	}
	return nil
}

// scanType 从结构体定义构建 NodeDescription，不做跨实体校验
func scanType(t reflect.Type) (*NodeDescription, error) {
	t = derefType(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrMapping, t)
	}

	nd := newNodeDescription(t.Name())
	nd.GoType = t
	if labels := labelsOf(t); len(labels) > 0 {
		nd.PrimaryLabel = labels[0]
		nd.AdditionalLabels = append([]string{}, labels[1:]...)
	} else {
		nd.PrimaryLabel = t.Name()
	}

	fields := collectFields(t, nil)
	explicitID := false
	for _, sf := range fields {
		if parseTag(sf.field.Tag.Get(tagName)).id {
			explicitID = true
			break
		}
	}

	for _, sf := range fields {
		opts := parseTag(sf.field.Tag.Get(tagName))
		if opts.skip {
			continue
		}
		name := opts.name
		if name == "" {
			name = lowerFirst(sf.field.Name)
		}
		p := &PersistentProperty{
			FieldName:     sf.field.Name,
			PropertyName:  name,
			GoType:        sf.field.Type,
			Indexed:       opts.index,
			IndexName:     opts.indexName,
			FullText:      opts.fullText,
			Spatial:       opts.spatial,
			Unique:        opts.unique,
			DynamicLabels: opts.labels,
			fieldIndex:    sf.index,
		}

		isID := opts.id || (!explicitID && sf.field.Name == "ID")
		if isID {
			p.IsID = true
			switch {
			case opts.internal:
				if opts.name != "" {
					return nil, fmt.Errorf("%w: Cannot use internal id strategy with custom property %s on entity %s",
						ErrMapping, opts.name, nd.Name)
				}
				nd.ID = IDDescription{Strategy: IDInternal}
			case opts.uuid:
				nd.ID = IDDescription{Strategy: IDUUID, PropertyName: name}
			default:
				nd.ID = IDDescription{Strategy: IDAssigned, PropertyName: name}
			}
			nd.addProperty(p)
			continue
		}

		if !opts.labels {
			if target, dynamic, ok := associationTarget(sf.field.Type); ok {
				if dynamic && opts.relType != "" {
					return nil, fmt.Errorf("%w: Dynamic relationships cannot be used with a fixed type. Omit rel= or use dir=%s on %s.%s",
						ErrMapping, ParseDirection(opts.direction), nd.Name, sf.field.Name)
				}
				rel := &RelationshipDescription{
					FieldName:  sf.field.Name,
					Direction:  ParseDirection(opts.direction),
					Dynamic:    dynamic,
					targetType: target,
				}
				if !dynamic {
					rel.Type = opts.relType
					if rel.Type == "" {
						rel.Type = upperSnake(name)
					}
				}
				p.Relationship = rel
			}
		}
		nd.addProperty(p)
	}

	if nd.idProperty == nil {
		return nil, fmt.Errorf("%w: entity %s has no id property", ErrMapping, nd.Name)
	}
	return nd, nil
}
