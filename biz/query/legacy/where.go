package legacy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/part"
)

type whereKind int

const (
	propertyWhere  whereKind = iota
	idWhere                  // 内部 ID 或关联目标的 ID
	labelTypeWhere           // `v`:`Label`
	indexTypeWhere           // `v`.__type__ IN ['Name']
)

// WhereClause 是一个 WHERE 谓词
type WhereClause struct {
	kind     whereKind
	info     *PartInfo
	variable string
	entity   *mapping.NodeDescription
}

func newPropertyWhere(pi *PartInfo) (*WhereClause, error) {
	switch pi.Type() {
	case part.Near, part.Within:
		return nil, fmt.Errorf("%w: %s on %s requires a spatial index", ErrUnsupportedPart, pi.Type(), pi.Path())
	}
	return &WhereClause{kind: propertyWhere, info: pi, variable: pi.Variable()}, nil
}

func newIDWhere(pi *PartInfo, target *mapping.NodeDescription) *WhereClause {
	return &WhereClause{kind: idWhere, info: pi, variable: pi.Variable(), entity: target}
}

func newTypeWhere(variable string, nd *mapping.NodeDescription, useLabels bool) *WhereClause {
	kind := indexTypeWhere
	if useLabels {
		kind = labelTypeWhere
	}
	return &WhereClause{kind: kind, variable: variable, entity: nd}
}

// PartInfo 类型限制子句返回 nil
func (w *WhereClause) PartInfo() *PartInfo { return w.info }

func (w *WhereClause) String() string {
	switch w.kind {
	case labelTypeWhere:
		return fmt.Sprintf("`%s`:`%s`", w.variable, w.entity.PrimaryLabel)
	case indexTypeWhere:
		return fmt.Sprintf("`%s`.__type__ IN ['%s']", w.variable, w.entity.Name)
	case idWhere:
		if w.entity.IsUsingInternalIDs() {
			return fmt.Sprintf("id(`%s`) = %s", w.variable, w.info.placeholder(0))
		}
		return fmt.Sprintf("`%s`.`%s` = %s", w.variable, w.entity.IDProperty().PropertyName, w.info.placeholder(0))
	}
	return w.renderProperty()
}

func (w *WhereClause) renderProperty() string {
	pi := w.info
	prop := fmt.Sprintf("`%s`.`%s`", w.variable, pi.Leaf().PropertyName)
	ph := pi.placeholder(0)
	switch pi.Type() {
	case part.SimpleProperty:
		if pi.Part().IgnoreCase {
			return prop + " =~ " + ph
		}
		return prop + " = " + ph
	case part.NegatingSimpleProperty:
		if pi.Part().IgnoreCase {
			return "not( " + prop + " =~ " + ph + " )"
		}
		return prop + " <> " + ph
	case part.GreaterThan, part.After:
		return prop + " > " + ph
	case part.GreaterThanEqual:
		return prop + " >= " + ph
	case part.LessThan, part.Before:
		return prop + " < " + ph
	case part.LessThanEqual:
		return prop + " <= " + ph
	case part.Between:
		return prop + " >= " + ph + " AND " + prop + " <= " + pi.placeholder(1)
	case part.Like, part.StartingWith, part.EndingWith, part.Containing, part.Regex:
		return prop + " =~ " + ph
	case part.NotLike, part.NotContaining:
		return "not( " + prop + " =~ " + ph + " )"
	case part.In:
		return prop + " in " + ph
	case part.NotIn:
		return "not( " + prop + " in " + ph + " )"
	case part.IsNull:
		return prop + " is null"
	case part.IsNotNull:
		return prop + " is not null"
	case part.True:
		return prop + " = true"
	case part.False:
		return prop + " = false"
	case part.Exists:
		return "exists(" + prop + ")"
	case part.IsEmpty:
		return "size(" + prop + ") = 0"
	case part.IsNotEmpty:
		return "size(" + prop + ") > 0"
	}
	return prop + " = " + ph
}

// resolve 按比较类型改写实参
func (w *WhereClause) resolve(params map[string]any, convert func(any) any) error {
	if w.info == nil || w.info.Arity() == 0 {
		return nil
	}
	pi := w.info
	for i := 0; i < pi.Arity(); i++ {
		key := pi.slot(i)
		params[key] = convertValue(convert(params[key]))
	}
	key := pi.slot(0)
	if w.kind != propertyWhere {
		return nil
	}

	ignoreCase := pi.Part().IgnoreCase
	switch pi.Type() {
	case part.SimpleProperty, part.NegatingSimpleProperty:
		if ignoreCase {
			params[key] = "(?i)" + regexp.QuoteMeta(fmt.Sprint(params[key]))
		}
	case part.Like, part.NotLike:
		params[key] = withCase(likePattern(fmt.Sprint(params[key])), ignoreCase)
	case part.StartingWith:
		params[key] = withCase("^"+regexp.QuoteMeta(fmt.Sprint(params[key]))+".*", ignoreCase)
	case part.EndingWith:
		params[key] = withCase(".*"+regexp.QuoteMeta(fmt.Sprint(params[key]))+"$", ignoreCase)
	case part.Containing, part.NotContaining:
		params[key] = withCase(".*"+regexp.QuoteMeta(fmt.Sprint(params[key]))+".*", ignoreCase)
	case part.Regex:
		if _, err := regexp.Compile(strings.TrimPrefix(fmt.Sprint(params[key]), "(?i)")); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, pi.Path(), err)
		}
	}
	return nil
}

// likePattern 只有 % 是通配符，其余字符按字面匹配
func likePattern(s string) string {
	pieces := strings.Split(s, "%")
	for i, p := range pieces {
		pieces[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(pieces, ".*")
}

func withCase(pattern string, ignoreCase bool) string {
	if ignoreCase {
		return "(?i)" + pattern
	}
	return pattern
}

// convertValue 时间按毫秒时间戳传递
func convertValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UnixMilli()
	case []time.Time:
		out := make([]any, len(t))
		for i, tt := range t {
			out[i] = tt.UnixMilli()
		}
		return out
	}
	return v
}
