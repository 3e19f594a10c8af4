package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"neo4jogm/biz/mapping"
)

// Style 参数占位符风格
type Style int

const (
	// Bolt 使用 $name
	Bolt Style = iota
	// Rest 使用 {name}，时间按毫秒时间戳传递
	Rest
)

// ParseStyle 解析配置中的写法
func ParseStyle(s string) Style {
	if strings.EqualFold(strings.TrimSpace(s), "rest") {
		return Rest
	}
	return Bolt
}

// Placeholder 按风格输出参数引用
func (s Style) Placeholder(name string) string {
	if s == Rest {
		return "{" + name + "}"
	}
	return "$" + name
}

// Options 渲染选项
type Options struct {
	Style    Style
	Variable string // 根节点变量，默认 n
}

// Statement 是渲染后的 MATCH/WHERE 片段，调用方负责追加 RETURN
type Statement struct {
	Cypher     string
	Parameters map[string]any
	Variable   string
}

var paramNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Render 把 Filters 渲染为 Cypher。根节点上的谓词放在第一个 MATCH 的 WHERE 中，
// 跨关系的谓词按路径分组，每组匹配一个目标节点后再与根节点连接。
func Render(nd *mapping.NodeDescription, filters Filters, opts Options) (Statement, error) {
	v := opts.Variable
	if v == "" {
		v = "n"
	}
	if filters.HasNested() && filters.HasOr() {
		return Statement{}, ErrNestedOr
	}
	r := &renderer{style: opts.Style, params: make(map[string]any)}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (%s:`%s`)", v, nd.PrimaryLabel)

	var root []string
	type group struct {
		variable string
		hops     []Hop
		preds    []string
	}
	var groups []*group
	byPath := make(map[string]*group)

	for i, f := range filters {
		if !f.IsNested() {
			pred, err := r.predicate(v, f, i)
			if err != nil {
				return Statement{}, err
			}
			root = appendPredicate(root, f.BooleanOperator, pred)
			continue
		}
		key := hopsKey(f.NestedPath)
		g, ok := byPath[key]
		if !ok {
			g = &group{variable: fmt.Sprintf("m%d", len(groups)), hops: f.NestedPath}
			byPath[key] = g
			groups = append(groups, g)
		}
		pred, err := r.predicate(g.variable, f, i)
		if err != nil {
			return Statement{}, err
		}
		g.preds = append(g.preds, pred)
	}
	if len(root) > 0 {
		b.WriteString(" WHERE " + strings.Join(root, " "))
	}

	for _, g := range groups {
		target := g.hops[len(g.hops)-1].Target
		fmt.Fprintf(&b, " MATCH (%s:`%s`) WHERE %s", g.variable, target.PrimaryLabel, strings.Join(g.preds, " AND "))
		fmt.Fprintf(&b, " MATCH (%s)%s", v, hopPattern(g.hops, g.variable))
	}
	if len(groups) > 0 {
		b.WriteString(" WITH DISTINCT " + v)
	}
	return Statement{Cypher: b.String(), Parameters: r.params, Variable: v}, nil
}

func appendPredicate(preds []string, op BooleanOperator, pred string) []string {
	if len(preds) == 0 {
		return append(preds, pred)
	}
	if op == None {
		op = And
	}
	return append(preds, string(op), pred)
}

func hopsKey(hops []Hop) string {
	parts := make([]string, len(hops))
	for i, h := range hops {
		parts[i] = fmt.Sprintf("%s/%s/%s", h.Type, h.Direction, h.Target.Name)
	}
	return strings.Join(parts, "|")
}

// hopPattern 中间节点只带标签，最后一个节点绑定到分组变量
func hopPattern(hops []Hop, variable string) string {
	var b strings.Builder
	for i, h := range hops {
		rel := "[]"
		if h.Type != "" {
			rel = "[:`" + h.Type + "`]"
		}
		switch h.Direction {
		case mapping.Incoming:
			b.WriteString("<-" + rel + "-")
		case mapping.Undirected:
			b.WriteString("-" + rel + "-")
		default:
			b.WriteString("-" + rel + "->")
		}
		if i == len(hops)-1 {
			b.WriteString("(" + variable + ")")
		} else {
			b.WriteString("(:`" + h.Target.PrimaryLabel + "`)")
		}
	}
	return b.String()
}

type renderer struct {
	style  Style
	params map[string]any
}

func (r *renderer) bind(name string, value any) string {
	r.params[name] = r.value(value)
	return r.style.Placeholder(name)
}

func (r *renderer) value(v any) any {
	if r.style != Rest {
		return v
	}
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

func (r *renderer) predicate(v string, f *Filter, index int) (string, error) {
	target := fmt.Sprintf("%s.`%s`", v, f.PropertyName)
	name := paramNameSanitizer.ReplaceAllString(f.PropertyName, "_")
	if f.InternalID {
		target = "id(" + v + ")"
		name = "id"
	}
	name = fmt.Sprintf("%s_%d", name, index)

	var expr string
	switch f.Operator {
	case OpEquals:
		if _, ok := f.Value.(string); ok && f.IgnoreCase {
			expr = fmt.Sprintf("toLower(%s) = toLower(%s)", target, r.bind(name, f.Value))
		} else {
			expr = target + " = " + r.bind(name, f.Value)
		}
	case OpGreaterThan:
		expr = target + " > " + r.bind(name, f.Value)
	case OpGreaterThanEqual:
		expr = target + " >= " + r.bind(name, f.Value)
	case OpLessThan:
		expr = target + " < " + r.bind(name, f.Value)
	case OpLessThanEqual:
		expr = target + " <= " + r.bind(name, f.Value)
	case OpLike:
		expr = target + " =~ " + r.bind(name, likeRegex(fmt.Sprint(f.Value), f.IgnoreCase))
	case OpMatches:
		expr = target + " =~ " + r.bind(name, f.Value)
	case OpStartingWith, OpEndingWith, OpContaining:
		if f.Operator == OpContaining && f.CollectionProperty {
			expr = r.bind(name, f.Value) + " IN " + target
			break
		}
		keyword := map[Operator]string{OpStartingWith: "STARTS WITH", OpEndingWith: "ENDS WITH", OpContaining: "CONTAINS"}[f.Operator]
		if f.IgnoreCase {
			expr = fmt.Sprintf("toLower(%s) %s toLower(%s)", target, keyword, r.bind(name, f.Value))
		} else {
			expr = fmt.Sprintf("%s %s %s", target, keyword, r.bind(name, f.Value))
		}
	case OpIn:
		expr = target + " IN " + r.bind(name, f.Value)
	case OpIsNull:
		expr = target + " IS NULL"
	case OpIsTrue:
		expr = target + " = true"
	case OpIsFalse:
		expr = target + " = false"
	case OpExists:
		expr = target + " IS NOT NULL"
	case OpIsEmpty:
		expr = "size(" + target + ") = 0"
	case OpDistance:
		if f.Distance == nil {
			return "", fmt.Errorf("%w: distance filter on %s without center", ErrInvalidValue, f.PropertyName)
		}
		fn := "point.distance"
		if r.style == Rest {
			fn = "distance"
		}
		expr = fmt.Sprintf("%s(%s, point({latitude: %s, longitude: %s})) < %s", fn, target,
			r.bind(name+"_latitude", f.Distance.Center.Lat),
			r.bind(name+"_longitude", f.Distance.Center.Lon),
			r.bind(name+"_distance", f.Distance.Meters))
	default:
		return "", fmt.Errorf("%w: operator %s", ErrUnsupportedPart, f.Operator)
	}
	if f.Negated {
		expr = "NOT(" + expr + ")"
	}
	return expr, nil
}

// likeRegex 把 % 和 * 通配符转为正则，其余字符转义
func likeRegex(s string, ignoreCase bool) string {
	var b strings.Builder
	if ignoreCase {
		b.WriteString("(?i)")
	}
	start := 0
	for i, c := range s {
		if c == '%' || c == '*' {
			b.WriteString(regexp.QuoteMeta(s[start:i]))
			b.WriteString(".*")
			start = i + 1
		}
	}
	b.WriteString(regexp.QuoteMeta(s[start:]))
	return b.String()
}
