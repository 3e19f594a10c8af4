package part

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidMethodName 方法名无法解析为派生查询
var ErrInvalidMethodName = errors.New("part: invalid derived query method name")

// Subject 方法名前缀决定的查询主语
type Subject int

const (
	SubjectFind Subject = iota
	SubjectStream
	SubjectCount
	SubjectExists
	SubjectDelete
)

func (s Subject) String() string {
	switch s {
	case SubjectStream:
		return "stream"
	case SubjectCount:
		return "count"
	case SubjectExists:
		return "exists"
	case SubjectDelete:
		return "delete"
	default:
		return "find"
	}
}

// Part 是一个谓词片段，例如 AgeGreaterThan
type Part struct {
	Property   string // 属性路径，首字母小写，例如 age、addressCity
	Type       Type
	IgnoreCase bool
}

func (p Part) String() string {
	return p.Property + " " + p.Type.String()
}

// Order 方法名中 OrderBy 声明的排序
type Order struct {
	Property string
	Desc     bool
}

// Tree 是解析后的方法名。Ors 中每个元素是一组 And 连接的片段。
type Tree struct {
	MethodName    string
	Subject       Subject
	Distinct      bool
	Limit         int // 0 表示不限制
	Ors           [][]Part
	Sort          []Order
	AllIgnoreCase bool
}

// Parts 按声明顺序展开全部片段
func (t *Tree) Parts() []Part {
	var out []Part
	for _, and := range t.Ors {
		out = append(out, and...)
	}
	return out
}

// NumberOfArguments 所有片段需要的实参总数
func (t *Tree) NumberOfArguments() int {
	n := 0
	for _, p := range t.Parts() {
		n += p.Type.NumberOfArguments()
	}
	return n
}

// IsOr 是否包含 Or 组合
func (t *Tree) IsOr() bool {
	return len(t.Ors) > 1
}

var (
	prefixPattern = regexp.MustCompile(`^(find|read|get|query|search|stream|count|exists|delete|remove)(\p{Lu}[\p{L}\d]*?)??(By|$)`)
	limitPattern  = regexp.MustCompile(`(First|Top)(\d*)`)
)

// Parse 解析派生查询方法名
func Parse(methodName string) (*Tree, error) {
	m := prefixPattern.FindStringSubmatchIndex(methodName)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethodName, methodName)
	}
	tree := &Tree{MethodName: methodName}
	switch methodName[m[2]:m[3]] {
	case "stream":
		tree.Subject = SubjectStream
	case "count":
		tree.Subject = SubjectCount
	case "exists":
		tree.Subject = SubjectExists
	case "delete", "remove":
		tree.Subject = SubjectDelete
	default:
		tree.Subject = SubjectFind
	}

	if m[4] >= 0 {
		subject := methodName[m[4]:m[5]]
		tree.Distinct = strings.Contains(subject, "Distinct")
		if lm := limitPattern.FindStringSubmatch(subject); lm != nil {
			tree.Limit = 1
			if lm[2] != "" {
				n, err := strconv.Atoi(lm[2])
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("%w: invalid limit in %s", ErrInvalidMethodName, methodName)
				}
				tree.Limit = n
			}
		}
	}

	hasBy := m[6] >= 0 && methodName[m[6]:m[7]] == "By"
	predicate := methodName[m[1]:]
	if !hasBy {
		if predicate != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMethodName, methodName)
		}
		return tree, nil
	}
	if predicate == "" {
		return nil, fmt.Errorf("%w: empty predicate in %s", ErrInvalidMethodName, methodName)
	}

	if i := strings.Index(predicate, "OrderBy"); i >= 0 {
		orders, err := parseOrderBy(predicate[i+len("OrderBy"):])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMethodName, methodName, err)
		}
		tree.Sort = orders
		predicate = predicate[:i]
	}
	for _, suffix := range []string{"AllIgnoreCase", "AllIgnoringCase"} {
		if strings.HasSuffix(predicate, suffix) {
			tree.AllIgnoreCase = true
			predicate = strings.TrimSuffix(predicate, suffix)
			break
		}
	}
	if predicate == "" {
		// findAllByOrderByName 这类写法没有谓词
		return tree, nil
	}

	for _, orPart := range splitKeyword(predicate, "Or") {
		var ands []Part
		for _, raw := range splitKeyword(orPart, "And") {
			p, err := parsePart(raw, tree.AllIgnoreCase)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMethodName, methodName, err)
			}
			ands = append(ands, p)
		}
		tree.Ors = append(tree.Ors, ands)
	}
	return tree, nil
}

func parsePart(raw string, allIgnoreCase bool) (Part, error) {
	if raw == "" {
		return Part{}, errors.New("empty part")
	}
	p := Part{Type: SimpleProperty, IgnoreCase: allIgnoreCase}
	for _, suffix := range []string{"IgnoreCase", "IgnoringCase"} {
		if strings.HasSuffix(raw, suffix) && len(raw) > len(suffix) {
			p.IgnoreCase = true
			raw = strings.TrimSuffix(raw, suffix)
			break
		}
	}
	property := raw
	for _, kw := range sortedKeywords {
		if strings.HasSuffix(raw, kw.text) && len(raw) > len(kw.text) {
			p.Type = kw.typ
			property = strings.TrimSuffix(raw, kw.text)
			break
		}
	}
	if property == "" {
		return Part{}, fmt.Errorf("part %q has no property", raw)
	}
	p.Property = lowerFirst(property)
	return p, nil
}

// splitKeyword 在关键字处切分，关键字后必须紧跟大写字母，避免切开 Order、Android 这类单词
func splitKeyword(s, kw string) []string {
	var out []string
	start := 0
	for i := 1; i+len(kw) <= len(s); i++ {
		if !strings.HasPrefix(s[i:], kw) {
			continue
		}
		// 结尾的关键字留下一个空片段，由调用方报错
		if i+len(kw) == len(s) || unicode.IsUpper(rune(s[i+len(kw)])) {
			out = append(out, s[start:i])
			start = i + len(kw)
			i = start
		}
	}
	return append(out, s[start:])
}

func parseOrderBy(s string) ([]Order, error) {
	var orders []Order
	for s != "" {
		idx, dirLen, desc := -1, 0, false
		for i := 1; i < len(s); i++ {
			for _, d := range []string{"Asc", "Desc"} {
				if !strings.HasPrefix(s[i:], d) {
					continue
				}
				end := i + len(d)
				if end == len(s) || unicode.IsUpper(rune(s[end])) {
					idx, dirLen, desc = i, len(d), d == "Desc"
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		if idx < 0 {
			orders = append(orders, Order{Property: lowerFirst(s)})
			break
		}
		orders = append(orders, Order{Property: lowerFirst(s[:idx]), Desc: desc})
		s = s[idx+dirLen:]
	}
	if len(orders) == 0 {
		return nil, errors.New("empty OrderBy")
	}
	return orders, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
