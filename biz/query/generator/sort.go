package generator

import (
	"fmt"
	"regexp"
	"strings"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
)

// CreateOrderByFragment 按分页参数中的排序原样输出，未排序时返回空串
func CreateOrderByFragment(pageable *query.Pageable) string {
	if pageable == nil || !pageable.Sort.IsSorted() {
		return ""
	}
	return "ORDER BY " + pageable.Sort.String()
}

// SortItem 是一个解析后的排序项
type SortItem struct {
	Expression string // n.name、n_hobbies.name、toLower(n.name)
	Direction  query.Direction
	// Hop 非空表示排序属性在关系另一端，需要 OPTIONAL MATCH
	Hop *mapping.RelationshipDescription
}

func (s SortItem) String() string {
	return s.Expression + " " + s.Direction.String()
}

var functionCall = regexp.MustCompile(`^(\w+)\((.+)\)$`)

// ToSortItems 把排序属性解析为图属性，支持 name、hobbies.name 和 toLower(name)
func ToSortItems(nd *mapping.NodeDescription, sort query.Sort) ([]SortItem, error) {
	items := make([]SortItem, 0, len(sort))
	for _, o := range sort {
		item, err := toSortItem(nd, o)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func toSortItem(nd *mapping.NodeDescription, o query.Order) (SortItem, error) {
	prop, fn := o.Property, ""
	if m := functionCall.FindStringSubmatch(prop); m != nil {
		fn, prop = m[1], strings.TrimSpace(m[2])
	}

	item := SortItem{Direction: o.Direction}
	head, tail, nested := strings.Cut(prop, ".")
	if nested {
		if strings.Contains(tail, ".") {
			return SortItem{}, fmt.Errorf("%w: %s", ErrSortDepth, o.Property)
		}
		assoc, ok := nd.Property(head)
		if !ok || !assoc.IsAssociation() {
			return SortItem{}, fmt.Errorf("%w: '%s'", ErrSortProperty, o.Property)
		}
		leaf, ok := assoc.Relationship.Target.Property(tail)
		if !ok || !leaf.IsPrimitive() {
			return SortItem{}, fmt.Errorf("%w: '%s'", ErrSortProperty, o.Property)
		}
		item.Hop = assoc.Relationship
		item.Expression = propertyRef(RootNode+"_"+assoc.PropertyName, leaf.PropertyName)
	} else {
		p, ok := nd.Property(prop)
		if !ok || !p.IsPrimitive() {
			return SortItem{}, fmt.Errorf("%w: '%s'", ErrSortProperty, o.Property)
		}
		if p.IsID && nd.IsUsingInternalIDs() {
			item.Expression = "id(" + RootNode + ")"
		} else {
			item.Expression = propertyRef(RootNode, p.PropertyName)
		}
	}

	switch {
	case fn != "":
		item.Expression = fn + "(" + item.Expression + ")"
	case o.IgnoreCase:
		item.Expression = "toLower(" + item.Expression + ")"
	}
	return item, nil
}

// SortPatterns 为跨关系的排序项生成 OPTIONAL MATCH
func SortPatterns(nd *mapping.NodeDescription, items []SortItem) []string {
	seen := make(map[*mapping.RelationshipDescription]bool)
	var out []string
	for _, it := range items {
		if it.Hop == nil || seen[it.Hop] {
			continue
		}
		seen[it.Hop] = true
		v := RootNode + "_" + fieldProperty(nd, it.Hop)
		target := NodePattern(v, it.Hop.Target)
		typ := "[]"
		if it.Hop.Type != "" {
			typ = "[:`" + it.Hop.Type + "`]"
		}
		switch it.Hop.Direction {
		case mapping.Incoming:
			out = append(out, fmt.Sprintf("OPTIONAL MATCH (%s)<-%s-%s", RootNode, typ, target))
		case mapping.Undirected:
			out = append(out, fmt.Sprintf("OPTIONAL MATCH (%s)-%s-%s", RootNode, typ, target))
		default:
			out = append(out, fmt.Sprintf("OPTIONAL MATCH (%s)-%s->%s", RootNode, typ, target))
		}
	}
	return out
}

func fieldProperty(nd *mapping.NodeDescription, rel *mapping.RelationshipDescription) string {
	if p, ok := nd.Property(rel.FieldName); ok {
		return p.PropertyName
	}
	return rel.FieldName
}

// OrderBy 拼接 ORDER BY，无排序项时返回空串
func OrderBy(items []SortItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}
