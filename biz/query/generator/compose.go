package generator

import (
	"fmt"
	"strings"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/filter"
)

// Mode 决定 Filter 查询的返回形态
type Mode int

const (
	ModeLoad Mode = iota
	ModeCount
	ModeDelete
	ModeDeleteIDs
)

// LoadOptions Filter 查询的附加参数
type LoadOptions struct {
	Mode       Mode
	Sort       query.Sort
	Pagination *query.Pagination
	Limit      int // First/TopN，Pagination 存在时忽略
	Distinct   bool
}

// FilterQuery 把 Filters 组装为完整语句
func (g *Generator) FilterQuery(nd *mapping.NodeDescription, filters filter.Filters, opts LoadOptions) (string, map[string]any, error) {
	stmt, err := filter.Render(nd, filters, filter.Options{Style: g.style, Variable: RootNode})
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString(stmt.Cypher)
	n := RootNode

	switch opts.Mode {
	case ModeCount:
		fmt.Fprintf(&b, " RETURN count(DISTINCT %s) AS %s", n, ColumnCount)
		return b.String(), stmt.Parameters, nil
	case ModeDelete:
		fmt.Fprintf(&b, " DETACH DELETE %s RETURN count(*) AS %s", n, ColumnCount)
		return b.String(), stmt.Parameters, nil
	case ModeDeleteIDs:
		fmt.Fprintf(&b, " WITH %s, %s AS %s DETACH DELETE %s RETURN %s", n, IDExpression(n, nd), ColumnID, n, ColumnID)
		return b.String(), stmt.Parameters, nil
	}

	items, err := ToSortItems(nd, opts.Sort)
	if err != nil {
		return "", nil, err
	}
	patterns := SortPatterns(nd, items)
	distinct := opts.Distinct || filters.HasNested()
	if len(patterns) > 0 {
		b.WriteString(" " + strings.Join(patterns, " "))
		// 跨关系排序会产生重复行，先在 WITH 中排序再去重
		b.WriteString(" WITH " + n + " " + OrderBy(items))
		b.WriteString(" RETURN DISTINCT " + n)
	} else {
		if distinct {
			b.WriteString(" RETURN DISTINCT " + n)
		} else {
			b.WriteString(" RETURN " + n)
		}
		if order := OrderBy(items); order != "" {
			b.WriteString(" " + order)
		}
	}
	switch {
	case opts.Pagination != nil:
		fmt.Fprintf(&b, " SKIP %d LIMIT %d", opts.Pagination.Offset, opts.Pagination.Limit)
	case opts.Limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	return b.String(), stmt.Parameters, nil
}
