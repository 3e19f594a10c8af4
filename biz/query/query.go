package query

import (
	"fmt"
	"strings"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/filter"
)

// Renderer 由能够自行处理排序和分页的查询实现（例如传统 START/MATCH 查询）
type Renderer interface {
	Render(sort Sort) string
	RenderPage(pageable *Pageable, forSlice bool) string
}

// Query 是一次执行的最终产物：Cypher 文本加参数，或者一组 Filter。
// 每次调用都重新构建，不缓存。
type Query struct {
	Cypher          string
	CountCypher     string
	DeleteIDsCypher string // 删除并返回 ID，为空时 Cypher 本身需要返回 ID 列
	Parameters      map[string]any
	Filters         filter.Filters
	Entity          *mapping.NodeDescription
	// Limit 来自 First/TopN，Distinct 来自 findDistinctBy，仅对 Filter 查询生效
	Limit    int
	Distinct bool

	filterQuery bool
	renderer    Renderer
}

// NewCypherQuery 字符串查询
func NewCypherQuery(cypher, countCypher string, params map[string]any) *Query {
	return &Query{Cypher: cypher, CountCypher: countCypher, Parameters: params}
}

// NewRenderedQuery 由 Renderer 负责排序与分页的查询
func NewRenderedQuery(r Renderer, countCypher string, params map[string]any) *Query {
	return &Query{Cypher: r.Render(nil), CountCypher: countCypher, Parameters: params, renderer: r}
}

// NewFilterQuery 基于 Filter 的查询
func NewFilterQuery(nd *mapping.NodeDescription, filters filter.Filters) *Query {
	return &Query{Filters: filters, Entity: nd, filterQuery: true}
}

// IsFilterQuery 是否为 Filter 查询
func (q *Query) IsFilterQuery() bool {
	return q.filterQuery
}

// CypherQuery 追加排序
func (q *Query) CypherQuery(sort Sort) string {
	if q.renderer != nil {
		return q.renderer.Render(sort)
	}
	if !sort.IsSorted() {
		return q.Cypher
	}
	return q.Cypher + " ORDER BY " + sort.String()
}

// PagedCypherQuery 追加排序与 SKIP/LIMIT，切片查询多取一条
func (q *Query) PagedCypherQuery(pageable *Pageable, forSlice bool) string {
	if q.renderer != nil {
		return q.renderer.RenderPage(pageable, forSlice)
	}
	if pageable == nil {
		return q.Cypher
	}
	var b strings.Builder
	b.WriteString(q.CypherQuery(pageable.Sort))
	p := q.Pagination(pageable, forSlice)
	fmt.Fprintf(&b, " SKIP %d LIMIT %d", p.Offset, p.Limit)
	return b.String()
}

// Pagination 驱动层分页参数
func (q *Query) Pagination(pageable *Pageable, forSlice bool) *Pagination {
	return LimitPagination(pageable, q.Limit, forSlice)
}
