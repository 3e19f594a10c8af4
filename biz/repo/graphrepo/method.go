package graphrepo

import (
	"fmt"

	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/filter"
	"neo4jogm/biz/query/legacy"
	"neo4jogm/biz/query/part"
	"neo4jogm/biz/repo/execution"
)

// QueryStyle 派生查询的构建方式
type QueryStyle string

const (
	// StyleFilter 生成 Filter，由会话渲染为 MATCH/WHERE
	StyleFilter QueryStyle = "filter"
	// StyleLegacy 生成 START/MATCH/WHERE 文本
	StyleLegacy QueryStyle = "legacy"
)

// ParseQueryStyle 解析配置中的查询方式，未知值按 filter 处理
func ParseQueryStyle(s string) QueryStyle {
	if QueryStyle(s) == StyleLegacy {
		return StyleLegacy
	}
	return StyleFilter
}

// method 是一个已解析的仓库方法，按方法名缓存，调用之间只读
type method struct {
	name string

	// 派生查询
	tree       *part.Tree
	definition *filter.Definition
	legacy     *legacy.CypherQuery

	// 字符串查询
	cypher      string
	countCypher string
}

func (m *method) isDerived() bool {
	return m.tree != nil
}

// supports 派生查询的主语必须与调用的返回形态一致
func (m *method) supports(kind execution.Kind) bool {
	if !m.isDerived() {
		return true
	}
	switch m.tree.Subject {
	case part.SubjectCount:
		return kind == execution.KindCount
	case part.SubjectExists:
		return kind == execution.KindExists
	case part.SubjectDelete:
		return kind == execution.KindDelete || kind == execution.KindDeleteIDs
	default:
		switch kind {
		case execution.KindSingle, execution.KindCollection, execution.KindPage, execution.KindSlice, execution.KindStream:
			return true
		}
		return false
	}
}

// deriveMethod 解析方法名并按查询方式构建查询模板
func deriveMethod(ctx *mapping.Context, nd *mapping.NodeDescription, name string, style QueryStyle, useLabels bool, logger *zap.Logger) (*method, error) {
	tree, err := part.Parse(name)
	if err != nil {
		return nil, err
	}
	m := &method{name: name, tree: tree}
	switch style {
	case StyleLegacy:
		m.legacy, err = legacy.NewCreator(ctx, nd, useLabels, logger).Create(tree)
	default:
		m.definition, err = filter.NewTemplatedCreator(ctx, nd, logger).Create(tree)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// prepare 绑定本次调用的实参，返回可执行的查询和参数访问器
func (m *method) prepare(nd *mapping.NodeDescription, args []any) (*query.Query, *query.ParameterAccessor, error) {
	switch {
	case m.legacy != nil:
		params := query.NewParameterAccessor(args...)
		q, err := m.legacy.Query(params.Values())
		if err != nil {
			return nil, nil, err
		}
		return q, params, nil
	case m.definition != nil:
		params := query.NewParameterAccessor(args...).WithSort(treeSort(m.tree))
		filters, err := m.definition.CreateExecutableQuery(params.Values())
		if err != nil {
			return nil, nil, err
		}
		q := query.NewFilterQuery(nd, filters)
		q.Limit = m.tree.Limit
		q.Distinct = m.tree.Distinct
		return q, params, nil
	default:
		params := query.NewParameterAccessor(args...)
		return query.NewCypherQuery(m.cypher, m.countCypher, params.Parameters()), params, nil
	}
}

func treeSort(tree *part.Tree) query.Sort {
	sort := make(query.Sort, 0, len(tree.Sort))
	for _, o := range tree.Sort {
		order := query.AscOrder(o.Property)
		if o.Desc {
			order = query.DescOrder(o.Property)
		}
		sort = append(sort, order)
	}
	return sort
}

// String 用于日志
func (m *method) String() string {
	if m.isDerived() {
		return fmt.Sprintf("%s(%s)", m.name, m.tree.Subject)
	}
	return m.name + "(cypher)"
}
