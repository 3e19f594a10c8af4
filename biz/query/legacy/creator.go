package legacy

import (
	"fmt"

	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/part"
)

// Creator 把解析后的方法名转成 CypherQuery
type Creator struct {
	ctx       *mapping.Context
	entity    *mapping.NodeDescription
	useLabels bool
	logger    *zap.Logger
}

// NewCreator 创建构建器
func NewCreator(ctx *mapping.Context, nd *mapping.NodeDescription, useLabels bool, logger *zap.Logger) *Creator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{ctx: ctx, entity: nd, useLabels: useLabels, logger: logger.Named("legacy")}
}

// Create 构建查询，结果可以按方法缓存
func (c *Creator) Create(tree *part.Tree) (*CypherQuery, error) {
	if tree.IsOr() {
		return nil, fmt.Errorf("%w: %s", ErrOrNotSupported, tree.MethodName)
	}
	q := NewCypherQuery(c.ctx, c.entity, c.useLabels)
	for _, p := range tree.Parts() {
		if err := q.AddPart(p); err != nil {
			return nil, fmt.Errorf("legacy: 构建 %s 失败: %w", tree.MethodName, err)
		}
	}

	switch tree.Subject {
	case part.SubjectCount, part.SubjectExists:
		q.SetMode(ReturnCount)
	case part.SubjectDelete:
		q.SetMode(ReturnDelete)
	}
	q.SetDistinct(tree.Distinct)
	q.SetLimit(tree.Limit)

	sort := make(query.Sort, 0, len(tree.Sort))
	for _, o := range tree.Sort {
		order := query.AscOrder(o.Property)
		if o.Desc {
			order.Direction = query.Desc
		}
		sort = append(sort, order)
	}
	q.AddSort(sort)

	c.logger.Debug("派生查询构建完成",
		zap.String("method", tree.MethodName),
		zap.String("cypher", q.String()),
		zap.Int("parameters", q.NumberOfParameters()))
	return q, nil
}
