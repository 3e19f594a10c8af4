package rest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"neo4jogm/biz/dal/neo4jdal"
	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/filter"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/repo/execution"
)

// Session 通过 cypher 端点执行查询，实现 execution.Session。
// 语句使用 {name} 占位符，写语句执行后清空实体缓存。
type Session struct {
	api    *RestAPI
	gen    *generator.Generator
	logger *zap.Logger
}

// NewSession 创建 REST 会话
func NewSession(api *RestAPI, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{api: api, gen: generator.New(filter.Rest), logger: logger.Named("rest-session")}
}

// Generator 与该会话占位符风格一致的语句生成器
func (s *Session) Generator() *generator.Generator { return s.gen }

func (s *Session) Query(ctx context.Context, cypher string, params map[string]any) ([]mapping.Row, error) {
	res, err := s.api.Query(ctx, cypher, EncodeParams(params))
	if err != nil {
		return nil, err
	}
	if neo4jdal.IsWrite(cypher) {
		s.api.Cache().Clear()
	}
	return res.Rows()
}

func (s *Session) QueryForCount(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	rows, err := s.Query(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	return neo4jdal.SingleNumber(rows)
}

func (s *Session) LoadAll(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, opts generator.LoadOptions) ([]mapping.Row, error) {
	opts.Mode = generator.ModeLoad
	cypher, params, err := s.gen.FilterQuery(nd, filters, opts)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, cypher, params)
}

func (s *Session) Count(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters) (int64, error) {
	cypher, params, err := s.gen.FilterQuery(nd, filters, generator.LoadOptions{Mode: generator.ModeCount})
	if err != nil {
		return 0, err
	}
	return s.QueryForCount(ctx, cypher, params)
}

func (s *Session) Delete(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, withIDs bool) (execution.DeleteResult, error) {
	mode := generator.ModeDelete
	if withIDs {
		mode = generator.ModeDeleteIDs
	}
	cypher, params, err := s.gen.FilterQuery(nd, filters, generator.LoadOptions{Mode: mode})
	if err != nil {
		return execution.DeleteResult{}, err
	}
	rows, err := s.Query(ctx, cypher, params)
	if err != nil {
		return execution.DeleteResult{}, err
	}
	return neo4jdal.ToDeleteResult(rows, withIDs)
}

// EncodeParams 时间转为毫秒时间戳，其余原样传递
func EncodeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = encodeParam(v)
	}
	return out
}

func encodeParam(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UnixMilli()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UnixMilli()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeParam(e)
		}
		return out
	case map[string]any:
		return EncodeParams(x)
	default:
		return v
	}
}

// Rows 按列名组装结果行，节点和关系表示转换为 mapping 中的图类型
func (r *CypherResult) Rows() ([]mapping.Row, error) {
	rows := make([]mapping.Row, 0, len(r.Data))
	for i, data := range r.Data {
		if len(data) != len(r.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrUnexpectedStatus, i, len(data), len(r.Columns))
		}
		row := make(mapping.Row, len(r.Columns))
		for j, col := range r.Columns {
			v, err := convertValue(data[j])
			if err != nil {
				return nil, err
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func convertValue(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		switch {
		case IsNodeRepresentation(x):
			n, err := NodeFromMap(x)
			if err != nil {
				return nil, err
			}
			if n.Props, err = convertProps(n.Props); err != nil {
				return nil, err
			}
			return n.ToGraphNode(), nil
		case IsRelationshipRepresentation(x):
			rel, err := RelationshipFromMap(x)
			if err != nil {
				return nil, err
			}
			if rel.Props, err = convertProps(rel.Props); err != nil {
				return nil, err
			}
			return rel.ToGraphRelationship(), nil
		}
		return convertProps(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := convertValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case float64:
		// JSON 整数还原为 int64
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	default:
		return v, nil
	}
}

func convertProps(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, e := range m {
		c, err := convertValue(e)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

var _ execution.Session = (*Session)(nil)
