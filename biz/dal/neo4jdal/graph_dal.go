package neo4jdal

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/geo"
)

// neo4jGraphDAL 实现了 GraphDAL 接口。
type neo4jGraphDAL struct {
	// DAL 层不直接持有 driver，而是通过方法参数接收 session
}

// NewGraphDAL 创建一个新的 GraphDAL 实例。
func NewGraphDAL() GraphDAL {
	return &neo4jGraphDAL{}
}

// ExecRead 使用 ExecuteRead 在事务中执行读操作。
func (d *neo4jGraphDAL) ExecRead(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error) {
	result, err := session.ExecuteRead(ctx, collect(ctx, cypher, params))
	if err != nil {
		return nil, err
	}
	return asRows(result)
}

// ExecWrite 使用 ExecuteWrite 在事务中执行写操作。
func (d *neo4jGraphDAL) ExecWrite(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error) {
	result, err := session.ExecuteWrite(ctx, collect(ctx, cypher, params))
	if err != nil {
		return nil, err
	}
	return asRows(result)
}

// collect 返回事务函数：执行查询并把全部记录转换为 Row。
// 托管事务可能被驱动重试，函数内不能有副作用。
func collect(ctx context.Context, cypher string, params map[string]any) neo4j.ManagedTransactionWork {
	return func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, fmt.Errorf("DAL: 运行查询失败: %w", err)
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("DAL: 收集查询结果失败: %w", err)
		}
		rows := make([]mapping.Row, len(records))
		for i, record := range records {
			rows[i] = RecordToRow(record)
		}
		return rows, nil
	}
}

func asRows(result any) ([]mapping.Row, error) {
	if result == nil {
		return []mapping.Row{}, nil
	}
	rows, ok := result.([]mapping.Row)
	if !ok {
		return nil, fmt.Errorf("%w: 事务返回了 %T", ErrUnexpectedResult, result)
	}
	return rows, nil
}

// RecordToRow 把驱动记录转换为 Row
func RecordToRow(record *neo4j.Record) mapping.Row {
	row := make(mapping.Row, len(record.Keys))
	for i, key := range record.Keys {
		row[key] = ConvertValue(record.Values[i])
	}
	return row
}

// ConvertValue 把驱动返回的值转换为传输无关的表示，集合与 map 递归转换
func ConvertValue(v any) any {
	switch x := v.(type) {
	case dbtype.Node:
		return mapping.GraphNode{ID: x.Id, ElementID: x.ElementId, Labels: x.Labels, Props: convertProps(x.Props)}
	case dbtype.Relationship:
		return mapping.GraphRelationship{ID: x.Id, Type: x.Type, StartID: x.StartId, EndID: x.EndId, Props: convertProps(x.Props)}
	case dbtype.Path:
		out := make([]any, 0, len(x.Nodes)+len(x.Relationships))
		for _, n := range x.Nodes {
			out = append(out, ConvertValue(n))
		}
		for _, r := range x.Relationships {
			out = append(out, ConvertValue(r))
		}
		return out
	case dbtype.Point2D:
		// WGS-84 下 X 为经度，Y 为纬度
		return geo.Point{Lat: x.Y, Lon: x.X}
	case dbtype.Date:
		return time.Time(x)
	case dbtype.LocalDateTime:
		return time.Time(x)
	case dbtype.LocalTime:
		return time.Time(x)
	case dbtype.Time:
		return time.Time(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ConvertValue(e)
		}
		return out
	case map[string]any:
		return convertProps(x)
	default:
		return v
	}
}

func convertProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = ConvertValue(v)
	}
	return out
}
