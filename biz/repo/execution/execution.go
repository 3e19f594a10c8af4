// Package execution 按仓库方法声明的返回形态执行查询并包装结果。
package execution

import (
	"context"
	"errors"
	"fmt"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/filter"
	"neo4jogm/biz/query/generator"
)

var (
	// ErrNotFound 单实体查询没有结果
	ErrNotFound = errors.New("execution: result not found")
	// ErrIncorrectResultSize 单实体查询返回了多条结果
	ErrIncorrectResultSize = errors.New("execution: incorrect result size")
	// ErrNoCountQuery 字符串查询分页时缺少计数语句
	ErrNoCountQuery = errors.New("execution: paged string query requires a count query")
)

// Session 是执行查询的会话，bolt 与 REST 两种传输各有实现
type Session interface {
	// Query 执行 Cypher 并返回全部行
	Query(ctx context.Context, cypher string, params map[string]any) ([]mapping.Row, error)
	// QueryForCount 执行只返回一个数值的 Cypher
	QueryForCount(ctx context.Context, cypher string, params map[string]any) (int64, error)
	// LoadAll 按 Filter 加载节点，结果行中节点列为 n
	LoadAll(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, opts generator.LoadOptions) ([]mapping.Row, error)
	// Count 按 Filter 计数
	Count(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters) (int64, error)
	// Delete 按 Filter 删除；withIDs 为真时返回被删除实体的 ID，否则只返回数量
	Delete(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, withIDs bool) (DeleteResult, error)
}

// DeleteResult 删除结果
type DeleteResult struct {
	Count int64
	IDs   []any
}

// Kind 是仓库方法的返回形态
type Kind int

const (
	KindSingle Kind = iota
	KindCollection
	KindPage
	KindSlice
	KindCount
	KindExists
	KindDelete
	KindDeleteIDs
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindCollection:
		return "collection"
	case KindPage:
		return "page"
	case KindSlice:
		return "slice"
	case KindCount:
		return "count"
	case KindExists:
		return "exists"
	case KindDelete:
		return "delete"
	case KindDeleteIDs:
		return "deleteIds"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Execution 执行一次查询。返回值类型由具体策略决定：
//
//	single     mapping.Row
//	collection []mapping.Row
//	page       *query.Page[mapping.Row]
//	slice      *query.Slice[mapping.Row]
//	count      int64
//	exists     bool
//	delete     int64
//	deleteIds  []any
//	stream     <-chan Item
type Execution interface {
	Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error)
}

// For 按返回形态选择执行策略
func For(kind Kind, session Session) (Execution, error) {
	switch kind {
	case KindSingle:
		return &SingleEntityExecution{session: session}, nil
	case KindCollection:
		return &CollectionExecution{session: session}, nil
	case KindPage:
		return &PagedExecution{session: session}, nil
	case KindSlice:
		return &SlicedExecution{session: session}, nil
	case KindCount:
		return &CountExecution{session: session}, nil
	case KindExists:
		return &ExistsExecution{session: session}, nil
	case KindDelete:
		return &DeleteExecution{session: session}, nil
	case KindDeleteIDs:
		return &DeleteExecution{session: session, withIDs: true}, nil
	case KindStream:
		return &StreamExecution{session: session}, nil
	default:
		return nil, fmt.Errorf("execution: unknown kind %s", kind)
	}
}

// load 加载实体行。pageable 非空时附加排序与分页。
func load(ctx context.Context, s Session, q *query.Query, params *query.ParameterAccessor, pageable *query.Pageable, forSlice bool) ([]mapping.Row, error) {
	if q.IsFilterQuery() {
		return s.LoadAll(ctx, q.Entity, q.Filters, generator.LoadOptions{
			Sort:       params.Sort(),
			Pagination: q.Pagination(pageable, forSlice),
			Limit:      q.Limit,
			Distinct:   q.Distinct,
		})
	}
	cypher := q.CypherQuery(params.Sort())
	if pageable != nil {
		cypher = q.PagedCypherQuery(pageable, forSlice)
	}
	return s.Query(ctx, cypher, q.Parameters)
}

func count(ctx context.Context, s Session, q *query.Query) (int64, error) {
	if q.IsFilterQuery() {
		return s.Count(ctx, q.Entity, q.Filters)
	}
	return s.QueryForCount(ctx, q.Cypher, q.Parameters)
}

// SingleEntityExecution 返回唯一一条结果
type SingleEntityExecution struct {
	session Session
}

func (e *SingleEntityExecution) Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error) {
	rows, err := load(ctx, e.session, q, params, nil, false)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: expected 1, actual %d", ErrIncorrectResultSize, len(rows))
	}
}

// CollectionExecution 返回全部结果
type CollectionExecution struct {
	session Session
}

func (e *CollectionExecution) Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error) {
	return load(ctx, e.session, q, params, params.Pageable(), false)
}

// PagedExecution 返回带总数的分页结果，总数能由当前页推断时不执行计数查询
type PagedExecution struct {
	session Session
}

func (e *PagedExecution) Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error) {
	pageable := params.Pageable()
	rows, err := load(ctx, e.session, q, params, pageable, false)
	if err != nil {
		return nil, err
	}
	return query.NewPage(rows, pageable, func() (int64, error) {
		if q.IsFilterQuery() {
			return e.session.Count(ctx, q.Entity, q.Filters)
		}
		if q.CountCypher == "" {
			return 0, ErrNoCountQuery
		}
		return e.session.QueryForCount(ctx, q.CountCypher, q.Parameters)
	})
}

// SlicedExecution 多取一条记录判断是否还有下一页，不执行计数查询
type SlicedExecution struct {
	session Session
}

func (e *SlicedExecution) Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error) {
	pageable := params.Pageable()
	rows, err := load(ctx, e.session, q, params, pageable, true)
	if err != nil {
		return nil, err
	}
	return query.NewSlice(rows, pageable), nil
}

// CountExecution 计数
type CountExecution struct {
	session Session
}

func (e *CountExecution) Execute(ctx context.Context, q *query.Query, _ *query.ParameterAccessor) (any, error) {
	return count(ctx, e.session, q)
}

// ExistsExecution 是否存在
type ExistsExecution struct {
	session Session
}

func (e *ExistsExecution) Execute(ctx context.Context, q *query.Query, _ *query.ParameterAccessor) (any, error) {
	n, err := count(ctx, e.session, q)
	if err != nil {
		return nil, err
	}
	return n > 0, nil
}

// DeleteExecution 删除，返回删除数量或被删除实体的 ID
type DeleteExecution struct {
	session Session
	withIDs bool
}

func (e *DeleteExecution) Execute(ctx context.Context, q *query.Query, _ *query.ParameterAccessor) (any, error) {
	if !q.IsFilterQuery() {
		if e.withIDs {
			cypher := q.Cypher
			if q.DeleteIDsCypher != "" {
				cypher = q.DeleteIDsCypher
			}
			rows, err := e.session.Query(ctx, cypher, q.Parameters)
			if err != nil {
				return nil, err
			}
			ids := make([]any, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row[generator.ColumnID])
			}
			return ids, nil
		}
		return e.session.QueryForCount(ctx, q.Cypher, q.Parameters)
	}
	res, err := e.session.Delete(ctx, q.Entity, q.Filters, e.withIDs)
	if err != nil {
		return nil, err
	}
	if e.withIDs {
		return res.IDs, nil
	}
	return res.Count, nil
}

// Item 是流中的一个元素，Err 非空时流随即关闭
type Item struct {
	Row mapping.Row
	Err error
}

// StreamExecution 在后台加载结果并逐条写入 channel。
// ctx 取消后停止发送并关闭 channel。
type StreamExecution struct {
	session Session
}

func (e *StreamExecution) Execute(ctx context.Context, q *query.Query, params *query.ParameterAccessor) (any, error) {
	out := make(chan Item)
	go func() {
		defer close(out)
		rows, err := load(ctx, e.session, q, params, params.Pageable(), false)
		if err != nil {
			select {
			case out <- Item{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		for _, row := range rows {
			select {
			case out <- Item{Row: row}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return (<-chan Item)(out), nil
}
