// Package graphrepo 提供按实体类型划分的图仓库：派生查询、字符串查询以及基于 ID 的增删改查。
package graphrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/repo/execution"
	"neo4jogm/pkg/cache"
)

var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("graphrepo: entity not found")
	// ErrReturnShapeMismatch 方法名的主语与调用的返回形态不一致，例如用 FindAll 调用 countByName
	ErrReturnShapeMismatch = errors.New("graphrepo: method subject does not match return shape")
	// ErrMethodDefined 字符串查询与已有方法重名
	ErrMethodDefined = errors.New("graphrepo: method already defined")
	// ErrNotPersisted 实体还没有 ID
	ErrNotPersisted = errors.New("graphrepo: entity has no id")
	// ErrNotAssociation 字段不是关联
	ErrNotAssociation = errors.New("graphrepo: field is not an association")
	// ErrNoNodeColumn 结果行中找不到唯一的节点列
	ErrNoNodeColumn = errors.New("graphrepo: row has no single node column")
)

// Options 仓库配置
type Options struct {
	QueryStyle QueryStyle
	// UseLabels 为真时用标签限定实体类型，否则使用类型索引
	UseLabels  bool
	CacheTTL   time.Duration
	RoutingKey string
}

// Publisher 发布实体变更事件，rabbitmq.Publisher 实现了该接口
type Publisher interface {
	Publish(ctx context.Context, routingKey string, messageBody interface{}) error
}

// Option 可选依赖
type Option[T any] func(*Repository[T])

// WithCache 按 ID 读取时使用读旁路缓存
func WithCache[T any](c cache.Cache[*T]) Option[T] {
	return func(r *Repository[T]) { r.cache = c }
}

// WithPublisher 写入后发布变更事件
func WithPublisher[T any](p Publisher) Option[T] {
	return func(r *Repository[T]) { r.publisher = p }
}

// Repository 是实体 T 的仓库，T 必须已注册到 mapping.Context
type Repository[T any] struct {
	mctx    *mapping.Context
	entity  *mapping.NodeDescription
	session execution.Session
	gen     *generator.Generator
	opts    Options

	cache     cache.Cache[*T]
	publisher Publisher
	logger    *zap.Logger

	// 方法名 -> *method
	methods sync.Map
}

// New 创建仓库
func New[T any](mctx *mapping.Context, session execution.Session, gen *generator.Generator, opts Options, logger *zap.Logger, options ...Option[T]) (*Repository[T], error) {
	nd, err := mctx.NodeDescription((*T)(nil))
	if err != nil {
		return nil, fmt.Errorf("graphrepo: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gen == nil {
		gen = generator.Default
	}
	if opts.QueryStyle == "" {
		opts.QueryStyle = StyleFilter
	}
	r := &Repository[T]{
		mctx:    mctx,
		entity:  nd,
		session: session,
		gen:     gen,
		opts:    opts,
		logger:  logger.Named("graphrepo").With(zap.String("entity", nd.Name)),
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// Entity 实体描述
func (r *Repository[T]) Entity() *mapping.NodeDescription {
	return r.entity
}

// DefineQuery 注册字符串查询。参数按位置命名为 $0、$1，或用 query.Named 按名称传入。
// countCypher 只在分页时使用，可以为空。
func (r *Repository[T]) DefineQuery(name, cypher, countCypher string) error {
	if cypher == "" {
		return fmt.Errorf("graphrepo: empty cypher for %s", name)
	}
	m := &method{name: name, cypher: cypher, countCypher: countCypher}
	if _, loaded := r.methods.LoadOrStore(name, m); loaded {
		return fmt.Errorf("%w: %s", ErrMethodDefined, name)
	}
	return nil
}

func (r *Repository[T]) method(name string) (*method, error) {
	if v, ok := r.methods.Load(name); ok {
		return v.(*method), nil
	}
	m, err := deriveMethod(r.mctx, r.entity, name, r.opts.QueryStyle, r.opts.UseLabels, r.logger)
	if err != nil {
		return nil, fmt.Errorf("graphrepo: 解析方法 %s 失败: %w", name, err)
	}
	v, _ := r.methods.LoadOrStore(name, m)
	return v.(*method), nil
}

func (r *Repository[T]) execute(ctx context.Context, name string, kind execution.Kind, args []any) (any, error) {
	m, err := r.method(name)
	if err != nil {
		return nil, err
	}
	if !m.supports(kind) {
		return nil, fmt.Errorf("%w: %s called as %s", ErrReturnShapeMismatch, m, kind)
	}
	q, params, err := m.prepare(r.entity, args)
	if err != nil {
		return nil, fmt.Errorf("graphrepo: 绑定 %s 的参数失败: %w", name, err)
	}
	exec, err := execution.For(kind, r.session)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("执行查询", zap.Stringer("method", m), zap.Stringer("kind", kind))
	return exec.Execute(ctx, q, params)
}

func (r *Repository[T]) toEntity(row mapping.Row) (*T, error) {
	node, ok := row.Node("")
	if !ok {
		if node, ok = row.Node(generator.RootNode); !ok {
			return nil, ErrNoNodeColumn
		}
	}
	e := new(T)
	if err := r.mctx.Populate(node, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repository[T]) toEntities(rows []mapping.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		e, err := r.toEntity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FindOne 返回唯一结果，没有结果时返回 ErrNotFound
func (r *Repository[T]) FindOne(ctx context.Context, name string, args ...any) (*T, error) {
	res, err := r.execute(ctx, name, execution.KindSingle, args)
	if errors.Is(err, execution.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return r.toEntity(res.(mapping.Row))
}

// FindAll 返回全部结果
func (r *Repository[T]) FindAll(ctx context.Context, name string, args ...any) ([]*T, error) {
	res, err := r.execute(ctx, name, execution.KindCollection, args)
	if err != nil {
		return nil, err
	}
	return r.toEntities(res.([]mapping.Row))
}

// FindPage 分页查询，参数中需要一个 *query.Pageable
func (r *Repository[T]) FindPage(ctx context.Context, name string, args ...any) (*query.Page[*T], error) {
	res, err := r.execute(ctx, name, execution.KindPage, args)
	if err != nil {
		return nil, err
	}
	page := res.(*query.Page[mapping.Row])
	content, err := r.toEntities(page.Content)
	if err != nil {
		return nil, err
	}
	return &query.Page[*T]{Content: content, Pageable: page.Pageable, Total: page.Total}, nil
}

// FindSlice 不计总数的分页查询
func (r *Repository[T]) FindSlice(ctx context.Context, name string, args ...any) (*query.Slice[*T], error) {
	res, err := r.execute(ctx, name, execution.KindSlice, args)
	if err != nil {
		return nil, err
	}
	slice := res.(*query.Slice[mapping.Row])
	content, err := r.toEntities(slice.Content)
	if err != nil {
		return nil, err
	}
	return &query.Slice[*T]{Content: content, Pageable: slice.Pageable, HasNext: slice.HasNext}, nil
}

// Streamed 是流中的一个实体，Err 非空时流随即关闭
type Streamed[T any] struct {
	Entity *T
	Err    error
}

// Stream 逐条返回结果。调用方停止读取前应取消 ctx。
func (r *Repository[T]) Stream(ctx context.Context, name string, args ...any) (<-chan Streamed[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	res, err := r.execute(ctx, name, execution.KindStream, args)
	if err != nil {
		cancel()
		return nil, err
	}
	in := res.(<-chan execution.Item)
	out := make(chan Streamed[T])
	go func() {
		defer close(out)
		defer cancel()
		for item := range in {
			next := Streamed[T]{Err: item.Err}
			if item.Err == nil {
				next.Entity, next.Err = r.toEntity(item.Row)
			}
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
			if next.Err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Count 计数
func (r *Repository[T]) Count(ctx context.Context, name string, args ...any) (int64, error) {
	res, err := r.execute(ctx, name, execution.KindCount, args)
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Exists 是否存在
func (r *Repository[T]) Exists(ctx context.Context, name string, args ...any) (bool, error) {
	res, err := r.execute(ctx, name, execution.KindExists, args)
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Delete 删除并返回数量。配置了缓存或事件发布时，派生删除会先取回 ID 以便失效缓存。
func (r *Repository[T]) Delete(ctx context.Context, name string, args ...any) (int64, error) {
	if r.tracksChanges() {
		if m, err := r.method(name); err == nil && m.isDerived() {
			ids, err := r.DeleteIDs(ctx, name, args...)
			return int64(len(ids)), err
		}
	}
	res, err := r.execute(ctx, name, execution.KindDelete, args)
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// DeleteIDs 删除并返回被删除实体的 ID
func (r *Repository[T]) DeleteIDs(ctx context.Context, name string, args ...any) ([]any, error) {
	res, err := r.execute(ctx, name, execution.KindDeleteIDs, args)
	if err != nil {
		return nil, err
	}
	ids := res.([]any)
	for _, id := range ids {
		r.changed(ctx, id, OpDeleted)
	}
	return ids, nil
}

// FindByID 按 ID 查找，读旁路缓存；数据库中不存在时缓存空值
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	key := EntityKey(r.entity.Name, id)
	if r.cache != nil {
		e, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			r.logger.Debug("缓存命中", zap.String("key", key))
			return e, nil
		case errors.Is(err, cache.ErrNilValue):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		case !errors.Is(err, cache.ErrNotFound):
			// 缓存读取失败不阻塞主流程，回源数据库
			r.logger.Warn("读取缓存失败", zap.String("key", key), zap.Error(err))
		}
	}

	cypher := r.gen.PrepareFindOf(r.entity, r.gen.IDCondition(r.entity))
	rows, err := r.session.Query(ctx, cypher, map[string]any{generator.ParamID: id})
	if err != nil {
		return nil, fmt.Errorf("graphrepo: 查询实体失败: %w", err)
	}
	if len(rows) == 0 {
		if r.cache != nil {
			if setErr := r.cache.SetNil(ctx, key); setErr != nil {
				r.logger.Warn("缓存空值失败", zap.String("key", key), zap.Error(setErr))
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	e, err := r.toEntity(rows[0])
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if setErr := r.cache.Set(ctx, key, e, r.opts.CacheTTL); setErr != nil {
			r.logger.Warn("写入缓存失败", zap.String("key", key), zap.Error(setErr))
		}
	}
	return e, nil
}

// Save 新建或更新实体。uuid 策略的实体在 ID 为空时生成 ID，内部 ID 会写回实体。
func (r *Repository[T]) Save(ctx context.Context, e *T) (*T, error) {
	nd := r.entity
	id, err := r.mctx.IDValue(e)
	if err != nil {
		return nil, err
	}
	if id == nil {
		switch nd.ID.Strategy {
		case mapping.IDUUID:
			id = uuid.NewString()
			if err := r.mctx.SetID(e, id); err != nil {
				return nil, err
			}
		case mapping.IDAssigned:
			return nil, fmt.Errorf("%w: %s uses assigned ids", ErrNotPersisted, nd.Name)
		}
	}
	props, err := r.mctx.ToProperties(e)
	if err != nil {
		return nil, err
	}

	rows, err := r.session.Query(ctx, r.gen.PrepareSaveOf(nd), map[string]any{
		generator.ParamID:         id,
		generator.ParamProperties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("graphrepo: 保存实体失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("graphrepo: 保存 %s 没有返回节点", nd.Name)
	}
	graphID, ok := toInt64(rows[0][generator.ColumnID])
	if !ok {
		return nil, fmt.Errorf("graphrepo: 保存 %s 返回了无效的节点 ID %v", nd.Name, rows[0][generator.ColumnID])
	}
	if nd.IsUsingInternalIDs() {
		if err := r.mctx.SetID(e, graphID); err != nil {
			return nil, err
		}
		id = graphID
	}

	labels, err := r.mctx.ExtraLabels(e)
	if err != nil {
		return nil, err
	}
	if len(labels) > 0 {
		// 标签语句总是按内部 ID 匹配
		if _, err := r.session.Query(ctx, r.gen.PrepareUpdateLabels(labels, nil), map[string]any{generator.ParamID: graphID}); err != nil {
			return nil, fmt.Errorf("graphrepo: 更新标签失败: %w", err)
		}
	}

	r.changed(ctx, id, OpSaved)
	return e, nil
}

// DeleteByID 删除实体及其全部关系
func (r *Repository[T]) DeleteByID(ctx context.Context, id any) error {
	cypher := r.gen.PrepareDeleteOf(r.entity, r.gen.IDCondition(r.entity))
	if _, err := r.session.Query(ctx, cypher, map[string]any{generator.ParamID: id}); err != nil {
		return fmt.Errorf("graphrepo: 删除实体失败: %w", err)
	}
	r.changed(ctx, id, OpDeleted)
	return nil
}

func (r *Repository[T]) association(field string) (*mapping.RelationshipDescription, error) {
	p, ok := r.entity.Property(field)
	if !ok || !p.IsAssociation() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotAssociation, r.entity.Name, field)
	}
	return p.Relationship, nil
}

// graphID 返回实体在图中的内部 ID
func (r *Repository[T]) graphID(ctx context.Context, nd *mapping.NodeDescription, entity any) (int64, error) {
	id, err := r.mctx.IDValue(entity)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotPersisted, nd.Name)
	}
	if nd.IsUsingInternalIDs() {
		if n, ok := toInt64(id); ok {
			return n, nil
		}
		return 0, fmt.Errorf("graphrepo: invalid internal id %v", id)
	}
	cypher := r.gen.PrepareMatchOf(nd, r.gen.IDCondition(nd)) + " RETURN id(" + generator.RootNode + ") AS " + generator.ColumnID
	rows, err := r.session.Query(ctx, cypher, map[string]any{generator.ParamID: id})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, EntityKey(nd.Name, id))
	}
	n, ok := toInt64(rows[0][generator.ColumnID])
	if !ok {
		return 0, fmt.Errorf("graphrepo: invalid internal id %v", rows[0][generator.ColumnID])
	}
	return n, nil
}

// Relate 在实体的关联字段上连接一个已持久化的实体。动态关系必须给出 relType。
func (r *Repository[T]) Relate(ctx context.Context, e *T, field string, related any, relType string) error {
	rel, err := r.association(field)
	if err != nil {
		return err
	}
	if rel.Dynamic && relType == "" {
		return fmt.Errorf("graphrepo: dynamic relationship %s.%s needs a type", r.entity.Name, field)
	}
	fromID, err := r.mctx.IDValue(e)
	if err != nil {
		return err
	}
	if fromID == nil {
		return fmt.Errorf("%w: %s", ErrNotPersisted, r.entity.Name)
	}
	targetID, err := r.graphID(ctx, rel.Target, related)
	if err != nil {
		return err
	}
	cypher := r.gen.PrepareSaveOfRelationship(r.entity, rel, relType, targetID)
	if _, err := r.session.Query(ctx, cypher, map[string]any{generator.ParamFromID: fromID}); err != nil {
		return fmt.Errorf("graphrepo: 创建关系失败: %w", err)
	}
	r.changed(ctx, fromID, OpSaved)
	return nil
}

// Unrelate 删除实体在关联字段上的全部关系
func (r *Repository[T]) Unrelate(ctx context.Context, e *T, field string) error {
	rel, err := r.association(field)
	if err != nil {
		return err
	}
	fromID, err := r.mctx.IDValue(e)
	if err != nil {
		return err
	}
	if fromID == nil {
		return fmt.Errorf("%w: %s", ErrNotPersisted, r.entity.Name)
	}
	cypher := r.gen.PrepareDeleteOfRelationship(r.entity, rel)
	if _, err := r.session.Query(ctx, cypher, map[string]any{generator.ParamFromID: fromID}); err != nil {
		return fmt.Errorf("graphrepo: 删除关系失败: %w", err)
	}
	r.changed(ctx, fromID, OpSaved)
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
