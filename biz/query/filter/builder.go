package filter

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/geo"
	"neo4jogm/biz/query/part"
)

// valueStack 实参倒序压栈，每个 Builder 依次弹出自己声明的个数
type valueStack struct {
	items []any
}

func newValueStack(values []any) *valueStack {
	s := &valueStack{items: make([]any, 0, len(values))}
	for i := len(values) - 1; i >= 0; i-- {
		s.items = append(s.items, values[i])
	}
	return s
}

func (s *valueStack) pop() (any, error) {
	if len(s.items) == 0 {
		return nil, fmt.Errorf("%w: stack exhausted", ErrParameterCount)
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, nil
}

// Builder 对应一个方法名片段，调用时从栈中取值生成 Filter
type Builder struct {
	ctx     *mapping.Context
	path    mapping.PropertyPath
	part    part.Part
	boolean BooleanOperator
}

// Part 原始片段
func (b *Builder) Part() part.Part { return b.part }

// NumberOfArguments 需要弹出的实参个数
func (b *Builder) NumberOfArguments() int {
	return b.part.Type.NumberOfArguments()
}

// IsNested 是否跨关系
func (b *Builder) IsNested() bool {
	return b.path.HasRelationship()
}

func (b *Builder) base() *Filter {
	leaf := b.path.Leaf()
	f := &Filter{
		PropertyName:    leaf.PropertyName,
		BooleanOperator: b.boolean,
		IgnoreCase:      b.part.IgnoreCase,
		Owner:           b.path.Owner(),
	}
	for _, rel := range b.path.Hops() {
		f.NestedPath = append(f.NestedPath, Hop{Type: rel.Type, Direction: rel.Direction, Target: rel.Target})
	}
	switch {
	case leaf.IsAssociation():
		target := leaf.Relationship.Target
		f.Owner = target
		f.InternalID = target.IsUsingInternalIDs()
		if !f.InternalID {
			f.PropertyName = target.ID.PropertyName
		}
	case leaf.IsID && f.Owner.IsUsingInternalIDs():
		f.InternalID = true
	}
	if t := leaf.GoType; t != nil && t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		f.CollectionProperty = true
	}
	return f
}

// Build 按片段类型生成 Filter，Between 会生成两个
func (b *Builder) Build(stack *valueStack) (Filters, error) {
	f := b.base()
	pop := func() (any, error) {
		v, err := stack.pop()
		if err != nil {
			return nil, err
		}
		return b.convert(v), nil
	}

	switch b.part.Type {
	case part.Between:
		from, err := pop()
		if err != nil {
			return nil, err
		}
		to, err := pop()
		if err != nil {
			return nil, err
		}
		upper := *f
		f.Operator, f.Value = OpGreaterThanEqual, from
		upper.Operator, upper.Value, upper.BooleanOperator = OpLessThanEqual, to, And
		return Filters{f, &upper}, nil

	case part.Near:
		center, err := pop()
		if err != nil {
			return nil, err
		}
		dist, err := pop()
		if err != nil {
			return nil, err
		}
		p, ok := center.(geo.Point)
		if !ok {
			return nil, fmt.Errorf("%w: Near on %s expects geo.Point, got %T", ErrInvalidValue, b.path, center)
		}
		meters, ok := toMeters(dist)
		if !ok {
			return nil, fmt.Errorf("%w: Near on %s expects a distance, got %T", ErrInvalidValue, b.path, dist)
		}
		f.Operator = OpDistance
		f.Distance = &Distance{Center: p, Meters: meters}
		return Filters{f}, nil

	case part.Within:
		v, err := pop()
		if err != nil {
			return nil, err
		}
		circle, ok := v.(geo.Circle)
		if !ok {
			return nil, fmt.Errorf("%w: Within on %s expects geo.Circle, got %T", ErrInvalidValue, b.path, v)
		}
		f.Operator = OpDistance
		f.Distance = &Distance{Center: circle.Center, Meters: circle.RadiusKm * 1000}
		return Filters{f}, nil
	}

	op, negated, ok := operatorOf(b.part.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPart, b.part.Type, b.path)
	}
	f.Operator, f.Negated = op, negated
	if b.NumberOfArguments() == 1 {
		v, err := pop()
		if err != nil {
			return nil, err
		}
		f.Value = v
	}
	return Filters{f}, nil
}

// convert 已注册实体替换为它的 ID
func (b *Builder) convert(v any) any {
	if v == nil || b.ctx == nil {
		return v
	}
	if _, err := b.ctx.NodeDescription(v); err != nil {
		return v
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		ids := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			id, err := b.ctx.IDValue(rv.Index(i).Interface())
			if err != nil {
				return v
			}
			ids = append(ids, id)
		}
		return ids
	}
	id, err := b.ctx.IDValue(v)
	if err != nil {
		return v
	}
	return id
}

func operatorOf(t part.Type) (Operator, bool, bool) {
	switch t {
	case part.SimpleProperty:
		return OpEquals, false, true
	case part.NegatingSimpleProperty:
		return OpEquals, true, true
	case part.GreaterThan, part.After:
		return OpGreaterThan, false, true
	case part.GreaterThanEqual:
		return OpGreaterThanEqual, false, true
	case part.LessThan, part.Before:
		return OpLessThan, false, true
	case part.LessThanEqual:
		return OpLessThanEqual, false, true
	case part.Like:
		return OpLike, false, true
	case part.NotLike:
		return OpLike, true, true
	case part.StartingWith:
		return OpStartingWith, false, true
	case part.EndingWith:
		return OpEndingWith, false, true
	case part.Containing:
		return OpContaining, false, true
	case part.NotContaining:
		return OpContaining, true, true
	case part.In:
		return OpIn, false, true
	case part.NotIn:
		return OpIn, true, true
	case part.IsNull:
		return OpIsNull, false, true
	case part.IsNotNull:
		return OpIsNull, true, true
	case part.True:
		return OpIsTrue, false, true
	case part.False:
		return OpIsFalse, false, true
	case part.Exists:
		return OpExists, false, true
	case part.IsEmpty:
		return OpIsEmpty, false, true
	case part.IsNotEmpty:
		return OpIsEmpty, true, true
	case part.Regex:
		return OpMatches, false, true
	}
	return "", false, false
}

func toMeters(v any) (float64, bool) {
	switch d := v.(type) {
	case geo.Distance:
		return d.Meters(), true
	case float64:
		return geo.Distance(d).Meters(), true
	case int:
		return geo.Distance(d).Meters(), true
	case int64:
		return geo.Distance(d).Meters(), true
	}
	return 0, false
}

// Definition 是一个方法对应的 Builder 链，构建一次后按调用绑定实参
type Definition struct {
	ctx      *mapping.Context
	entity   *mapping.NodeDescription
	builders []*Builder
}

// NewDefinition 创建空的 Builder 链
func NewDefinition(ctx *mapping.Context, nd *mapping.NodeDescription) *Definition {
	return &Definition{ctx: ctx, entity: nd}
}

// Entity 根实体
func (d *Definition) Entity() *mapping.NodeDescription { return d.entity }

// Builders 全部 Builder
func (d *Definition) Builders() []*Builder { return d.builders }

// And 以 AND 追加片段
func (d *Definition) And(p part.Part) error {
	return d.add(p, And)
}

// Or 以 OR 追加片段
func (d *Definition) Or(p part.Part) error {
	return d.add(p, Or)
}

func (d *Definition) add(p part.Part, op BooleanOperator) error {
	path, err := d.ctx.PropertyPath(d.entity, p.Property)
	if err != nil {
		return err
	}
	if len(d.builders) == 0 {
		op = None
	}
	b := &Builder{ctx: d.ctx, path: path, part: p, boolean: op}
	if _, _, ok := operatorOf(p.Type); !ok && p.Type != part.Between && p.Type != part.Near && p.Type != part.Within {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedPart, p.Type, path)
	}

	nested, or := b.IsNested(), op == Or
	for _, existing := range d.builders {
		nested = nested || existing.IsNested()
		or = or || existing.boolean == Or
	}
	if nested && or {
		return fmt.Errorf("%w: %s", ErrNestedOr, p)
	}
	d.builders = append(d.builders, b)
	return nil
}

// NumberOfArguments 全部 Builder 需要的实参个数
func (d *Definition) NumberOfArguments() int {
	n := 0
	for _, b := range d.builders {
		n += b.NumberOfArguments()
	}
	return n
}

// CreateExecutableQuery 绑定实参生成 Filters
func (d *Definition) CreateExecutableQuery(values []any) (Filters, error) {
	if len(values) != d.NumberOfArguments() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrParameterCount, d.NumberOfArguments(), len(values))
	}
	stack := newValueStack(values)
	var filters Filters
	for _, b := range d.builders {
		fs, err := b.Build(stack)
		if err != nil {
			return nil, err
		}
		filters = append(filters, fs...)
	}
	return filters, nil
}

// TemplatedCreator 把解析后的方法名转成 Definition
type TemplatedCreator struct {
	ctx    *mapping.Context
	entity *mapping.NodeDescription
	logger *zap.Logger
}

// NewTemplatedCreator 创建构建器
func NewTemplatedCreator(ctx *mapping.Context, nd *mapping.NodeDescription, logger *zap.Logger) *TemplatedCreator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplatedCreator{ctx: ctx, entity: nd, logger: logger.Named("filter")}
}

// Create 每个 Or 分组的第一个片段以 OR 连接，其余以 AND 连接
func (c *TemplatedCreator) Create(tree *part.Tree) (*Definition, error) {
	d := NewDefinition(c.ctx, c.entity)
	for _, group := range tree.Ors {
		for i, p := range group {
			var err error
			if i == 0 {
				err = d.Or(p)
			} else {
				err = d.And(p)
			}
			if err != nil {
				return nil, fmt.Errorf("filter: 构建 %s 失败: %w", tree.MethodName, err)
			}
		}
	}
	c.logger.Debug("派生查询构建完成",
		zap.String("method", tree.MethodName),
		zap.Int("builders", len(d.builders)),
		zap.Int("parameters", d.NumberOfArguments()))
	return d, nil
}
