package legacy

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/query/part"
)

// ReturnMode 决定 RETURN 段的形态
type ReturnMode int

const (
	ReturnEntity ReturnMode = iota
	ReturnCount
	ReturnDelete
	// ReturnDeleteIDs 删除并逐行返回被删除实体的 ID
	ReturnDeleteIDs
)

// CypherQuery 按 START、MATCH、WHERE 三类子句累积派生查询。
// 构建完成后只读，可以被多个调用并发渲染。
type CypherQuery struct {
	ctx       *mapping.Context
	entity    *mapping.NodeDescription
	useLabels bool
	vars      *VariableContext
	variable  string

	starts  []*StartClause
	matches []*MatchClause
	wheres  []*WhereClause
	slots   map[int]*PartInfo
	next    int

	mode     ReturnMode
	distinct bool
	limit    int
	sort     query.Sort
}

// NewCypherQuery 创建空查询。useLabels 为 true 时用标签限制类型，否则用旧式 __types__ 索引。
func NewCypherQuery(ctx *mapping.Context, nd *mapping.NodeDescription, useLabels bool) *CypherQuery {
	vars := NewVariableContext()
	return &CypherQuery{
		ctx:       ctx,
		entity:    nd,
		useLabels: useLabels,
		vars:      vars,
		variable:  vars.EntityVariable(nd),
		slots:     make(map[int]*PartInfo),
	}
}

// Entity 根实体
func (q *CypherQuery) Entity() *mapping.NodeDescription { return q.entity }

// Variable 根实体变量
func (q *CypherQuery) Variable() string { return q.variable }

// NumberOfParameters 占位符个数
func (q *CypherQuery) NumberOfParameters() int { return q.next }

// SetMode 设置 RETURN 形态
func (q *CypherQuery) SetMode(mode ReturnMode) { q.mode = mode }

// SetDistinct 返回去重
func (q *CypherQuery) SetDistinct(distinct bool) { q.distinct = distinct }

// SetLimit First/TopN 限制
func (q *CypherQuery) SetLimit(limit int) { q.limit = limit }

// AddSort 方法名中声明的排序
func (q *CypherQuery) AddSort(sort query.Sort) { q.sort = q.sort.And(sort) }

// AddPart 按规则把片段放到 START、MATCH 或 WHERE 中
func (q *CypherQuery) AddPart(p part.Part) error {
	path, err := q.ctx.PropertyPath(q.entity, p.Property)
	if err != nil {
		return err
	}
	if p.IgnoreCase && !isStringProperty(path.Leaf()) {
		// 非字符串属性忽略大小写没有意义，按精确比较处理
		p.IgnoreCase = false
	}
	pi := newPartInfo(path, q.vars.VariableFor(path), p, q.next)
	leaf := pi.Leaf()
	internalID := leaf.IsID && path.Owner().IsUsingInternalIDs()

	if (leaf.IsAssociation() || internalID) && p.Type != part.SimpleProperty {
		return fmt.Errorf("%w: %s on %s, only equality is supported for ids and relationships", ErrUnsupportedPart, p.Type, path)
	}

	if path.HasRelationship() {
		q.addMatch(newMatchClause(q.vars, path))
	}

	switch {
	case leaf.IsAssociation() || internalID:
		target := path.Owner()
		if leaf.IsAssociation() {
			target = leaf.Relationship.Target
		}
		if q.useLabels || !target.IsUsingInternalIDs() {
			q.wheres = append(q.wheres, newIDWhere(pi, target))
		} else {
			q.starts = append(q.starts, newGraphIDStartClause(pi))
		}
	case pi.IsIndexed() && !pi.IsLabelIndexed(q.useLabels) && startable(pi):
		if err := q.addStart(pi); err != nil {
			return err
		}
	default:
		w, err := newPropertyWhere(pi)
		if err != nil {
			return err
		}
		q.wheres = append(q.wheres, w)
	}

	for i := 0; i < pi.Arity(); i++ {
		q.slots[q.next+i] = pi
	}
	q.next += pi.Arity()
	return nil
}

func isStringProperty(p *mapping.PersistentProperty) bool {
	t := p.GoType
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.String
}

func (q *CypherQuery) addStart(pi *PartInfo) error {
	for _, s := range q.starts {
		if !s.sameIdentifier(pi) {
			continue
		}
		if s.sameIndex(pi) {
			s.merge(pi)
			return nil
		}
		// 同一个变量只能有一个索引起点，其余退回到 WHERE
		w, err := newPropertyWhere(pi)
		if err != nil {
			return err
		}
		q.wheres = append(q.wheres, w)
		return nil
	}
	q.starts = append(q.starts, newStartClause(pi))
	return nil
}

func (q *CypherQuery) addMatch(m *MatchClause) {
	for i, existing := range q.matches {
		if existing.covers(m) {
			return
		}
		if m.covers(existing) {
			q.matches[i] = m
			return
		}
	}
	q.matches = append(q.matches, m)
}

// PartInfo 返回占据给定参数下标的片段
func (q *CypherQuery) PartInfo(index int) (*PartInfo, error) {
	pi, ok := q.slots[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownParameter, index)
	}
	return pi, nil
}

// ResolveParameters 把实参按位置绑定到占位符并做类型改写，返回新的参数 map
func (q *CypherQuery) ResolveParameters(values []any) (map[string]any, error) {
	if len(values) != q.next {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrParameterCount, q.next, len(values))
	}
	params := make(map[string]any, len(values))
	for i, v := range values {
		params[strconv.Itoa(i)] = v
	}
	convert := q.entityToID
	for _, s := range q.starts {
		if err := s.resolve(params, convert); err != nil {
			return nil, err
		}
	}
	for _, w := range q.wheres {
		if err := w.resolve(params, convert); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// entityToID 已注册实体作为实参时替换为它的 ID
func (q *CypherQuery) entityToID(v any) any {
	if v == nil {
		return nil
	}
	if _, err := q.ctx.NodeDescription(v); err != nil {
		return v
	}
	id, err := q.ctx.IDValue(v)
	if err != nil {
		return v
	}
	return id
}

// Query 为一次调用生成可执行查询
func (q *CypherQuery) Query(values []any) (*query.Query, error) {
	params, err := q.ResolveParameters(values)
	if err != nil {
		return nil, err
	}
	rq := query.NewRenderedQuery(q, q.CountQuery(), params)
	if q.mode == ReturnDelete {
		rq.DeleteIDsCypher = q.base(ReturnDeleteIDs)
	}
	return rq, nil
}

// CountQuery 同样条件的计数查询
func (q *CypherQuery) CountQuery() string {
	return q.base(ReturnCount)
}

func (q *CypherQuery) String() string {
	return q.Render(nil)
}

// Render 追加排序与 LIMIT
func (q *CypherQuery) Render(sort query.Sort) string {
	var b strings.Builder
	b.WriteString(q.base(q.mode))
	b.WriteString(q.orderBy(q.sort.And(sort)))
	if q.limit > 0 && q.mode == ReturnEntity {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	return b.String()
}

// RenderPage 追加排序与 SKIP/LIMIT，切片查询多取一条，First/TopN 限制总条数
func (q *CypherQuery) RenderPage(pageable *query.Pageable, forSlice bool) string {
	if pageable == nil {
		return q.Render(nil)
	}
	var b strings.Builder
	b.WriteString(q.base(q.mode))
	b.WriteString(q.orderBy(q.sort.And(pageable.Sort)))
	p := query.LimitPagination(pageable, q.limit, forSlice)
	fmt.Fprintf(&b, " SKIP %d LIMIT %d", p.Offset, p.Limit)
	return b.String()
}

func (q *CypherQuery) base(mode ReturnMode) string {
	var clauses []string

	rootRestricted := false
	for _, s := range q.starts {
		if s.PartInfo().Variable() == q.variable {
			rootRestricted = true
		}
	}

	wheres := q.wheres
	switch {
	case len(q.starts) == 0 && !q.useLabels:
		clauses = append(clauses, fmt.Sprintf("START `%s`=node:__types__(className=\"%s\")", q.variable, q.entity.Name))
	case len(q.starts) > 0:
		parts := make([]string, len(q.starts))
		for i, s := range q.starts {
			parts[i] = s.String()
		}
		clauses = append(clauses, "START "+strings.Join(parts, ", "))
		if !rootRestricted && !q.useLabels {
			wheres = append([]*WhereClause{newTypeWhere(q.variable, q.entity, false)}, wheres...)
		}
		if rootRestricted && q.useLabels && q.sharedRootIndex() {
			wheres = append([]*WhereClause{newTypeWhere(q.variable, q.entity, true)}, wheres...)
		}
	}

	matches := make([]string, 0, len(q.matches)+1)
	labelRoot := q.useLabels && !rootRestricted
	for i, m := range q.matches {
		if i == 0 && labelRoot {
			labeled := *m
			labeled.rootLabel = q.entity.PrimaryLabel
			matches = append(matches, labeled.String())
			continue
		}
		matches = append(matches, m.String())
	}
	if len(q.matches) == 0 && labelRoot {
		matches = append(matches, fmt.Sprintf("(`%s`:`%s`)", q.variable, q.entity.PrimaryLabel))
	}
	if len(matches) > 0 {
		clauses = append(clauses, "MATCH "+strings.Join(matches, ", "))
	}

	if len(wheres) > 0 {
		parts := make([]string, len(wheres))
		for i, w := range wheres {
			parts[i] = w.String()
		}
		clauses = append(clauses, "WHERE "+strings.Join(parts, " AND "))
	}

	v := "`" + q.variable + "`"
	switch mode {
	case ReturnCount:
		if q.distinct {
			clauses = append(clauses, "RETURN count(DISTINCT "+v+")")
		} else {
			clauses = append(clauses, "RETURN count("+v+")")
		}
	case ReturnDelete:
		clauses = append(clauses, "DETACH DELETE "+v+" RETURN count("+v+")")
	case ReturnDeleteIDs:
		clauses = append(clauses, fmt.Sprintf("WITH %s, %s AS %s DETACH DELETE %s RETURN %s",
			v, generator.IDExpression(v, q.entity), generator.ColumnID, v, generator.ColumnID))
	default:
		if q.distinct {
			clauses = append(clauses, "RETURN DISTINCT "+v)
		} else {
			clauses = append(clauses, "RETURN "+v)
		}
	}
	return strings.Join(clauses, " ")
}

// sharedRootIndex 根节点的起点索引不是实体自己的索引时，结果可能混入其他类型
func (q *CypherQuery) sharedRootIndex() bool {
	for _, s := range q.starts {
		if s.PartInfo().Variable() == q.variable && s.PartInfo().IndexName() != q.entity.PrimaryLabel {
			return true
		}
	}
	return false
}

// orderBy 属性名解析为图属性，裸属性补上根变量
func (q *CypherQuery) orderBy(sort query.Sort) string {
	if !sort.IsSorted() {
		return ""
	}
	items := make([]string, 0, len(sort))
	for _, o := range sort {
		items = append(items, q.sortItem(o))
	}
	return " ORDER BY " + strings.Join(items, ",")
}

func (q *CypherQuery) sortItem(o query.Order) string {
	prop := o.Property
	if path, err := q.ctx.PropertyPath(q.entity, prop); err == nil && path.Leaf().IsPrimitive() {
		prop = variableName(path.Root, nodeSegments(path)) + "." + path.Leaf().PropertyName
	} else if !strings.Contains(prop, ".") && !strings.Contains(prop, "(") {
		prop = q.variable + "." + prop
	}
	if o.IgnoreCase {
		prop = "toLower(" + prop + ")"
	}
	return prop + " " + o.Direction.String()
}
