// Package generator 生成增删改查用到的 Cypher 语句。根节点固定命名为 n。
package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/filter"
)

const (
	RootNode        = "n"
	ParamID         = "__id__"
	ParamProperties = "__properties__"
	ParamFromID     = "fromId"
	ColumnID        = "__id__"
	ColumnCount     = "__count__"
)

var (
	// ErrSortProperty 排序属性无法解析
	ErrSortProperty = errors.New("generator: cannot order by unknown graph property")
	// ErrSortDepth 排序只支持跨一层关系
	ErrSortDepth = errors.New("generator: cannot order by a property more than one relationship away")
)

// Generator 按参数风格生成语句
type Generator struct {
	style filter.Style
}

// New 创建生成器
func New(style filter.Style) *Generator {
	return &Generator{style: style}
}

// Default 使用 $name 参数
var Default = New(filter.Bolt)

// Style 参数风格
func (g *Generator) Style() filter.Style { return g.style }

func (g *Generator) param(name string) string {
	return g.style.Placeholder(name)
}

// NodePattern 输出 (v:`A`:`B`)
func NodePattern(v string, nd *mapping.NodeDescription) string {
	var b strings.Builder
	b.WriteString("(" + v)
	for _, l := range nd.AllLabels() {
		b.WriteString(":`" + l + "`")
	}
	b.WriteString(")")
	return b.String()
}

// IDExpression 实体 ID 在 Cypher 中的表达式
func IDExpression(v string, nd *mapping.NodeDescription) string {
	if nd.IsUsingInternalIDs() {
		return "id(" + v + ")"
	}
	return v + ".`" + nd.ID.PropertyName + "`"
}

// IDCondition 按 ID 查找的条件
func (g *Generator) IDCondition(nd *mapping.NodeDescription) string {
	return IDExpression(RootNode, nd) + " = " + g.param(ParamID)
}

// PrepareMatchOf MATCH 根节点，condition 为空时不带 WHERE
func (g *Generator) PrepareMatchOf(nd *mapping.NodeDescription, condition string) string {
	s := "MATCH " + NodePattern(RootNode, nd)
	if condition != "" {
		s += " WHERE " + condition
	}
	return s
}

// PrepareFindOf 返回根节点
func (g *Generator) PrepareFindOf(nd *mapping.NodeDescription, condition string) string {
	return g.PrepareMatchOf(nd, condition) + " RETURN " + RootNode
}

// PrepareDeleteOf 删除满足条件的节点及其关系
func (g *Generator) PrepareDeleteOf(nd *mapping.NodeDescription, condition string) string {
	return g.PrepareMatchOf(nd, condition) + " DETACH DELETE " + RootNode
}

// CountOf 计数
func (g *Generator) CountOf(nd *mapping.NodeDescription, condition string) string {
	return g.PrepareMatchOf(nd, condition) + " RETURN count(" + RootNode + ") AS " + ColumnCount
}

// PrepareSaveOf 保存单个实体。外部 ID 用 MERGE；内部 ID 用 OPTIONAL MATCH 判断新建还是更新。
// 语句返回节点的内部 ID。
func (g *Generator) PrepareSaveOf(nd *mapping.NodeDescription) string {
	id, props := g.param(ParamID), g.param(ParamProperties)
	if !nd.IsUsingInternalIDs() {
		var b strings.Builder
		b.WriteString("MERGE (" + RootNode)
		for _, l := range nd.AllLabels() {
			b.WriteString(":`" + l + "`")
		}
		fmt.Fprintf(&b, " {`%s`: %s}) SET %s += %s RETURN id(%s) AS %s", nd.ID.PropertyName, id, RootNode, props, RootNode, ColumnID)
		return b.String()
	}
	createIfNew := fmt.Sprintf("OPTIONAL MATCH %s WHERE id(hlp) = %s WITH hlp WHERE hlp IS NULL CREATE %s SET %s = %s RETURN id(%s) AS %s",
		NodePattern("hlp", nd), id, NodePattern(RootNode, nd), RootNode, props, RootNode, ColumnID)
	updateIfExists := fmt.Sprintf("MATCH %s WHERE id(%s) = %s SET %s += %s RETURN id(%s) AS %s",
		NodePattern(RootNode, nd), RootNode, id, RootNode, props, RootNode, ColumnID)
	return createIfNew + " UNION " + updateIfExists
}

// PrepareUpdateLabels 设置动态标签，remove 中的标签会被移除
func (g *Generator) PrepareUpdateLabels(add, remove []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (%s) WHERE id(%s) = %s", RootNode, RootNode, g.param(ParamID))
	if len(add) > 0 {
		b.WriteString(" SET " + RootNode)
		for _, l := range add {
			b.WriteString(":`" + l + "`")
		}
	}
	if len(remove) > 0 {
		b.WriteString(" REMOVE " + RootNode)
		for _, l := range remove {
			b.WriteString(":`" + l + "`")
		}
	}
	return b.String()
}

func (g *Generator) startNode(nd *mapping.NodeDescription) (pattern, condition string) {
	from := g.param(ParamFromID)
	if nd.IsUsingInternalIDs() {
		return "(startNode)", "id(startNode) = " + from
	}
	return NodePattern("startNode", nd), propertyRef("startNode", nd.ID.PropertyName) + " = " + from
}

var simpleIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// propertyRef 属性名是普通标识符时不加反引号
func propertyRef(v, name string) string {
	if simpleIdentifier.MatchString(name) {
		return v + "." + name
	}
	return v + ".`" + name + "`"
}

// PrepareSaveOfRelationship 在实体与一个已持久化节点之间建立关系。
// 动态关系使用 dynamicType 作为类型。
func (g *Generator) PrepareSaveOfRelationship(nd *mapping.NodeDescription, rel *mapping.RelationshipDescription,
	dynamicType string, relatedID int64) string {
	start, cond := g.startNode(nd)
	typ := rel.Type
	if rel.Dynamic {
		typ = dynamicType
	}
	var pattern string
	if rel.Direction != mapping.Incoming {
		pattern = fmt.Sprintf("(startNode)-[:`%s`]->(endNode)", typ)
	} else {
		pattern = fmt.Sprintf("(startNode)<-[:`%s`]-(endNode)", typ)
	}
	return fmt.Sprintf("MATCH %s WHERE %s MATCH (endNode) WHERE id(endNode) = %d MERGE %s",
		start, cond, relatedID, pattern)
}

// PrepareDeleteOfRelationship 删除实体在该关联上的全部关系
func (g *Generator) PrepareDeleteOfRelationship(nd *mapping.NodeDescription, rel *mapping.RelationshipDescription) string {
	start, cond := g.startNode(nd)
	r := "[rel]"
	if !rel.Dynamic && rel.Type != "" {
		r = "[rel:`" + rel.Type + "`]"
	}
	end := NodePattern("", rel.Target)
	var pattern string
	switch rel.Direction {
	case mapping.Incoming:
		pattern = start + "<-" + r + "-" + end
	case mapping.Undirected:
		pattern = start + "-" + r + "-" + end
	default:
		pattern = start + "-" + r + "->" + end
	}
	return fmt.Sprintf("MATCH %s WHERE %s DELETE rel", pattern, cond)
}
