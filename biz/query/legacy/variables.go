package legacy

import (
	"strings"
	"unicode"

	"neo4jogm/biz/mapping"
)

// VariableContext 为属性路径分配 Cypher 变量名，同一路径在一个查询内复用同一个变量。
// 根实体变量为类型名首字母小写，每跨一个关系追加 _字段名。
type VariableContext struct {
	vars map[string]string
}

// NewVariableContext 创建变量上下文
func NewVariableContext() *VariableContext {
	return &VariableContext{vars: make(map[string]string)}
}

// EntityVariable 根实体变量
func (vc *VariableContext) EntityVariable(nd *mapping.NodeDescription) string {
	return vc.lookup(nd.Name, func() string { return uncapitalize(nd.Name) })
}

// VariableFor 路径所指节点的变量：叶子是普通属性时为其所属节点，叶子是关联时为关联目标
func (vc *VariableContext) VariableFor(path mapping.PropertyPath) string {
	return vc.variableForSegments(path.Root, nodeSegments(path))
}

func (vc *VariableContext) variableForSegments(root *mapping.NodeDescription, segs []*mapping.PersistentProperty) string {
	if len(segs) == 0 {
		return vc.EntityVariable(root)
	}
	names := make([]string, 0, len(segs)+1)
	names = append(names, root.Name)
	for _, s := range segs {
		names = append(names, s.PropertyName)
	}
	key := strings.Join(names, ".")
	return vc.lookup(key, func() string { return variableName(root, segs) })
}

// variableName 变量名只由路径决定，渲染阶段直接计算，不写入上下文
func variableName(root *mapping.NodeDescription, segs []*mapping.PersistentProperty) string {
	parts := []string{uncapitalize(root.Name)}
	for _, s := range segs {
		parts = append(parts, s.PropertyName)
	}
	return strings.Join(parts, "_")
}

func (vc *VariableContext) lookup(key string, create func() string) string {
	if v, ok := vc.vars[key]; ok {
		return v
	}
	v := create()
	vc.vars[key] = v
	return v
}

// nodeSegments 返回路径中经过的关联段
func nodeSegments(path mapping.PropertyPath) []*mapping.PersistentProperty {
	var out []*mapping.PersistentProperty
	for _, s := range path.Segments {
		if s.IsAssociation() {
			out = append(out, s)
		}
	}
	return out
}

func uncapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
