package legacy

import (
	"strings"

	"neo4jogm/biz/mapping"
)

// MatchClause 是从根实体出发、沿关联走到目标节点的路径模式
type MatchClause struct {
	root      *mapping.NodeDescription
	segments  []*mapping.PersistentProperty
	variables []string // variables[0] 是根变量，其余依次对应每一跳的目标节点
	rootLabel string   // 非空时根节点带标签输出
}

func newMatchClause(vars *VariableContext, path mapping.PropertyPath) *MatchClause {
	segs := nodeSegments(path)
	m := &MatchClause{root: path.Root, segments: segs}
	m.variables = append(m.variables, vars.EntityVariable(path.Root))
	for i := range segs {
		m.variables = append(m.variables, vars.variableForSegments(path.Root, segs[:i+1]))
	}
	return m
}

// covers 当前路径是否已包含 other 的全部跳
func (m *MatchClause) covers(other *MatchClause) bool {
	if len(other.segments) > len(m.segments) {
		return false
	}
	for i, s := range other.segments {
		if m.segments[i] != s {
			return false
		}
	}
	return true
}

// RootVariable 根节点变量
func (m *MatchClause) RootVariable() string {
	return m.variables[0]
}

func (m *MatchClause) String() string {
	var b strings.Builder
	b.WriteString("(`" + m.variables[0] + "`")
	if m.rootLabel != "" {
		b.WriteString(":`" + m.rootLabel + "`")
	}
	b.WriteString(")")
	for i, seg := range m.segments {
		rel := seg.Relationship
		typ := "[]"
		if !rel.Dynamic && rel.Type != "" {
			typ = "[:`" + rel.Type + "`]"
		}
		switch rel.Direction {
		case mapping.Incoming:
			b.WriteString("<-" + typ + "-")
		case mapping.Undirected:
			b.WriteString("-" + typ + "-")
		default:
			b.WriteString("-" + typ + "->")
		}
		b.WriteString("(`" + m.variables[i+1] + "`)")
	}
	return b.String()
}
