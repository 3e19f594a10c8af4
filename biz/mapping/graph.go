package mapping

// GraphNode 是与传输层无关的节点表示。
// bolt 驱动的 dbtype.Node 与 REST 的 RestNode 都会被转换成它。
type GraphNode struct {
	ID        int64
	ElementID string
	Labels    []string
	Props     map[string]any
}

// HasLabel 节点是否带有给定标签
func (n GraphNode) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// GraphRelationship 是与传输层无关的关系表示
type GraphRelationship struct {
	ID      int64
	Type    string
	StartID int64
	EndID   int64
	Props   map[string]any
}

// Row 是一条查询结果记录，key 为 RETURN 中的列名
type Row map[string]any

// Node 返回列中的节点。只有一个节点列时 column 可以为空。
func (r Row) Node(column string) (GraphNode, bool) {
	if column != "" {
		n, ok := r[column].(GraphNode)
		return n, ok
	}
	var (
		found GraphNode
		count int
	)
	for _, v := range r {
		if n, ok := v.(GraphNode); ok {
			found = n
			count++
		}
	}
	return found, count == 1
}
