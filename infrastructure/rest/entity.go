package rest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"neo4jogm/biz/mapping"
)

// RestNode 是 REST 接口返回的节点
type RestNode struct {
	ID     int64
	URI    string
	Labels []string
	Props  map[string]any

	fetchedAt time.Time
}

// RestRelationship 是 REST 接口返回的关系
type RestRelationship struct {
	ID      int64
	URI     string
	Type    string
	StartID int64
	EndID   int64
	Props   map[string]any

	fetchedAt time.Time
}

// ToGraphNode 转换为传输无关的节点
func (n *RestNode) ToGraphNode() mapping.GraphNode {
	return mapping.GraphNode{ID: n.ID, Labels: n.Labels, Props: n.Props}
}

// ToGraphRelationship 转换为传输无关的关系
func (r *RestRelationship) ToGraphRelationship() mapping.GraphRelationship {
	return mapping.GraphRelationship{ID: r.ID, Type: r.Type, StartID: r.StartID, EndID: r.EndID, Props: r.Props}
}

// NodeURI node/{id} 的绝对地址
func NodeURI(baseURI string, id int64) string {
	return strings.TrimRight(baseURI, "/") + "/node/" + strconv.FormatInt(id, 10)
}

// RelationshipURI relationship/{id} 的绝对地址
func RelationshipURI(baseURI string, id int64) string {
	return strings.TrimRight(baseURI, "/") + "/relationship/" + strconv.FormatInt(id, 10)
}

// EntityID 取 URI 最后一段作为 ID
func EntityID(uri string) (int64, error) {
	uri = strings.TrimRight(uri, "/")
	idx := strings.LastIndex(uri, "/")
	id, err := strconv.ParseInt(uri[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rest: no entity id in uri %q", uri)
	}
	return id, nil
}

// IsNodeRepresentation 带 self 且指向 /node/ 的 map，或 cypher 结果中带 id、labels、properties 的 map
func IsNodeRepresentation(m map[string]any) bool {
	if self, ok := m["self"].(string); ok {
		return strings.Contains(self, "/node/")
	}
	_, hasID := m["id"]
	_, hasProps := m["properties"]
	_, hasLabels := m["labels"]
	return hasID && hasProps && hasLabels
}

// IsRelationshipRepresentation 与节点类似，关系带 type
func IsRelationshipRepresentation(m map[string]any) bool {
	if self, ok := m["self"].(string); ok {
		return strings.Contains(self, "/relationship/")
	}
	_, hasID := m["id"]
	_, hasProps := m["properties"]
	_, hasType := m["type"]
	return hasID && hasProps && hasType
}

// NodeFromMap 解析节点表示：
//
//	{"self": ".../node/1", "data": {...}, "metadata": {"id": 1, "labels": [...]}}
//	{"id": 1, "labels": [...], "properties": {...}}
func NodeFromMap(m map[string]any) (*RestNode, error) {
	n := &RestNode{fetchedAt: time.Now()}
	if self, ok := m["self"].(string); ok {
		id, err := EntityID(self)
		if err != nil {
			return nil, err
		}
		n.ID, n.URI = id, self
		n.Props, _ = m["data"].(map[string]any)
		if meta, ok := m["metadata"].(map[string]any); ok {
			n.Labels = toStrings(meta["labels"])
		}
	} else {
		id, ok := asInt64(m["id"])
		if !ok {
			return nil, fmt.Errorf("rest: node representation without id: %v", m)
		}
		n.ID = id
		n.Props, _ = m["properties"].(map[string]any)
		n.Labels = toStrings(m["labels"])
	}
	if n.Props == nil {
		n.Props = map[string]any{}
	}
	return n, nil
}

// RelationshipFromMap 解析关系表示，start/end 为节点 URI，或 cypher 结果中的 startNode/endNode
func RelationshipFromMap(m map[string]any) (*RestRelationship, error) {
	r := &RestRelationship{fetchedAt: time.Now()}
	r.Type, _ = m["type"].(string)
	if self, ok := m["self"].(string); ok {
		id, err := EntityID(self)
		if err != nil {
			return nil, err
		}
		r.ID, r.URI = id, self
		r.Props, _ = m["data"].(map[string]any)
		if start, ok := m["start"].(string); ok {
			if r.StartID, err = EntityID(start); err != nil {
				return nil, err
			}
		}
		if end, ok := m["end"].(string); ok {
			if r.EndID, err = EntityID(end); err != nil {
				return nil, err
			}
		}
	} else {
		id, ok := asInt64(m["id"])
		if !ok {
			return nil, fmt.Errorf("rest: relationship representation without id: %v", m)
		}
		r.ID = id
		r.Props, _ = m["properties"].(map[string]any)
		r.StartID, _ = asInt64(m["startNode"])
		r.EndID, _ = asInt64(m["endNode"])
	}
	if r.Props == nil {
		r.Props = map[string]any{}
	}
	return r, nil
}

func toStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// asInt64 JSON 数字解析为 float64，也可能是字符串形式的 ID
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
