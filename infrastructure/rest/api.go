package rest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"
)

// Direction 关系方向在 REST 路径中的写法
type Direction string

const (
	DirectionAll Direction = "all"
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// IndexType 旧式索引的实体类型
type IndexType string

const (
	NodeIndex         IndexType = "node"
	RelationshipIndex IndexType = "relationship"
)

// CypherResult 是 cypher 端点的返回
type CypherResult struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// BatchOperation 是 batch 端点中的一个操作，To 为相对路径
type BatchOperation struct {
	Method string `json:"method"`
	To     string `json:"to"`
	Body   any    `json:"body,omitempty"`
	ID     int    `json:"id"`
}

// BatchResult 是 batch 端点中一个操作的结果
type BatchResult struct {
	ID       int    `json:"id"`
	From     string `json:"from"`
	Location string `json:"location,omitempty"`
	Body     any    `json:"body"`
	Status   int    `json:"status"`
}

// RestAPI 封装图数据库的 REST 端点，按 ID 读取的节点和关系经过 EntityCache
type RestAPI struct {
	req    RestRequest
	cache  *EntityCache
	logger *zap.Logger
}

// NewRestAPI 创建 REST 接口，cache 由调用方创建并负责关闭
func NewRestAPI(req RestRequest, cache *EntityCache, logger *zap.Logger) *RestAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestAPI{req: req, cache: cache, logger: logger.Named("rest")}
}

// BaseURI 服务器根地址
func (a *RestAPI) BaseURI() string { return a.req.URI() }

// Cache 实体缓存
func (a *RestAPI) Cache() *EntityCache { return a.cache }

// GetNodeByID 读取节点。响应中没有 metadata 时单独请求标签。
func (a *RestAPI) GetNodeByID(ctx context.Context, id int64, mode LoadMode) (*RestNode, error) {
	if mode != LoadForceFromServer {
		if n, ok := a.cache.Node(id); ok {
			return n, nil
		}
	}
	if mode == LoadFromCache {
		return &RestNode{ID: id, URI: NodeURI(a.BaseURI(), id)}, nil
	}
	res, err := a.req.Get(ctx, fmt.Sprintf("node/%d", id))
	if err != nil {
		return nil, err
	}
	if err := res.check(fmt.Sprintf("node %d", id)); err != nil {
		return nil, err
	}
	data, err := res.ToMap()
	if err != nil {
		return nil, err
	}
	n, err := NodeFromMap(data)
	if err != nil {
		return nil, err
	}
	if _, ok := data["metadata"]; !ok {
		if n.Labels, err = a.GetNodeLabels(ctx, id); err != nil {
			return nil, err
		}
	}
	return a.cache.AddNode(n), nil
}

// GetRelationshipByID 读取关系
func (a *RestAPI) GetRelationshipByID(ctx context.Context, id int64, mode LoadMode) (*RestRelationship, error) {
	if mode != LoadForceFromServer {
		if r, ok := a.cache.Relationship(id); ok {
			return r, nil
		}
	}
	if mode == LoadFromCache {
		return &RestRelationship{ID: id, URI: RelationshipURI(a.BaseURI(), id)}, nil
	}
	res, err := a.req.Get(ctx, fmt.Sprintf("relationship/%d", id))
	if err != nil {
		return nil, err
	}
	if err := res.check(fmt.Sprintf("relationship %d", id)); err != nil {
		return nil, err
	}
	data, err := res.ToMap()
	if err != nil {
		return nil, err
	}
	r, err := RelationshipFromMap(data)
	if err != nil {
		return nil, err
	}
	return a.cache.AddRelationship(r), nil
}

// CreateNode 创建节点后添加标签
func (a *RestAPI) CreateNode(ctx context.Context, props map[string]any, labels []string) (*RestNode, error) {
	if props == nil {
		props = map[string]any{}
	}
	res, err := a.req.Post(ctx, "node", props)
	if err != nil {
		return nil, err
	}
	if err := res.check("create node"); err != nil {
		return nil, err
	}
	var n *RestNode
	if data, mapErr := res.ToMap(); mapErr == nil {
		n, err = NodeFromMap(data)
	} else if res.Location != "" {
		var id int64
		id, err = EntityID(res.Location)
		n = &RestNode{ID: id, URI: res.Location, Props: props}
	} else {
		err = fmt.Errorf("%w: create node returned neither body nor location", ErrUnexpectedStatus)
	}
	if err != nil {
		return nil, err
	}
	if len(labels) > 0 {
		if err := a.AddLabels(ctx, n, labels); err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, labels...)
	}
	return a.cache.AddNode(n), nil
}

func (a *RestAPI) nodeRequest(n *RestNode) RestRequest {
	uri := n.URI
	if uri == "" {
		uri = NodeURI(a.BaseURI(), n.ID)
	}
	return a.req.With(uri)
}

// AddLabels 给节点添加标签
func (a *RestAPI) AddLabels(ctx context.Context, n *RestNode, labels []string) error {
	res, err := a.nodeRequest(n).Post(ctx, "labels", labels)
	if err != nil {
		return err
	}
	return res.check(fmt.Sprintf("add labels to node %d", n.ID))
}

// RemoveLabel 移除节点标签
func (a *RestAPI) RemoveLabel(ctx context.Context, n *RestNode, label string) error {
	res, err := a.nodeRequest(n).Delete(ctx, "labels/"+Encode(label))
	if err != nil {
		return err
	}
	if err := res.check(fmt.Sprintf("remove label from node %d", n.ID)); err != nil {
		return err
	}
	a.cache.RemoveNode(n.ID)
	return nil
}

// GetNodeLabels 读取节点标签
func (a *RestAPI) GetNodeLabels(ctx context.Context, id int64) ([]string, error) {
	res, err := a.req.Get(ctx, fmt.Sprintf("node/%d/labels", id))
	if err != nil {
		return nil, err
	}
	if err := res.check(fmt.Sprintf("labels of node %d", id)); err != nil {
		return nil, err
	}
	var labels []string
	if err := res.Decode(&labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// GetNodesByLabel 读取带某个标签的全部节点
func (a *RestAPI) GetNodesByLabel(ctx context.Context, label string) ([]*RestNode, error) {
	res, err := a.req.Get(ctx, "label/"+Encode(label)+"/nodes")
	if err != nil {
		return nil, err
	}
	if err := res.check("nodes with label " + label); err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := res.Decode(&list); err != nil {
		return nil, err
	}
	nodes := make([]*RestNode, 0, len(list))
	for _, m := range list {
		n, err := NodeFromMap(m)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, a.cache.AddNode(n))
	}
	return nodes, nil
}

// CreateRelationship 在两个节点之间创建关系
func (a *RestAPI) CreateRelationship(ctx context.Context, start, end *RestNode, relType string, props map[string]any) (*RestRelationship, error) {
	endURI := end.URI
	if endURI == "" {
		endURI = NodeURI(a.BaseURI(), end.ID)
	}
	data := map[string]any{"to": endURI, "type": relType}
	if len(props) > 0 {
		data["data"] = props
	}
	res, err := a.nodeRequest(start).Post(ctx, "relationships", data)
	if err != nil {
		return nil, err
	}
	if !res.StatusIs(consts.StatusCreated) {
		return nil, fmt.Errorf("%w: create relationship returned %d: %s", ErrUnexpectedStatus, res.Status, res.Text())
	}
	m, err := res.ToMap()
	if err != nil {
		return nil, err
	}
	r, err := RelationshipFromMap(m)
	if err != nil {
		return nil, err
	}
	return a.cache.AddRelationship(r), nil
}

// GetRelationships 读取节点的关系，types 为空时不按类型过滤
func (a *RestAPI) GetRelationships(ctx context.Context, n *RestNode, dir Direction, types ...string) ([]*RestRelationship, error) {
	path := "relationships/" + string(dir)
	if len(types) > 0 {
		encoded := make([]string, len(types))
		for i, t := range types {
			encoded[i] = Encode(t)
		}
		path += "/" + strings.Join(encoded, "&")
	}
	res, err := a.nodeRequest(n).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := res.check(fmt.Sprintf("relationships of node %d", n.ID)); err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := res.Decode(&list); err != nil {
		return nil, err
	}
	rels := make([]*RestRelationship, 0, len(list))
	for _, m := range list {
		r, err := RelationshipFromMap(m)
		if err != nil {
			return nil, err
		}
		rels = append(rels, a.cache.AddRelationship(r))
	}
	return rels, nil
}

// SetProperties 覆盖实体全部属性，uri 为节点或关系的地址
func (a *RestAPI) SetProperties(ctx context.Context, uri string, props map[string]any) error {
	res, err := a.req.With(uri).Put(ctx, "properties", props)
	if err != nil {
		return err
	}
	a.evict(uri)
	return res.check("set properties on " + uri)
}

// SetProperty 设置单个属性
func (a *RestAPI) SetProperty(ctx context.Context, uri, key string, value any) error {
	res, err := a.req.With(uri).Put(ctx, "properties/"+Encode(key), value)
	if err != nil {
		return err
	}
	a.evict(uri)
	return res.check("set property " + key + " on " + uri)
}

// RemoveProperty 删除单个属性
func (a *RestAPI) RemoveProperty(ctx context.Context, uri, key string) error {
	res, err := a.req.With(uri).Delete(ctx, "properties/"+Encode(key))
	if err != nil {
		return err
	}
	a.evict(uri)
	return res.check("remove property " + key + " on " + uri)
}

// DeleteEntity 删除节点或关系
func (a *RestAPI) DeleteEntity(ctx context.Context, uri string) error {
	res, err := a.req.With(uri).Delete(ctx, "")
	if err != nil {
		return err
	}
	a.evict(uri)
	return res.check("delete " + uri)
}

func (a *RestAPI) evict(uri string) {
	id, err := EntityID(uri)
	if err != nil {
		return
	}
	if strings.Contains(uri, "/relationship/") {
		a.cache.RemoveRelationship(id)
	} else {
		a.cache.RemoveNode(id)
	}
}

// Query 执行 Cypher，参数使用 {name} 占位符
func (a *RestAPI) Query(ctx context.Context, statement string, params map[string]any) (*CypherResult, error) {
	if params == nil {
		params = map[string]any{}
	}
	a.logger.Debug("执行 Cypher", zap.String("cypher", statement))
	res, err := a.req.Post(ctx, "cypher", map[string]any{"query": statement, "params": params})
	if err != nil {
		return nil, err
	}
	if err := res.check("cypher"); err != nil {
		return nil, err
	}
	var out CypherResult
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Batch 在一个请求中执行多个操作
func (a *RestAPI) Batch(ctx context.Context, ops []BatchOperation) ([]BatchResult, error) {
	res, err := a.req.Post(ctx, "batch", ops)
	if err != nil {
		return nil, err
	}
	if err := res.check("batch"); err != nil {
		return nil, err
	}
	var out []BatchResult
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// IndexPath index/{type}/{name}[/{key}[/{value}]]
func IndexPath(t IndexType, name string, key string, value any) string {
	path := "index/" + string(t) + "/" + Encode(name)
	if key != "" {
		path += "/" + Encode(key)
		if value != nil {
			path += "/" + Encode(value)
		}
	}
	return path
}

// CreateIndex 创建旧式索引，config 例如 {"type": "fulltext", "provider": "lucene"}
func (a *RestAPI) CreateIndex(ctx context.Context, t IndexType, name string, config map[string]string) error {
	res, err := a.req.Post(ctx, "index/"+string(t), map[string]any{"name": name, "config": config})
	if err != nil {
		return err
	}
	return res.check("create index " + name)
}

// GetIndexedNodes 精确查找索引中的节点
func (a *RestAPI) GetIndexedNodes(ctx context.Context, index, key string, value any) ([]*RestNode, error) {
	return a.indexHits(ctx, IndexPath(NodeIndex, index, key, value))
}

// QueryIndexedNodes 用 Lucene 查询语句查找索引中的节点
func (a *RestAPI) QueryIndexedNodes(ctx context.Context, index, key, query string) ([]*RestNode, error) {
	return a.indexHits(ctx, IndexPath(NodeIndex, index, key, nil)+"?query="+Encode(query))
}

func (a *RestAPI) indexHits(ctx context.Context, path string) ([]*RestNode, error) {
	res, err := a.req.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := res.check(path); err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := res.Decode(&list); err != nil {
		return nil, err
	}
	nodes := make([]*RestNode, 0, len(list))
	for _, m := range list {
		n, err := NodeFromMap(m)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, a.cache.AddNode(n))
	}
	return nodes, nil
}

// AddToIndex 把节点加入旧式索引
func (a *RestAPI) AddToIndex(ctx context.Context, n *RestNode, index, key string, value any) error {
	uri := n.URI
	if uri == "" {
		uri = NodeURI(a.BaseURI(), n.ID)
	}
	res, err := a.req.Post(ctx, IndexPath(NodeIndex, index, "", nil), map[string]any{"key": key, "value": value, "uri": uri})
	if err != nil {
		return err
	}
	return res.check(fmt.Sprintf("add node %d to index %s", n.ID, index))
}
