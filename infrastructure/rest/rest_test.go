package rest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4jogm/biz/mapping"
)

const base = "http://localhost:7474/db/data"

type fakeResponse struct {
	status   int
	body     string
	location string
}

type recorded struct {
	method string
	uri    string
	body   []byte
	auth   string
}

// fakeDoer 按 "METHOD URI" 返回预设响应并记录请求，未配置的请求返回 404
type fakeDoer struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	requests  []recorded
	err       error
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{responses: map[string]fakeResponse{}}
}

func (d *fakeDoer) on(method, uri string, status int, body string) *fakeDoer {
	d.responses[method+" "+uri] = fakeResponse{status: status, body: body}
	return d
}

func (d *fakeDoer) Do(_ context.Context, req *protocol.Request, resp *protocol.Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := recorded{
		method: string(req.Method()),
		uri:    req.URI().String(),
		body:   append([]byte(nil), req.Body()...),
		auth:   req.Header.Get("Authorization"),
	}
	d.requests = append(d.requests, rec)
	if d.err != nil {
		return d.err
	}
	r, ok := d.responses[rec.method+" "+rec.uri]
	if !ok {
		r = fakeResponse{status: 404}
	}
	resp.SetStatusCode(r.status)
	resp.SetBody([]byte(r.body))
	if r.location != "" {
		resp.Header.Set("Location", r.location)
	}
	return nil
}

func (d *fakeDoer) count(method, uri string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.method == method && r.uri == uri {
			n++
		}
	}
	return n
}

func (d *fakeDoer) last() recorded {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

func bodyOf(t *testing.T, r recorded) any {
	t.Helper()
	var v any
	require.NoError(t, sonic.Unmarshal(r.body, &v))
	return v
}

func newAPI(t *testing.T, d *fakeDoer) *RestAPI {
	t.Helper()
	return NewRestAPI(NewExecutingRestRequest(d, base, "", ""), newCache(t, time.Minute), nil)
}

func newCache(t *testing.T, refetch time.Duration) *EntityCache {
	t.Helper()
	c, err := NewEntityCache(refetch, 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

const aliceJSON = `{"self":"` + base + `/node/1","data":{"name":"Alice","age":30},"metadata":{"id":1,"labels":["Person"]}}`

func TestExecutingRestRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("认证头与请求体", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/node", 201, `{}`)
		req := NewExecutingRestRequest(d, base+"/", "neo4j", "secret")

		res, err := req.Post(ctx, "/node", map[string]any{"name": "Alice"})
		require.NoError(t, err)
		assert.True(t, res.Success())
		assert.Equal(t, "Basic bmVvNGo6c2VjcmV0", d.last().auth)
		assert.Equal(t, map[string]any{"name": "Alice"}, bodyOf(t, d.last()))
	})

	t.Run("With 使用新的基础地址并保留认证", func(t *testing.T) {
		d := newFakeDoer().on("GET", base+"/node/1/labels", 200, `["Person"]`)
		req := NewExecutingRestRequest(d, base, "neo4j", "secret").With(base + "/node/1")

		assert.Equal(t, base+"/node/1", req.URI())
		res, err := req.Get(ctx, "labels")
		require.NoError(t, err)
		assert.Equal(t, `["Person"]`, res.Text())
		assert.NotEmpty(t, d.last().auth)
	})

	t.Run("绝对地址原样使用", func(t *testing.T) {
		d := newFakeDoer().on("DELETE", base+"/relationship/3", 204, "")
		req := NewExecutingRestRequest(d, base, "", "")

		res, err := req.Delete(ctx, base+"/relationship/3")
		require.NoError(t, err)
		assert.True(t, res.StatusIs(204))
		assert.Empty(t, d.last().auth)
	})

	t.Run("传输错误", func(t *testing.T) {
		d := newFakeDoer()
		d.err = errors.New("connection refused")
		_, err := NewExecutingRestRequest(d, base, "", "").Get(ctx, "node/1")
		assert.ErrorIs(t, err, d.err)
	})
}

func TestRequestResult(t *testing.T) {
	t.Run("404 映射为 ErrNotFound", func(t *testing.T) {
		r := &RequestResult{Status: 404}
		assert.ErrorIs(t, r.check("node 1"), ErrNotFound)
	})

	t.Run("其他非 2xx", func(t *testing.T) {
		r := &RequestResult{Status: 500, Body: []byte("boom")}
		err := r.check("cypher")
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("解析 JSON 对象", func(t *testing.T) {
		r := &RequestResult{Status: 200, Body: []byte(`{"a":1}`)}
		assert.True(t, r.IsMap())
		m, err := r.ToMap()
		require.NoError(t, err)
		assert.Equal(t, float64(1), m["a"])
		assert.False(t, (&RequestResult{Body: []byte(`[1]`)}).IsMap())
	})
}

func TestEntityParsing(t *testing.T) {
	t.Run("self 形式的节点", func(t *testing.T) {
		var m map[string]any
		require.NoError(t, sonic.UnmarshalString(aliceJSON, &m))
		assert.True(t, IsNodeRepresentation(m))
		assert.False(t, IsRelationshipRepresentation(m))

		n, err := NodeFromMap(m)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n.ID)
		assert.Equal(t, base+"/node/1", n.URI)
		assert.Equal(t, []string{"Person"}, n.Labels)
		assert.Equal(t, "Alice", n.Props["name"])
	})

	t.Run("cypher 形式的关系", func(t *testing.T) {
		m := map[string]any{"id": "5", "type": "KNOWS", "startNode": "1", "endNode": "2", "properties": map[string]any{}}
		assert.True(t, IsRelationshipRepresentation(m))

		r, err := RelationshipFromMap(m)
		require.NoError(t, err)
		assert.Equal(t, mapping.GraphRelationship{ID: 5, Type: "KNOWS", StartID: 1, EndID: 2, Props: map[string]any{}}, r.ToGraphRelationship())
	})

	t.Run("URI 中没有 ID", func(t *testing.T) {
		_, err := EntityID(base + "/node/abc")
		assert.Error(t, err)
	})

	t.Run("缺少 id", func(t *testing.T) {
		_, err := NodeFromMap(map[string]any{"labels": []any{}})
		assert.Error(t, err)
	})
}

func TestEntityCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCache(t, time.Minute)
	c.now = func() time.Time { return now }

	c.AddNode(&RestNode{ID: 1})
	_, ok := c.Node(1)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Node(1)
	assert.False(t, ok, "过期后需要重新获取")

	c.AddRelationship(&RestRelationship{ID: 2})
	c.Clear()
	_, ok = c.Relationship(2)
	assert.False(t, ok)

	t.Run("写入后立即可读", func(t *testing.T) {
		for id := int64(10); id < 20; id++ {
			c.AddNode(&RestNode{ID: id})
			n, ok := c.Node(id)
			require.True(t, ok)
			assert.Equal(t, id, n.ID)
		}
		c.RemoveNode(10)
		_, ok := c.Node(10)
		assert.False(t, ok)
	})

	t.Run("默认参数", func(t *testing.T) {
		d := newCache(t, 0)
		assert.Equal(t, DefaultRefetchTime, d.refetch)
		assert.Nil(t, d.AddNode(nil))
	})
}

func TestRestAPI_GetNodeByID(t *testing.T) {
	ctx := context.Background()

	t.Run("读取后缓存", func(t *testing.T) {
		d := newFakeDoer().on("GET", base+"/node/1", 200, aliceJSON)
		api := newAPI(t, d)

		n, err := api.GetNodeByID(ctx, 1, LoadDefault)
		require.NoError(t, err)
		assert.Equal(t, []string{"Person"}, n.Labels)

		_, err = api.GetNodeByID(ctx, 1, LoadDefault)
		require.NoError(t, err)
		assert.Equal(t, 1, d.count("GET", base+"/node/1"))

		_, err = api.GetNodeByID(ctx, 1, LoadForceFromServer)
		require.NoError(t, err)
		assert.Equal(t, 2, d.count("GET", base+"/node/1"))
	})

	t.Run("没有 metadata 时单独读取标签", func(t *testing.T) {
		d := newFakeDoer().
			on("GET", base+"/node/2", 200, `{"self":"`+base+`/node/2","data":{}}`).
			on("GET", base+"/node/2/labels", 200, `["Person","Admin"]`)
		n, err := newAPI(t, d).GetNodeByID(ctx, 2, LoadDefault)
		require.NoError(t, err)
		assert.Equal(t, []string{"Person", "Admin"}, n.Labels)
	})

	t.Run("只用缓存时不发请求", func(t *testing.T) {
		d := newFakeDoer()
		n, err := newAPI(t, d).GetNodeByID(ctx, 3, LoadFromCache)
		require.NoError(t, err)
		assert.Equal(t, &RestNode{ID: 3, URI: base + "/node/3"}, n)
		assert.Empty(t, d.requests)
	})

	t.Run("节点不存在", func(t *testing.T) {
		_, err := newAPI(t, newFakeDoer()).GetNodeByID(ctx, 4, LoadDefault)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRestAPI_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("创建节点并添加标签", func(t *testing.T) {
		d := newFakeDoer().
			on("POST", base+"/node", 201, `{"self":"`+base+`/node/7","data":{"name":"Bob"}}`).
			on("POST", base+"/node/7/labels", 204, "")
		api := newAPI(t, d)

		n, err := api.CreateNode(ctx, map[string]any{"name": "Bob"}, []string{"Person"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), n.ID)
		assert.Equal(t, []string{"Person"}, n.Labels)
		assert.Equal(t, []any{"Person"}, bodyOf(t, d.last()))

		cached, ok := api.Cache().Node(7)
		assert.True(t, ok)
		assert.Same(t, n, cached)
	})

	t.Run("创建关系", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/node/1/relationships", 201,
			`{"self":"`+base+`/relationship/9","start":"`+base+`/node/1","end":"`+base+`/node/2","type":"KNOWS","data":{}}`)
		api := newAPI(t, d)

		r, err := api.CreateRelationship(ctx, &RestNode{ID: 1, URI: base + "/node/1"}, &RestNode{ID: 2}, "KNOWS", map[string]any{"since": 2020})
		require.NoError(t, err)
		assert.Equal(t, int64(9), r.ID)
		assert.Equal(t, int64(2), r.EndID)
		assert.Equal(t, map[string]any{
			"to":   base + "/node/2",
			"type": "KNOWS",
			"data": map[string]any{"since": float64(2020)},
		}, bodyOf(t, d.last()))
	})

	t.Run("创建关系返回非 201", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/node/1/relationships", 200, `{}`)
		_, err := newAPI(t, d).CreateRelationship(ctx, &RestNode{ID: 1}, &RestNode{ID: 2}, "KNOWS", nil)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("修改属性后移出缓存", func(t *testing.T) {
		d := newFakeDoer().on("PUT", base+"/node/1/properties/name", 204, "")
		api := newAPI(t, d)
		api.Cache().AddNode(&RestNode{ID: 1})

		require.NoError(t, api.SetProperty(ctx, base+"/node/1", "name", "Alice"))
		assert.Equal(t, "Alice", bodyOf(t, d.last()))
		_, ok := api.Cache().Node(1)
		assert.False(t, ok)
	})

	t.Run("删除关系", func(t *testing.T) {
		d := newFakeDoer().on("DELETE", base+"/relationship/9", 204, "")
		api := newAPI(t, d)
		api.Cache().AddRelationship(&RestRelationship{ID: 9})

		require.NoError(t, api.DeleteEntity(ctx, base+"/relationship/9"))
		_, ok := api.Cache().Relationship(9)
		assert.False(t, ok)
	})
}

func TestRestAPI_Index(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "index/node/people/name/Alice%20Smith", IndexPath(NodeIndex, "people", "name", "Alice Smith"))
	assert.Equal(t, "index/relationship/friends", IndexPath(RelationshipIndex, "friends", "", nil))

	t.Run("加入索引", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/index/node/people", 201, `{}`)
		require.NoError(t, newAPI(t, d).AddToIndex(ctx, &RestNode{ID: 1}, "people", "name", "Alice"))
		assert.Equal(t, map[string]any{"key": "name", "value": "Alice", "uri": base + "/node/1"}, bodyOf(t, d.last()))
	})

	t.Run("精确查找", func(t *testing.T) {
		d := newFakeDoer().on("GET", base+"/index/node/people/name/Alice", 200, "["+aliceJSON+"]")
		nodes, err := newAPI(t, d).GetIndexedNodes(ctx, "people", "name", "Alice")
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, int64(1), nodes[0].ID)
	})
}

func TestCypherResult_Rows(t *testing.T) {
	var res CypherResult
	require.NoError(t, sonic.UnmarshalString(`{
		"columns": ["n", "c", "names"],
		"data": [[{"id": 1, "labels": ["Person"], "properties": {"name": "Alice", "age": 30}}, 3, ["a", "b"]]]
	}`, &res))

	rows, err := res.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, ok := rows[0].Node("n")
	require.True(t, ok)
	assert.Equal(t, mapping.GraphNode{ID: 1, Labels: []string{"Person"}, Props: map[string]any{"name": "Alice", "age": int64(30)}}, n)
	assert.Equal(t, int64(3), rows[0]["c"])
	assert.Equal(t, []any{"a", "b"}, rows[0]["names"])

	t.Run("列数不一致", func(t *testing.T) {
		bad := CypherResult{Columns: []string{"a"}, Data: [][]any{{1, 2}}}
		_, err := bad.Rows()
		assert.Error(t, err)
	})
}

type Person struct {
	ID   string `graph:"id,id"`
	Name string
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	mctx := mapping.NewContext(nil)
	require.NoError(t, mctx.Register(&Person{}))
	nd, err := mctx.NodeDescription(&Person{})
	require.NoError(t, err)

	t.Run("计数", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/cypher", 200, `{"columns":["__count__"],"data":[[4]]}`)
		s := NewSession(newAPI(t, d), nil)

		n, err := s.Count(ctx, nd, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.Equal(t, map[string]any{
			"query":  "MATCH (n:`Person`) RETURN count(DISTINCT n) AS __count__",
			"params": map[string]any{},
		}, bodyOf(t, d.last()))
	})

	t.Run("时间参数按毫秒传递", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/cypher", 200, `{"columns":[],"data":[]}`)
		s := NewSession(newAPI(t, d), nil)
		at := time.UnixMilli(1700000000000)

		_, err := s.Query(ctx, "MATCH (n) WHERE n.at = {at} RETURN n", map[string]any{"at": at})
		require.NoError(t, err)
		body := bodyOf(t, d.last()).(map[string]any)
		assert.Equal(t, map[string]any{"at": float64(1700000000000)}, body["params"])
	})

	t.Run("写语句清空缓存", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/cypher", 200, `{"columns":["__count__"],"data":[[1]]}`)
		api := newAPI(t, d)
		api.Cache().AddNode(&RestNode{ID: 1})
		s := NewSession(api, nil)

		res, err := s.Delete(ctx, nd, nil, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Count)
		_, ok := api.Cache().Node(1)
		assert.False(t, ok)
	})

	t.Run("服务器错误", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/cypher", 400, `{"message":"syntax"}`)
		_, err := NewSession(newAPI(t, d), nil).Query(ctx, "MATC (n)", nil)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})
}

func TestAsyncAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("结果顺序与输入一致", func(t *testing.T) {
		d := newFakeDoer().
			on("GET", base+"/node/1", 200, aliceJSON).
			on("GET", base+"/node/2", 200, `{"self":"`+base+`/node/2","data":{},"metadata":{"labels":[]}}`)
		nodes, err := NewAsyncAPI(newAPI(t, d), 2).GetNodes(ctx, []int64{2, 1}, LoadDefault)
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, int64(2), nodes[0].ID)
		assert.Equal(t, int64(1), nodes[1].ID)
	})

	t.Run("任一失败返回错误", func(t *testing.T) {
		d := newFakeDoer().on("POST", base+"/cypher", 500, "down")
		_, err := NewAsyncAPI(newAPI(t, d), 0).QueryAll(ctx, []Statement{{Cypher: "RETURN 1"}, {Cypher: "RETURN 2"}})
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})
}
