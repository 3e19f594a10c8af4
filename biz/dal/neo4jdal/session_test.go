package neo4jdal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/query/geo"
)

// MockSession 用于模拟 neo4j.SessionWithContext 接口
// 只模拟 ExecuteWrite、ExecuteRead 和 Close，直接返回预设值
type MockSession struct {
	mock.Mock
	neo4j.SessionWithContext // 嵌入接口
}

// ExecuteWrite 模拟写事务，work 函数不会被执行
func (m *MockSession) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error) {
	args := m.Called(ctx, work, configurers)
	return args.Get(0), args.Error(1)
}

// ExecuteRead 模拟读事务
func (m *MockSession) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error) {
	args := m.Called(ctx, work, configurers)
	return args.Get(0), args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockDriver 模拟 neo4j.DriverWithContext，只模拟 NewSession
type MockDriver struct {
	mock.Mock
	neo4j.DriverWithContext
}

func (m *MockDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) neo4j.SessionWithContext {
	return m.Called(ctx, config).Get(0).(neo4j.SessionWithContext)
}

type Person struct {
	ID   string `graph:"id,id"`
	Name string
}

func personEntity(t *testing.T) *mapping.NodeDescription {
	t.Helper()
	mctx := mapping.NewContext(nil)
	require.NoError(t, mctx.Register(&Person{}))
	nd, err := mctx.NodeDescription(&Person{})
	require.NoError(t, err)
	return nd
}

// --- 测试 GraphDAL ---
func TestNeo4jGraphDAL_Exec(t *testing.T) {
	dal := NewGraphDAL()
	ctx := context.Background()
	rows := []mapping.Row{{"n": mapping.GraphNode{ID: 1}}}

	t.Run("读事务成功", func(t *testing.T) {
		mockSession := new(MockSession)
		mockSession.On("ExecuteRead", ctx, mock.AnythingOfType("neo4j.ManagedTransactionWork"), mock.Anything).Return(rows, nil).Once()

		got, err := dal.ExecRead(ctx, mockSession, "MATCH (n) RETURN n", nil)
		assert.NoError(t, err)
		assert.Equal(t, rows, got)
		mockSession.AssertExpectations(t)
	})

	t.Run("写事务失败", func(t *testing.T) {
		mockSession := new(MockSession)
		expectedErr := errors.New("写事务失败")
		mockSession.On("ExecuteWrite", ctx, mock.AnythingOfType("neo4j.ManagedTransactionWork"), mock.Anything).Return(nil, expectedErr).Once()

		got, err := dal.ExecWrite(ctx, mockSession, "CREATE (n) RETURN n", nil)
		assert.Equal(t, expectedErr, err)
		assert.Nil(t, got)
		mockSession.AssertExpectations(t)
	})

	t.Run("事务返回空结果", func(t *testing.T) {
		mockSession := new(MockSession)
		mockSession.On("ExecuteWrite", ctx, mock.AnythingOfType("neo4j.ManagedTransactionWork"), mock.Anything).Return(nil, nil).Once()

		got, err := dal.ExecWrite(ctx, mockSession, "MATCH (n) DELETE n", nil)
		assert.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("返回非预期类型", func(t *testing.T) {
		mockSession := new(MockSession)
		mockSession.On("ExecuteRead", ctx, mock.AnythingOfType("neo4j.ManagedTransactionWork"), mock.Anything).Return("unexpected", nil).Once()

		_, err := dal.ExecRead(ctx, mockSession, "MATCH (n) RETURN n", nil)
		assert.ErrorIs(t, err, ErrUnexpectedResult)
	})
}

func TestRecordToRow(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	record := &neo4j.Record{
		Keys: []string{"n", "r", "tags", "loc", "day"},
		Values: []any{
			dbtype.Node{Id: 7, ElementId: "4:x:7", Labels: []string{"Person"}, Props: map[string]any{"name": "Alice", "born": dbtype.Date(created)}},
			dbtype.Relationship{Id: 3, StartId: 7, EndId: 8, Type: "KNOWS", Props: map[string]any{"since": int64(2020)}},
			[]any{"a", dbtype.LocalDateTime(created)},
			dbtype.Point2D{X: 13.4, Y: 52.5, SpatialRefId: 4326},
			dbtype.Date(created),
		},
	}

	row := RecordToRow(record)

	node, ok := row.Node("n")
	require.True(t, ok)
	assert.Equal(t, int64(7), node.ID)
	assert.Equal(t, "4:x:7", node.ElementID)
	assert.Equal(t, created, node.Props["born"])
	assert.Equal(t, mapping.GraphRelationship{ID: 3, Type: "KNOWS", StartID: 7, EndID: 8, Props: map[string]any{"since": int64(2020)}}, row["r"])
	assert.Equal(t, []any{"a", created}, row["tags"])
	assert.Equal(t, geo.Point{Lat: 52.5, Lon: 13.4}, row["loc"])
	assert.Equal(t, created, row["day"])
}

func TestRewritePlaceholders(t *testing.T) {
	tests := []struct {
		name   string
		cypher string
		want   string
	}{
		{"位置参数", "START n=node({0}) WHERE n.name = {1} RETURN n", "START n=node($0) WHERE n.name = $1 RETURN n"},
		{"命名参数", "MATCH (n) WHERE id(n) = {__id__} RETURN n", "MATCH (n) WHERE id(n) = $__id__ RETURN n"},
		{"属性map不改写", "MERGE (n:`P` {`id`: $__id__})", "MERGE (n:`P` {`id`: $__id__})"},
		{"已是$参数", "MATCH (n) WHERE n.name = $name RETURN n", "MATCH (n) WHERE n.name = $name RETURN n"},
		{"单引号字符串内不改写", "MATCH (n) WHERE n.s = '{x}' AND n.t = {0} RETURN '{y}'", "MATCH (n) WHERE n.s = '{x}' AND n.t = $0 RETURN '{y}'"},
		{"双引号与转义", `RETURN "a\"{x}" + {1}`, `RETURN "a\"{x}" + $1`},
		{"反引号名称内不改写", "MATCH (n) RETURN n.`{x}`, {2}", "MATCH (n) RETURN n.`{x}`, $2"},
		{"未闭合的引号", "RETURN {0}, '{x}", "RETURN $0, '{x}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewritePlaceholders(tt.cypher))
		})
	}
}

func TestIsWrite(t *testing.T) {
	assert.True(t, IsWrite("MATCH (n) DETACH DELETE n"))
	assert.True(t, IsWrite("merge (n:A) return n"))
	assert.True(t, IsWrite("MATCH (n) WHERE id(n) = $__id__ SET n:`A`"))
	assert.False(t, IsWrite("MATCH (n) RETURN n.offset, n.createdAt"))
	assert.False(t, IsWrite("MATCH (n:`Person`) RETURN count(n) AS __count__"))

	t.Run("引号内的关键字不算写子句", func(t *testing.T) {
		assert.False(t, IsWrite("MATCH (n) WHERE n.s = 'delete' RETURN n"))
		assert.False(t, IsWrite(`MATCH (n) WHERE n.s = "set it" RETURN n.`+"`create`"))
		assert.False(t, IsWrite(`MATCH (n) WHERE n.s = 'it\'s merge' RETURN n`))
		assert.True(t, IsWrite("MATCH (n) WHERE n.s = 'x' SET n.s = 'y'"))
	})
}

func TestSession_Query(t *testing.T) {
	ctx := context.Background()
	rows := []mapping.Row{{"n": mapping.GraphNode{ID: 1}}}

	t.Run("读语句使用读会话", func(t *testing.T) {
		driver, session := new(MockDriver), new(MockSession)
		driver.On("NewSession", ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: "graph"}).Return(session).Once()
		session.On("ExecuteRead", ctx, mock.Anything, mock.Anything).Return(rows, nil).Once()
		session.On("Close", ctx).Return(nil).Once()

		s := NewSession(driver, nil, nil, "graph", nil)
		got, err := s.Query(ctx, "MATCH (n) WHERE id(n) = {0} RETURN n", map[string]any{"0": int64(1)})
		require.NoError(t, err)
		assert.Equal(t, rows, got)
		driver.AssertExpectations(t)
		session.AssertExpectations(t)
	})

	t.Run("写语句使用写会话", func(t *testing.T) {
		driver, session := new(MockDriver), new(MockSession)
		driver.On("NewSession", ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite}).Return(session).Once()
		session.On("ExecuteWrite", ctx, mock.Anything, mock.Anything).Return([]mapping.Row{}, nil).Once()
		session.On("Close", ctx).Return(errors.New("close failed")).Once()

		s := NewSession(driver, nil, nil, "", nil)
		_, err := s.Query(ctx, "MATCH (n) DETACH DELETE n", nil)
		require.NoError(t, err)
		session.AssertExpectations(t)
	})
}

// MockDAL 记录会话传给 DAL 的语句
type MockDAL struct {
	mock.Mock
}

func (m *MockDAL) ExecRead(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error) {
	args := m.Called(ctx, cypher, params)
	rows, _ := args.Get(0).([]mapping.Row)
	return rows, args.Error(1)
}

func (m *MockDAL) ExecWrite(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error) {
	args := m.Called(ctx, cypher, params)
	rows, _ := args.Get(0).([]mapping.Row)
	return rows, args.Error(1)
}

func TestSession_FilterQueries(t *testing.T) {
	ctx := context.Background()
	nd := personEntity(t)

	newSession := func() (*Session, *MockDAL) {
		driver, session := new(MockDriver), new(MockSession)
		driver.On("NewSession", ctx, mock.Anything).Return(session)
		session.On("Close", ctx).Return(nil)
		dal := new(MockDAL)
		return NewSession(driver, dal, nil, "", nil), dal
	}

	t.Run("加载", func(t *testing.T) {
		s, dal := newSession()
		dal.On("ExecRead", ctx, "MATCH (n:`Person`) RETURN n", mock.Anything).Return([]mapping.Row{{"n": mapping.GraphNode{ID: 1}}}, nil).Once()

		rows, err := s.LoadAll(ctx, nd, nil, generator.LoadOptions{})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		dal.AssertExpectations(t)
	})

	t.Run("计数", func(t *testing.T) {
		s, dal := newSession()
		dal.On("ExecRead", ctx, "MATCH (n:`Person`) RETURN count(DISTINCT n) AS __count__", mock.Anything).
			Return([]mapping.Row{{"__count__": int64(5)}}, nil).Once()

		n, err := s.Count(ctx, nd, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("删除返回数量", func(t *testing.T) {
		s, dal := newSession()
		dal.On("ExecWrite", ctx, "MATCH (n:`Person`) DETACH DELETE n RETURN count(*) AS __count__", mock.Anything).
			Return([]mapping.Row{{"__count__": int64(2)}}, nil).Once()

		res, err := s.Delete(ctx, nd, nil, false)
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Count)
	})

	t.Run("删除返回ID", func(t *testing.T) {
		s, dal := newSession()
		dal.On("ExecWrite", ctx, mock.Anything, mock.Anything).
			Return([]mapping.Row{{"__id__": "p1"}, {"__id__": "p2"}}, nil).Once()

		res, err := s.Delete(ctx, nd, nil, true)
		require.NoError(t, err)
		assert.Equal(t, []any{"p1", "p2"}, res.IDs)
		assert.Equal(t, int64(2), res.Count)
	})
}

func TestSingleNumber(t *testing.T) {
	tests := []struct {
		name    string
		rows    []mapping.Row
		want    int64
		wantErr bool
	}{
		{"没有结果", nil, 0, false},
		{"计数列", []mapping.Row{{"__count__": int64(3), "other": "x"}}, 3, false},
		{"唯一列", []mapping.Row{{"total": float64(4)}}, 4, false},
		{"多列无计数列", []mapping.Row{{"a": int64(1), "b": int64(2)}}, 0, true},
		{"非数值", []mapping.Row{{"total": "x"}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SingleNumber(tt.rows)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedResult)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
