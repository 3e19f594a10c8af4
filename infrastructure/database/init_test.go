package database

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
)

// MockSession 只模拟 Run
type MockSession struct {
	mock.Mock
	neo4j.SessionWithContext
}

func (m *MockSession) Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*neo4j.TransactionConfig)) (neo4j.ResultWithContext, error) {
	args := m.Called(ctx, cypher, params)
	return nil, args.Error(1)
}

type Place struct {
	ID          string   `graph:"id,id"`
	Name        string   `graph:"name,index"`
	Email       string   `graph:"email,unique"`
	Bio         string   `graph:"bio,fulltext"`
	Coordinates string   `graph:"coordinates,spatial"`
	Note        string   `graph:"note"`
	Tags        []string `graph:",labels"`
}

type Visit struct {
	ID   int64 `graph:",id,internal"`
	Note string
}

func entities(t *testing.T) []*mapping.NodeDescription {
	t.Helper()
	mctx := mapping.NewContext(nil)
	require.NoError(t, mctx.Register(&Place{}, &Visit{}))
	place, err := mctx.NodeDescription(&Place{})
	require.NoError(t, err)
	visit, err := mctx.NodeDescription(&Visit{})
	require.NoError(t, err)
	return []*mapping.NodeDescription{place, visit}
}

func TestSchemaStatements(t *testing.T) {
	assert.Equal(t, []string{
		"CREATE CONSTRAINT place_id_unique IF NOT EXISTS FOR (n:`Place`) REQUIRE n.`id` IS UNIQUE",
		"CREATE INDEX place_name_index IF NOT EXISTS FOR (n:`Place`) ON (n.`name`)",
		"CREATE CONSTRAINT place_email_unique IF NOT EXISTS FOR (n:`Place`) REQUIRE n.`email` IS UNIQUE",
		"CREATE FULLTEXT INDEX place_bio_fulltext IF NOT EXISTS FOR (n:`Place`) ON EACH [n.`bio`]",
		"CREATE POINT INDEX place_coordinates_point IF NOT EXISTS FOR (n:`Place`) ON (n.`coordinates`)",
	}, SchemaStatements(entities(t)), "内部 ID 的实体不生成约束")
}

func TestApplySchema(t *testing.T) {
	ctx := context.Background()
	queries := []string{"CREATE INDEX a", "CREATE INDEX b"}

	t.Run("已存在时跳过", func(t *testing.T) {
		session := new(MockSession)
		session.On("Run", ctx, "CREATE INDEX a", mock.Anything).Return(nil, errors.New("An equivalent index already exists")).Once()
		session.On("Run", ctx, "CREATE INDEX b", mock.Anything).Return(nil, nil).Once()

		assert.NoError(t, applySchema(ctx, session, queries, zap.NewNop()))
		session.AssertExpectations(t)
	})

	t.Run("其他错误中止", func(t *testing.T) {
		session := new(MockSession)
		boom := errors.New("permission denied")
		session.On("Run", ctx, "CREATE INDEX a", mock.Anything).Return(nil, boom).Once()

		err := applySchema(ctx, session, queries, zap.NewNop())
		assert.ErrorIs(t, err, boom)
		session.AssertNotCalled(t, "Run", ctx, "CREATE INDEX b", mock.Anything)
	})
}
