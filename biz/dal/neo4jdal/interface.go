package neo4jdal

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"neo4jogm/biz/mapping"
)

// GraphDAL 定义了在 bolt 会话上执行 Cypher 的底层操作。
// 结果中的驱动类型（dbtype.Node 等）会被转换为 mapping 中的传输无关类型。
type GraphDAL interface {
	// ExecRead 在读事务中执行 Cypher
	ExecRead(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error)
	// ExecWrite 在写事务中执行 Cypher
	ExecWrite(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) ([]mapping.Row, error)
}
