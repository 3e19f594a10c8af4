package neo4jdal

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/filter"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/repo/execution"
)

var (
	writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|SET|REMOVE|DROP)\b`)
	// 传统查询使用 {name} 占位符，bolt 只接受 $name
	legacyPlaceholder = regexp.MustCompile(`\{(\w+)\}`)
)

// Session 通过 bolt 驱动执行查询，实现 execution.Session。
// 每次调用打开一个驱动会话，结束后关闭。
type Session struct {
	driver   neo4j.DriverWithContext
	dal      GraphDAL
	gen      *generator.Generator
	database string
	logger   *zap.Logger
}

// NewSession 创建 bolt 会话，database 为空时使用服务器默认库
func NewSession(driver neo4j.DriverWithContext, dal GraphDAL, gen *generator.Generator, database string, logger *zap.Logger) *Session {
	if dal == nil {
		dal = NewGraphDAL()
	}
	if gen == nil {
		gen = generator.Default
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{driver: driver, dal: dal, gen: gen, database: database, logger: logger.Named("bolt")}
}

// RewritePlaceholders 把 {name} 改写为 $name，字符串字面量和反引号名称内的内容不变
func RewritePlaceholders(cypher string) string {
	var b strings.Builder
	b.Grow(len(cypher))
	eachSpan(cypher, func(span string, quoted bool) bool {
		if quoted {
			b.WriteString(span)
		} else {
			b.WriteString(legacyPlaceholder.ReplaceAllString(span, "$$$1"))
		}
		return true
	})
	return b.String()
}

// IsWrite 语句是否包含写子句，只看引号之外的部分
func IsWrite(cypher string) bool {
	write := false
	eachSpan(cypher, func(span string, quoted bool) bool {
		if !quoted && writeClause.MatchString(span) {
			write = true
			return false
		}
		return true
	})
	return write
}

// eachSpan 按引号切分语句，依次回调。单双引号内支持反斜杠转义，
// 未闭合的引号延续到语句末尾。fn 返回 false 时停止。
func eachSpan(cypher string, fn func(span string, quoted bool) bool) {
	start := 0
	for i := 0; i < len(cypher); i++ {
		c := cypher[i]
		if c != '\'' && c != '"' && c != '`' {
			continue
		}
		if i > start && !fn(cypher[start:i], false) {
			return
		}
		j := i + 1
		for ; j < len(cypher); j++ {
			if cypher[j] == '\\' && c != '`' {
				j++
				continue
			}
			if cypher[j] == c {
				break
			}
		}
		end := min(j+1, len(cypher))
		if !fn(cypher[i:end], true) {
			return
		}
		start = end
		i = end - 1
	}
	if start < len(cypher) {
		fn(cypher[start:], false)
	}
}

// Query 执行 Cypher，写语句走写事务
func (s *Session) Query(ctx context.Context, cypher string, params map[string]any) ([]mapping.Row, error) {
	cypher = RewritePlaceholders(cypher)
	write := IsWrite(cypher)
	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Warn("关闭会话失败", zap.Error(err))
		}
	}()

	s.logger.Debug("执行 Cypher", zap.String("cypher", cypher), zap.Bool("write", write))
	if write {
		return s.dal.ExecWrite(ctx, session, cypher, params)
	}
	return s.dal.ExecRead(ctx, session, cypher, params)
}

// QueryForCount 执行只返回一个数值的 Cypher
func (s *Session) QueryForCount(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	rows, err := s.Query(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	return SingleNumber(rows)
}

// LoadAll 按 Filter 加载节点
func (s *Session) LoadAll(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, opts generator.LoadOptions) ([]mapping.Row, error) {
	opts.Mode = generator.ModeLoad
	cypher, params, err := s.gen.FilterQuery(nd, filters, opts)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, cypher, params)
}

// Count 按 Filter 计数
func (s *Session) Count(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters) (int64, error) {
	cypher, params, err := s.gen.FilterQuery(nd, filters, generator.LoadOptions{Mode: generator.ModeCount})
	if err != nil {
		return 0, err
	}
	return s.QueryForCount(ctx, cypher, params)
}

// Delete 按 Filter 删除
func (s *Session) Delete(ctx context.Context, nd *mapping.NodeDescription, filters filter.Filters, withIDs bool) (execution.DeleteResult, error) {
	mode := generator.ModeDelete
	if withIDs {
		mode = generator.ModeDeleteIDs
	}
	cypher, params, err := s.gen.FilterQuery(nd, filters, generator.LoadOptions{Mode: mode})
	if err != nil {
		return execution.DeleteResult{}, err
	}
	rows, err := s.Query(ctx, cypher, params)
	if err != nil {
		return execution.DeleteResult{}, err
	}
	return ToDeleteResult(rows, withIDs)
}

// SingleNumber 取单行结果中的数值：优先 __count__ 列，否则要求只有一列
func SingleNumber(rows []mapping.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	row := rows[0]
	v, ok := row[generator.ColumnCount]
	if !ok {
		if len(row) != 1 {
			return 0, fmt.Errorf("%w: expected a single column, got %d", ErrUnexpectedResult, len(row))
		}
		for _, x := range row {
			v = x
		}
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: count column is %T", ErrUnexpectedResult, v)
	}
}

// ToDeleteResult 解析删除语句的结果
func ToDeleteResult(rows []mapping.Row, withIDs bool) (execution.DeleteResult, error) {
	if !withIDs {
		n, err := SingleNumber(rows)
		return execution.DeleteResult{Count: n}, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row[generator.ColumnID])
	}
	return execution.DeleteResult{Count: int64(len(ids)), IDs: ids}, nil
}

var _ execution.Session = (*Session)(nil)
