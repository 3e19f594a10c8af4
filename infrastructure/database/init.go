package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"neo4jogm/biz/mapping"
)

var nonWord = regexp.MustCompile(`\W+`)

// SchemaStatements 由实体元数据生成约束与索引语句：
// ID 与 unique 属性生成唯一约束，fulltext 与 spatial 属性生成全文索引与点索引，其余 index 属性生成普通索引。
func SchemaStatements(entities []*mapping.NodeDescription) []string {
	var queries []string
	for _, nd := range entities {
		label := nd.PrimaryLabel
		seen := map[string]bool{}
		if id := nd.IDProperty(); id != nil && !nd.IsUsingInternalIDs() {
			queries = append(queries, uniqueConstraint(label, id.PropertyName))
			seen[id.PropertyName] = true
		}
		for _, p := range nd.GraphProperties() {
			if seen[p.PropertyName] || p.DynamicLabels {
				continue
			}
			switch {
			case p.Unique:
				queries = append(queries, uniqueConstraint(label, p.PropertyName))
			case p.FullText:
				queries = append(queries, fmt.Sprintf("CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:`%s`) ON EACH [n.`%s`]",
					schemaName(label, p.PropertyName, "fulltext"), label, p.PropertyName))
			case p.Spatial:
				queries = append(queries, fmt.Sprintf("CREATE POINT INDEX %s IF NOT EXISTS FOR (n:`%s`) ON (n.`%s`)",
					schemaName(label, p.PropertyName, "point"), label, p.PropertyName))
			case p.Indexed:
				queries = append(queries, fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:`%s`) ON (n.`%s`)",
					schemaName(label, p.PropertyName, "index"), label, p.PropertyName))
			default:
				continue
			}
			seen[p.PropertyName] = true
		}
	}
	return queries
}

func uniqueConstraint(label, property string) string {
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:`%s`) REQUIRE n.`%s` IS UNIQUE",
		schemaName(label, property, "unique"), label, property)
}

// schemaName 例如 person_name_index
func schemaName(label, property, suffix string) string {
	name := strings.ToLower(label + "_" + property + "_" + suffix)
	return nonWord.ReplaceAllString(name, "_")
}

// ApplySchema 在一个写会话中执行实体的约束与索引语句
func ApplySchema(ctx context.Context, driver neo4j.DriverWithContext, database string, entities []*mapping.NodeDescription, logger *zap.Logger) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)
	return applySchema(ctx, session, SchemaStatements(entities), logger)
}

func applySchema(ctx context.Context, session neo4j.SessionWithContext, queries []string, logger *zap.Logger) error {
	logger.Info("开始应用 Neo4j schema...", zap.Int("statements", len(queries)))

	var appliedCount int
	for _, query := range queries {
		_, err := session.Run(ctx, query, nil)
		if err != nil {
			// 约束或索引已存在时忽略
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "EquivalentSchemaRuleAlreadyExists") {
				logger.Debug("Schema (索引/约束) 已存在，跳过", zap.String("query", query))
				continue
			}
			logger.Error("执行 schema 查询失败", zap.String("query", query), zap.Error(err))
			return fmt.Errorf("执行 schema 查询失败 '%s': %w", query, err)
		}
		logger.Info("成功应用 schema", zap.String("query", query))
		appliedCount++
	}

	logger.Info("Neo4j schema 应用完成", zap.Int("applied_count", appliedCount))
	return nil
}
