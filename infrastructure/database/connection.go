package database

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"neo4jogm/pkg/config"
)

// InitNeo4j 创建驱动并验证连接，连接池参数为 0 时使用驱动默认值
func InitNeo4j(ctx context.Context, cfg *config.Neo4jConfig, logger *zap.Logger) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectionAcquisitionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = time.Duration(cfg.ConnectionAcquisitionTimeout) * time.Second
			}
			if cfg.MaxConnectionLifetime > 0 {
				c.MaxConnectionLifetime = time.Duration(cfg.MaxConnectionLifetime) * time.Second
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("创建 Neo4j 驱动失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("Neo4j 连接验证失败: %w", err)
	}
	logger.Info("成功验证 Neo4j 连接", zap.String("uri", cfg.URI))
	return driver, nil
}

// InitRedis 创建 Redis 客户端并 Ping
func InitRedis(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis (%s): %w", cfg.Addr, err)
	}
	logger.Info("成功连接到 Redis", zap.String("address", cfg.Addr))
	return rdb, nil
}
