package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: "0.0.0.0:9000"
transport: bolt
database:
  neo4j:
    uri: "neo4j://localhost:7687"
    username: neo4j
    password: secret
    database: movies
  redis:
    addr: "localhost:6379"
cache:
  enabled: true
  ttl_seconds: 60
repository:
  query_style: legacy
  routing_key: entity.changed
entities:
  - name: Movie
    labels: [Movie, Film]
    id: imdb
    properties:
      - name: title
        unique: true
      - name: released
        type: int
        index: true
    relationships:
      - name: actors
        type: ACTED_IN
        direction: in
        target: Movie
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("读取配置与默认值", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
		assert.Equal(t, TransportBolt, cfg.Transport)
		assert.Equal(t, "movies", cfg.Database.Neo4j.Database)
		assert.Equal(t, time.Minute, cfg.Cache.TTLDuration())
		assert.Equal(t, "legacy", cfg.Repo.QueryStyle)
		assert.True(t, cfg.Repo.UseLabels, "默认使用标签")
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 1000*time.Second, cfg.Rest.Refetch())
		assert.Equal(t, int64(100000), cfg.Rest.CacheEntries)
		assert.Equal(t, "ogm:", cfg.Cache.Prefix)
	})

	t.Run("声明式实体", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)

		require.Len(t, cfg.Entities, 1)
		movie := cfg.Entities[0]
		assert.Equal(t, "Movie", movie.Name)
		assert.Equal(t, []string{"Movie", "Film"}, movie.Labels)
		require.Len(t, movie.Properties, 2)
		assert.True(t, movie.Properties[0].Unique)
		assert.Equal(t, "int", movie.Properties[1].Type)
		require.Len(t, movie.Relationships, 1)
		assert.Equal(t, "ACTED_IN", movie.Relationships[0].Type)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{
			Transport: TransportBolt,
			Database:  DatabaseConfig{Neo4j: Neo4jConfig{URI: "neo4j://localhost"}},
			Repo:      RepoConfig{QueryStyle: "filter"},
		}
	}

	tests := []struct {
		name   string
		modify func(*AppConfig)
		ok     bool
	}{
		{"合法", func(*AppConfig) {}, true},
		{"未知传输", func(c *AppConfig) { c.Transport = "grpc" }, false},
		{"bolt 缺少地址", func(c *AppConfig) { c.Database.Neo4j.URI = "" }, false},
		{"rest 缺少地址", func(c *AppConfig) { c.Transport = TransportRest }, false},
		{"rest 合法", func(c *AppConfig) { c.Transport = TransportRest; c.Rest.URI = "http://localhost:7474/db/data" }, true},
		{"未知查询方式", func(c *AppConfig) { c.Repo.QueryStyle = "sql" }, false},
		{"启用 rabbitmq 但缺少地址", func(c *AppConfig) { c.RabbitMQ.Enabled = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestInitConfig_Reload(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	var reloaded atomic.Value

	cfg, err := InitConfig(path, func(c *AppConfig) { reloaded.Store(c.Server.Address) })
	require.NoError(t, err)
	assert.Same(t, cfg, Current())

	updated := strings.Replace(sampleYAML, "0.0.0.0:9000", "0.0.0.0:9100", 1) + "logging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		v, _ := reloaded.Load().(string)
		return v == "0.0.0.0:9100"
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "debug", Current().Logging.Level)
}
