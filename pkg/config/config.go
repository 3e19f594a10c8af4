package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"neo4jogm/biz/mapping"
)

// ErrInvalidConfig 配置值不合法
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	TransportBolt = "bolt"
	TransportRest = "rest"
)

// AppConfig 包含所有应用程序的配置
type AppConfig struct {
	Server    ServerConfig         `mapstructure:"server"`
	Database  DatabaseConfig       `mapstructure:"database"`
	Cache     CacheConfig          `mapstructure:"cache"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Repo      RepoConfig           `mapstructure:"repository"`
	Rest      RestConfig           `mapstructure:"rest"`
	RabbitMQ  RabbitMQConfig       `mapstructure:"rabbitmq"`
	Transport string               `mapstructure:"transport"` // bolt | rest
	Entities  []mapping.EntitySpec `mapstructure:"entities"`
}

// ServerConfig 管理接口的监听地址
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"` // 为空时不启用 prometheus 指标
	MetricsPath    string `mapstructure:"metrics_path"`
}

// DatabaseConfig 包含所有数据库的配置
type DatabaseConfig struct {
	Neo4j Neo4jConfig `mapstructure:"neo4j"`
	Redis RedisConfig `mapstructure:"redis"`
}

// Neo4jConfig Neo4j 连接配置
type Neo4jConfig struct {
	URI                          string `mapstructure:"uri"`
	Username                     string `mapstructure:"username"`
	Password                     string `mapstructure:"password"`
	Database                     string `mapstructure:"database"`                               // 为空时使用服务器默认库
	MaxConnectionPoolSize        int    `mapstructure:"max_connection_pool_size"`               // 最大连接池大小
	ConnectionAcquisitionTimeout int    `mapstructure:"connection_acquisition_timeout_seconds"` // 连接获取超时时间（秒）
	MaxConnectionLifetime        int    `mapstructure:"max_connection_lifetime_seconds"`        // 连接最大生命周期（秒）
	ApplySchema                  bool   `mapstructure:"apply_schema"`                           // 启动时按实体元数据创建约束和索引
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig 实体缓存配置
type CacheConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Prefix        string  `mapstructure:"prefix"`
	EstimatedKeys uint    `mapstructure:"estimated_keys"`
	FpRate        float64 `mapstructure:"fp_rate"`
	TTL           int     `mapstructure:"ttl_seconds"`
}

// RepoConfig 仓库层相关配置
type RepoConfig struct {
	QueryStyle string `mapstructure:"query_style"` // filter | legacy
	UseLabels  bool   `mapstructure:"use_labels"`
	RoutingKey string `mapstructure:"routing_key"` // 实体变更事件的路由键，为空时不发布
}

// RestConfig HTTP REST 传输配置
type RestConfig struct {
	URI            string `mapstructure:"uri"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	RefetchSeconds int    `mapstructure:"refetch_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Workers        int    `mapstructure:"workers"`
	CacheEntries   int64  `mapstructure:"cache_entries"` // 实体缓存中节点和关系各自的上限
}

// LoggingConfig 日志相关配置
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// RabbitMQConfig RabbitMQ 连接配置
type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"` // 缓存失效消费者的队列，为空时由服务器生成
}

func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

func (c RestConfig) Refetch() time.Duration {
	return time.Duration(c.RefetchSeconds) * time.Second
}

func (c RestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate 检查取值范围
func (c *AppConfig) Validate() error {
	switch c.Transport {
	case TransportBolt:
		if c.Database.Neo4j.URI == "" {
			return fmt.Errorf("%w: database.neo4j.uri is required for bolt transport", ErrInvalidConfig)
		}
	case TransportRest:
		if c.Rest.URI == "" {
			return fmt.Errorf("%w: rest.uri is required for rest transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	switch c.Repo.QueryStyle {
	case "filter", "legacy":
	default:
		return fmt.Errorf("%w: unknown repository.query_style %q", ErrInvalidConfig, c.Repo.QueryStyle)
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("%w: rabbitmq.url is required when rabbitmq is enabled", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:8888")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("transport", TransportBolt)
	v.SetDefault("logging.level", "info")
	v.SetDefault("cache.prefix", "ogm:")
	v.SetDefault("cache.estimated_keys", 100000)
	v.SetDefault("cache.fp_rate", 0.01)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("repository.query_style", "filter")
	v.SetDefault("repository.use_labels", true)
	v.SetDefault("rest.refetch_seconds", 1000)
	v.SetDefault("rest.timeout_seconds", 30)
	v.SetDefault("rest.workers", 8)
	v.SetDefault("rest.cache_entries", 100000)
	v.SetDefault("rabbitmq.exchange", "ogm.events")
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)   // 设置配置文件路径
	v.SetConfigType("yaml") // 设置配置文件类型
	v.SetEnvPrefix("OGM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	cfg := new(AppConfig)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 读取并校验配置，不监听文件变化
func Load(path string) (*AppConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

var (
	mu sync.RWMutex
	// GlobalConfig 是全局配置实例，热加载时整体替换
	GlobalConfig = new(AppConfig)
)

// Current 返回当前生效的配置
func Current() *AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalConfig
}

// InitConfig 读取配置并监听文件变化。重新解析成功后替换 GlobalConfig 并调用 onChange，
// 失败时保留旧配置。
func InitConfig(path string, onChange ...func(*AppConfig)) (*AppConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	GlobalConfig = cfg
	mu.Unlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("配置文件已更改: %s", e.Name)
		next, err := decode(v)
		if err != nil {
			log.Printf("警告: 重新解析配置文件失败: %v", err)
			return
		}
		mu.Lock()
		GlobalConfig = next
		mu.Unlock()
		for _, fn := range onChange {
			fn(next)
		}
		log.Println("Info: 配置已重新加载.")
	})
	v.WatchConfig()

	log.Printf("Info: 成功加载并解析配置文件: %s", path)
	return cfg, nil
}
