package bootstrap

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"neo4jogm/biz/dal/neo4jdal"
	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/filter"
	"neo4jogm/biz/query/generator"
	"neo4jogm/biz/repo/execution"
	"neo4jogm/biz/repo/graphrepo"
	dbInfra "neo4jogm/infrastructure/database"
	"neo4jogm/infrastructure/rabbitmq"
	"neo4jogm/infrastructure/rest"
	"neo4jogm/pkg/cache"
	"neo4jogm/pkg/config"
)

// App 持有初始化完成的组件。缓存和事件发布未启用时对应字段为 nil。
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Level     zap.AtomicLevel
	Mapping   *mapping.Context
	Session   execution.Session
	Generator *generator.Generator
	Store     *cache.Store
	Publisher graphrepo.Publisher
	// Async 仅 REST 传输时可用
	Async *rest.AsyncAPI

	closers []func()
}

// Close 按初始化的逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.Logger.Sync()
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// RepoOptions 由配置得到仓库选项
func (a *App) RepoOptions() graphrepo.Options {
	return graphrepo.Options{
		QueryStyle: graphrepo.ParseQueryStyle(a.Config.Repo.QueryStyle),
		UseLabels:  a.Config.Repo.UseLabels,
		CacheTTL:   a.Config.Cache.TTLDuration(),
		RoutingKey: a.Config.Repo.RoutingKey,
	}
}

// Init 执行所有初始化步骤，失败时释放已经创建的资源
func Init(ctx context.Context, configPath string) (*App, error) {
	// 1. 加载配置，日志级别随配置热加载
	level := zap.NewAtomicLevel()
	cfg, err := config.InitConfig(configPath, func(c *config.AppConfig) {
		level.SetLevel(ParseLevel(c.Logging.Level))
	})
	if err != nil {
		// 在 logger 初始化前，只能用标准 log
		log.Printf("Error: 加载配置失败: %v", err)
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化 Zap Logger
	level.SetLevel(ParseLevel(cfg.Logging.Level))
	logger := NewLogger(level)
	logger.Info("Zap Logger 初始化完成", zap.String("level", cfg.Logging.Level))

	app := &App{Config: cfg, Logger: logger, Level: level}
	if err := app.init(ctx); err != nil {
		logger.Error("初始化失败", zap.Error(err))
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	// 3. 实体元数据
	mctx, err := InitMapping(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Mapping = mctx

	// 4. 传输
	if err := a.initTransport(ctx); err != nil {
		return err
	}

	// 5. 缓存
	if a.Config.Cache.Enabled {
		if err := a.initCache(ctx); err != nil {
			return err
		}
	}

	// 6. 实体变更事件
	if a.Config.RabbitMQ.Enabled {
		if err := a.initEvents(); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevel 无效值按 info 处理
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		log.Printf("Warning: 无效的日志级别 '%s'，将使用 'info'", s)
		return zapcore.InfoLevel
	}
}

// NewLogger JSON 编码，带调用位置
func NewLogger(level zap.AtomicLevel) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(log.Default().Writer()),
		level,
	)
	return zap.New(core, zap.AddCaller())
}

// InitMapping 注册配置中声明的实体
func InitMapping(cfg *config.AppConfig, logger *zap.Logger) (*mapping.Context, error) {
	mctx := mapping.NewContext(logger)
	if err := mctx.RegisterSpec(cfg.Entities...); err != nil {
		return nil, fmt.Errorf("注册实体失败: %w", err)
	}
	logger.Info("实体元数据初始化完成", zap.Int("entities", len(cfg.Entities)))
	return mctx, nil
}

// GeneratorFor 按传输选择占位符风格
func GeneratorFor(transport string) *generator.Generator {
	if transport == config.TransportRest {
		return generator.New(filter.Rest)
	}
	return generator.Default
}

func (a *App) initTransport(ctx context.Context) error {
	switch a.Config.Transport {
	case config.TransportRest:
		rc := a.Config.Rest
		client, err := rest.NewClient(rc.Timeout())
		if err != nil {
			return err
		}
		req := rest.NewExecutingRestRequest(client, rc.URI, rc.Username, rc.Password)
		entityCache, err := rest.NewEntityCache(rc.Refetch(), rc.CacheEntries)
		if err != nil {
			return err
		}
		a.onClose(entityCache.Close)
		api := rest.NewRestAPI(req, entityCache, a.Logger)
		session := rest.NewSession(api, a.Logger)
		a.Session, a.Generator = session, session.Generator()
		a.Async = rest.NewAsyncAPI(api, rc.Workers)
		a.Logger.Info("REST 传输初始化完成", zap.String("uri", rc.URI))
	default:
		nc := &a.Config.Database.Neo4j
		driver, err := dbInfra.InitNeo4j(ctx, nc, a.Logger)
		if err != nil {
			return fmt.Errorf("初始化 Neo4j 失败: %w", err)
		}
		a.onClose(func() {
			if err := driver.Close(context.Background()); err != nil {
				a.Logger.Warn("关闭 Neo4j 驱动失败", zap.Error(err))
			}
		})
		if nc.ApplySchema {
			if err := dbInfra.ApplySchema(ctx, driver, nc.Database, a.Mapping.Entities(), a.Logger); err != nil {
				a.Logger.Warn("应用 Neo4j Schema 期间发生错误", zap.Error(err))
			}
		}
		a.Generator = generator.Default
		a.Session = neo4jdal.NewSession(driver, neo4jdal.NewGraphDAL(), a.Generator, nc.Database, a.Logger)
		a.Logger.Info("bolt 传输初始化完成", zap.String("uri", nc.URI))
	}
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	rdb, err := dbInfra.InitRedis(ctx, &a.Config.Database.Redis, a.Logger)
	if err != nil {
		return fmt.Errorf("初始化 Redis 失败: %w", err)
	}
	a.onClose(func() {
		if err := rdb.Close(); err != nil {
			a.Logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	})
	cc := a.Config.Cache
	store, err := cache.NewStore(rdb, cc.Prefix, cc.EstimatedKeys, cc.FpRate, a.Logger)
	if err != nil {
		return fmt.Errorf("创建 Redis 缓存实例失败: %w", err)
	}
	a.Store = store
	a.Logger.Info("缓存初始化完成")
	return nil
}

func (a *App) initEvents() error {
	mq := a.Config.RabbitMQ
	routingKey := a.Config.Repo.RoutingKey
	if routingKey == "" {
		a.Logger.Warn("未配置 repository.routing_key，不发布实体变更事件")
		return nil
	}
	publisher, err := rabbitmq.NewPublisher(mq.URL, mq.Exchange, a.Logger)
	if err != nil {
		return err
	}
	a.Publisher = publisher
	a.onClose(publisher.Close)

	if a.Store == nil {
		return nil
	}
	consumer, err := rabbitmq.NewConsumer(mq.URL, rabbitmq.InvalidationHandler(a.Store, a.Logger), rabbitmq.ConsumerOptions{
		ExchangeName: mq.Exchange,
		QueueName:    mq.Queue,
		RoutingKey:   routingKey,
		DurableQueue: mq.Queue != "",
		Exclusive:    mq.Queue == "",
	}, a.Logger)
	if err != nil {
		return err
	}
	a.onClose(func() {
		if err := consumer.Shutdown(); err != nil {
			a.Logger.Warn("关闭缓存失效消费者失败", zap.Error(err))
		}
	})
	return nil
}

// NewRepository 为结构体实体创建仓库，按配置接入缓存与变更事件
func NewRepository[T any](a *App) (*graphrepo.Repository[T], error) {
	if err := a.Mapping.Register(new(T)); err != nil {
		return nil, err
	}
	var options []graphrepo.Option[T]
	if a.Store != nil {
		options = append(options, graphrepo.WithCache[T](cache.NewRedisCache[*T](a.Store)))
	}
	if a.Publisher != nil && a.Config.Repo.RoutingKey != "" {
		options = append(options, graphrepo.WithPublisher[T](a.Publisher))
	}
	return graphrepo.New[T](a.Mapping, a.Session, a.Generator, a.RepoOptions(), a.Logger, options...)
}
