package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"neo4jogm/biz/repo/graphrepo"
	"neo4jogm/pkg/cache"
)

// MessageHandler 处理一条消息，返回错误时消息被 Nack 且不重新入队
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ErrMalformedEvent 消息体不是合法的实体变更事件
var ErrMalformedEvent = errors.New("rabbitmq: malformed entity event")

// InvalidationHandler 解析实体变更事件并删除本实例缓存中的对应 key
func InvalidationHandler(inv cache.Invalidator, logger *zap.Logger) MessageHandler {
	return func(ctx context.Context, delivery amqp.Delivery) error {
		var ev graphrepo.Event
		if err := sonic.Unmarshal(delivery.Body, &ev); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.Entity == "" || ev.ID == nil {
			return fmt.Errorf("%w: missing entity or id", ErrMalformedEvent)
		}
		if err := inv.Delete(ctx, ev.Key()); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", ev.Key(), err)
		}
		logger.Debug("缓存已失效", zap.String("key", ev.Key()), zap.String("op", string(ev.Op)))
		return nil
	}
}

// Consumer 从队列消费消息
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	consumerTag string
	logger      *zap.Logger
	handler     MessageHandler
	autoAck     bool

	cancel  context.CancelFunc
	stopped chan struct{}
}

// ConsumerOptions 用于配置 Consumer
type ConsumerOptions struct {
	ExchangeName string // 必须: 绑定的交换机名称
	ExchangeType string // 可选: 默认为 ExchangeType
	QueueName    string // 为空时由服务器生成临时队列
	RoutingKey   string // 必须: 绑定队列到交换机的路由键
	ConsumerTag  string // 可选: 为空时生成
	AutoAck      bool
	DurableQueue bool
	Exclusive    bool
	NoWait       bool
}

// NewConsumer 声明交换机与队列，绑定后开始消费
func NewConsumer(amqpURL string, handler MessageHandler, opts ConsumerOptions, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("无法打开 RabbitMQ 通道", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if opts.ExchangeType == "" {
		opts.ExchangeType = ExchangeType
	}
	err = ch.ExchangeDeclare(
		opts.ExchangeName,
		opts.ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		logger.Error("无法声明 RabbitMQ 交换机", zap.String("exchange", opts.ExchangeName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", opts.ExchangeName, err)
	}

	// 队列名为空时服务器生成唯一名称，连接关闭后删除
	q, err := ch.QueueDeclare(
		opts.QueueName,
		opts.DurableQueue,
		opts.QueueName == "", // delete when unused
		opts.Exclusive,
		opts.NoWait,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		logger.Error("无法声明 RabbitMQ 队列", zap.String("queue", opts.QueueName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare queue '%s': %w", opts.QueueName, err)
	}
	actualQueueName := q.Name
	logger.Info("RabbitMQ 队列声明成功", zap.String("queue", actualQueueName), zap.Bool("durable", opts.DurableQueue))

	if err := ch.QueueBind(actualQueueName, opts.RoutingKey, opts.ExchangeName, opts.NoWait, nil); err != nil {
		ch.Close()
		conn.Close()
		logger.Error("无法将队列绑定到交换机",
			zap.String("queue", actualQueueName),
			zap.String("exchange", opts.ExchangeName),
			zap.String("routingKey", opts.RoutingKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to bind queue '%s' to exchange '%s' with key '%s': %w", actualQueueName, opts.ExchangeName, opts.RoutingKey, err)
	}

	consumerTag := opts.ConsumerTag
	if consumerTag == "" {
		consumerTag = fmt.Sprintf("consumer-%s-%d", actualQueueName, time.Now().UnixNano())
	}

	deliveries, err := ch.Consume(actualQueueName, consumerTag, opts.AutoAck, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	consumer := &Consumer{
		conn:        conn,
		channel:     ch,
		queueName:   actualQueueName,
		consumerTag: consumerTag,
		handler:     handler,
		autoAck:     opts.AutoAck,
		logger:      logger.Named("rabbitmq_consumer").With(zap.String("queue", actualQueueName), zap.String("tag", consumerTag)),
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}

	go consumer.consume(ctx, deliveries)
	consumer.logger.Info("RabbitMQ Consumer 已启动并开始监听消息")
	return consumer, nil
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.stopped)
	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Info("消息通道已关闭，消费者正在停止")
				return
			}
			c.handle(ctx, delivery)
		case <-ctx.Done():
			c.logger.Info("收到关闭信号，消费者正在停止")
			return
		}
	}
}

// handle 调用 handler，非自动确认时按结果 Ack 或 Nack
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	c.logger.Debug("收到消息", zap.ByteString("body", delivery.Body))
	err := c.handler(ctx, delivery)
	if c.autoAck {
		if err != nil {
			c.logger.Error("消息处理失败", zap.Error(err))
		}
		return
	}
	if err != nil {
		c.logger.Error("消息处理失败，将发送 Nack", zap.Error(err), zap.Bool("requeue", false))
		if ackErr := delivery.Nack(false, false); ackErr != nil {
			c.logger.Error("发送 Nack 失败", zap.Error(ackErr))
		}
		return
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("发送 Ack 失败", zap.Error(ackErr))
	}
}

// Shutdown 取消消费者标签，等待消费循环退出后关闭通道和连接
func (c *Consumer) Shutdown() error {
	if c.channel == nil {
		return fmt.Errorf("consumer channel is nil, cannot shutdown")
	}

	err := c.channel.Cancel(c.consumerTag, false)
	if err != nil {
		c.logger.Error("取消 RabbitMQ 消费者失败", zap.Error(err))
	}
	c.cancel()

	select {
	case <-c.stopped:
	case <-time.After(10 * time.Second):
		c.logger.Warn("等待消费者循环完成超时")
	}

	if err := c.channel.Close(); err != nil {
		c.logger.Error("关闭 RabbitMQ 通道失败", zap.Error(err))
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("关闭 RabbitMQ 连接失败", zap.Error(err))
		}
	}

	c.logger.Info("RabbitMQ Consumer 已成功关闭")
	return err
}
