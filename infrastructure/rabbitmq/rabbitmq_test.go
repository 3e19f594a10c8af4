package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neo4jogm/biz/repo/graphrepo"
)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, msg).Error(0)
}

func (m *MockChannel) Close() error {
	return m.Called().Error(0)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// fakeAcker 记录 Ack/Nack
type fakeAcker struct {
	acked, nacked int
	requeue       bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	ev := graphrepo.Event{Entity: "Person", ID: "p1", Op: graphrepo.OpSaved}

	t.Run("发布 JSON 事件", func(t *testing.T) {
		ch := new(MockChannel)
		ch.On("PublishWithContext", ctx, "ogm.events", "entity.changed", mock.MatchedBy(func(msg amqp.Publishing) bool {
			var got map[string]any
			if err := sonic.Unmarshal(msg.Body, &got); err != nil {
				return false
			}
			return msg.ContentType == "application/json" &&
				msg.DeliveryMode == amqp.Persistent &&
				msg.MessageId != "" &&
				got["entity"] == "Person" && got["id"] == "p1" && got["op"] == "saved"
		})).Return(nil).Once()

		p := newPublisher(ch, "ogm.events", zap.NewNop())
		assert.NoError(t, p.Publish(ctx, "entity.changed", ev))
		ch.AssertExpectations(t)
	})

	t.Run("发布失败", func(t *testing.T) {
		ch := new(MockChannel)
		boom := errors.New("channel closed")
		ch.On("PublishWithContext", ctx, "ogm.events", "entity.changed", mock.Anything).Return(boom).Once()

		p := newPublisher(ch, "ogm.events", zap.NewNop())
		assert.ErrorIs(t, p.Publish(ctx, "entity.changed", ev), boom)
	})

	t.Run("无法序列化", func(t *testing.T) {
		p := newPublisher(new(MockChannel), "ogm.events", zap.NewNop())
		assert.Error(t, p.Publish(ctx, "entity.changed", make(chan int)))
	})

	t.Run("关闭通道", func(t *testing.T) {
		ch := new(MockChannel)
		ch.On("Close").Return(nil).Once()
		newPublisher(ch, "ogm.events", zap.NewNop()).Close()
		ch.AssertExpectations(t)
	})
}

func TestInvalidationHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("删除对应 key", func(t *testing.T) {
		inv := new(MockInvalidator)
		inv.On("Delete", ctx, "Person:p1").Return(nil).Once()

		h := InvalidationHandler(inv, zap.NewNop())
		err := h(ctx, amqp.Delivery{Body: []byte(`{"entity":"Person","id":"p1","op":"deleted"}`)})
		assert.NoError(t, err)
		inv.AssertExpectations(t)
	})

	t.Run("数字 ID", func(t *testing.T) {
		inv := new(MockInvalidator)
		inv.On("Delete", ctx, "Document:7").Return(nil).Once()

		err := InvalidationHandler(inv, zap.NewNop())(ctx, amqp.Delivery{Body: []byte(`{"entity":"Document","id":7,"op":"saved"}`)})
		assert.NoError(t, err)
		inv.AssertExpectations(t)
	})

	t.Run("消息格式错误", func(t *testing.T) {
		h := InvalidationHandler(new(MockInvalidator), zap.NewNop())
		assert.ErrorIs(t, h(ctx, amqp.Delivery{Body: []byte(`not json`)}), ErrMalformedEvent)
		assert.ErrorIs(t, h(ctx, amqp.Delivery{Body: []byte(`{"op":"saved"}`)}), ErrMalformedEvent)
	})

	t.Run("缓存删除失败", func(t *testing.T) {
		inv := new(MockInvalidator)
		boom := errors.New("redis down")
		inv.On("Delete", ctx, "Person:p1").Return(boom).Once()

		err := InvalidationHandler(inv, zap.NewNop())(ctx, amqp.Delivery{Body: []byte(`{"entity":"Person","id":"p1"}`)})
		assert.ErrorIs(t, err, boom)
	})
}

func TestConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	ok := func(context.Context, amqp.Delivery) error { return nil }
	fail := func(context.Context, amqp.Delivery) error { return errors.New("bad") }

	t.Run("成功时 Ack", func(t *testing.T) {
		acker := &fakeAcker{}
		c := &Consumer{handler: ok, logger: zap.NewNop()}
		c.handle(ctx, amqp.Delivery{Acknowledger: acker})
		assert.Equal(t, 1, acker.acked)
		assert.Zero(t, acker.nacked)
	})

	t.Run("失败时 Nack 且不重新入队", func(t *testing.T) {
		acker := &fakeAcker{}
		c := &Consumer{handler: fail, logger: zap.NewNop()}
		c.handle(ctx, amqp.Delivery{Acknowledger: acker})
		assert.Equal(t, 1, acker.nacked)
		assert.False(t, acker.requeue)
	})

	t.Run("自动确认时不调用 Ack", func(t *testing.T) {
		acker := &fakeAcker{}
		c := &Consumer{handler: fail, logger: zap.NewNop(), autoAck: true}
		c.handle(ctx, amqp.Delivery{Acknowledger: acker})
		assert.Zero(t, acker.acked+acker.nacked)
	})
}

func TestConsumer_Consume(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 2)
	var handled []string
	c := &Consumer{
		handler: func(_ context.Context, d amqp.Delivery) error {
			handled = append(handled, string(d.Body))
			return nil
		},
		logger:  zap.NewNop(),
		autoAck: true,
		stopped: make(chan struct{}),
	}

	deliveries <- amqp.Delivery{Body: []byte("a")}
	deliveries <- amqp.Delivery{Body: []byte("b")}
	close(deliveries)

	c.consume(context.Background(), deliveries)
	_, open := <-c.stopped
	require.False(t, open, "通道关闭后循环退出")
	assert.Equal(t, []string{"a", "b"}, handled)
}
