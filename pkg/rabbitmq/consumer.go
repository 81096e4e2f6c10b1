package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages to a handler until the
// context is cancelled.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// Consumer subscribes a single topic filter.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	log     *zap.Logger
}

// NewConsumer creates a Consumer on the shared client. The handler may be
// nil and injected later with SetHandler.
func NewConsumer(client mqtt.Client, topic string, handler Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
		log:     log.With(zap.String("topic", topic)),
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// QoSFor returns 1 for derived events, which must not be lost, and 0 for
// raw telemetry.
func QoSFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "event/rwu") || strings.HasPrefix(t, "event/sapflow") {
		return 1
	}
	return 0
}

func dispatch(log *zap.Logger, handler Handler, topic string) mqtt.MessageHandler {
	return func(_ mqtt.Client, message mqtt.Message) {
		if handler == nil {
			log.Warn("no handler set")
			return
		}
		if err := handler(topic, message); err != nil {
			log.Warn("error handling message", zap.String("msg_topic", message.Topic()), zap.Error(err))
		}
	}
}

// ConsumeMessage subscribes to the topic and blocks until ctx is done.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	token := c.client.Subscribe(c.topic, QoSFor(c.topic), dispatch(c.log, c.handler, c.topic))
	if token.Wait() && token.Error() != nil {
		c.log.Error("error subscribing", zap.Error(token.Error()))
		return
	}
	c.log.Info("subscribed")

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
}

// MultiConsumer subscribes several topic filters with one handler.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
	log     *zap.Logger
}

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler, log *zap.Logger) *MultiConsumer {
	return &MultiConsumer{
		client:  client,
		topics:  topics,
		handler: handler,
		log:     log,
	}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range m.topics {
		log := m.log.With(zap.String("topic", topic))
		token := m.client.Subscribe(topic, QoSFor(topic), dispatch(log, m.handler, topic))
		token.Wait()
		if token.Error() != nil {
			log.Error("error subscribing", zap.Error(token.Error()))
		} else {
			log.Info("subscribed")
		}
	}

	<-ctx.Done()

	m.client.Unsubscribe(m.topics...).Wait()
}
