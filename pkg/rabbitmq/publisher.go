package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// IPublisher publishes messages to a fixed topic.
type IPublisher interface {
	PublishMessage(message interface{}) error
	Close()
}

// PublisherFactory returns a publisher bound to topic.
type PublisherFactory func(topic string) IPublisher

// Publisher holds the client and the topic it publishes to.
type Publisher struct {
	client mqtt.Client
	topic  string
	log    *zap.Logger
}

func NewPublisher(client mqtt.Client, topic string, log *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		log:    log,
	}
}

// NewFactory builds publishers sharing one client.
func NewFactory(client mqtt.Client, log *zap.Logger) PublisherFactory {
	return func(topic string) IPublisher {
		return NewPublisher(client, topic, log)
	}
}

// FormatTopic fills the {field} and {id} placeholders of a topic template.
func FormatTopic(tmpl, fieldID, id string) string {
	return strings.NewReplacer("{field}", fieldID, "{id}", id).Replace(tmpl)
}

// Encode turns a string, byte slice or JSON-marshalable value into a payload.
func Encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		return b, nil
	}
}

// PublishMessage publishes with the QoS of the topic, not retained.
func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishMessageQos(QoSFor(p.topic), false, message)
}

func (p *Publisher) PublishMessageQos(qos byte, retained bool, message interface{}) error {
	payload, err := Encode(message)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}
	p.log.Debug("message published", zap.String("topic", p.topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects the shared client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("mqtt client disconnected")
	}
}
