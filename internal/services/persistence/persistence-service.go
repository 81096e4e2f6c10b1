// Package persistence stores raw readings and derived events in InfluxDB and
// serves them back over HTTP.
package persistence

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/pkg/dedup"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

type Service struct {
	consumer rabbitmq.IConsumer
	decoder  *Decoder
	writer   *Writer
	deduper  *dedup.Deduper
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewService(consumer rabbitmq.IConsumer, decoder *Decoder, writer *Writer, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		consumer: consumer,
		decoder:  decoder,
		writer:   writer,
		deduper:  dedup.New(10*time.Minute, 20000),
		metrics:  m,
		log:      log,
	}
}

// handle decodes a message and queues its point. Only QoS 1 topics can be
// redelivered, so only those are deduplicated.
func (s *Service) handle(filter string, m mqtt.Message) error {
	topic := m.Topic()
	s.metrics.Received.WithLabelValues(filter).Inc()
	if rabbitmq.QoSFor(topic) == 1 && !s.deduper.ShouldProcess(dedup.Key(m.Payload())) {
		s.metrics.Dropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	rec, err := s.decoder.Decode(topic, m.Payload())
	if errors.Is(err, ErrUnhandledTopic) {
		s.metrics.Dropped.WithLabelValues("topic").Inc()
		return nil
	}
	if err != nil {
		s.metrics.Dropped.WithLabelValues("invalid").Inc()
		return err
	}
	s.writer.Write(rec)
	return nil
}

// Start consumes until ctx is done, then flushes the pending points.
func (s *Service) Start(ctx context.Context) {
	s.consumer.SetHandler(s.handle)
	s.consumer.ConsumeMessage(ctx)
	s.writer.Flush()
	s.log.Info("persistence consumer stopped")
}
