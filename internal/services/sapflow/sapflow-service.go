// Package sapflow converts sap velocity readings into sap flow events as
// they arrive.
package sapflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/dedup"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/rootwater/pkg/sapflow"
)

type SapFlowService struct {
	consumer   rabbitmq.IConsumer
	publishers rabbitmq.PublisherFactory
	cfg        *config.Config
	deduper    *dedup.Deduper
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu     sync.Mutex
	trees  map[string]sapflow.Tree
	topics map[string]rabbitmq.IPublisher
}

func NewSapFlowService(consumer rabbitmq.IConsumer, publishers rabbitmq.PublisherFactory, cfg *config.Config,
	m *metrics.Metrics, log *zap.Logger) *SapFlowService {
	return &SapFlowService{
		consumer:   consumer,
		publishers: publishers,
		cfg:        cfg,
		deduper:    dedup.New(2*time.Minute, 10000),
		metrics:    m,
		log:        log,
		trees:      make(map[string]sapflow.Tree),
		topics:     make(map[string]rabbitmq.IPublisher),
	}
}

// tree resolves and caches the geometry of a configured tree.
func (s *SapFlowService) tree(fieldID, treeID string) (sapflow.Tree, bool) {
	key := fieldID + "/" + treeID
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trees[key]; ok {
		return t, true
	}
	cfgTree, ok := s.cfg.Tree(fieldID, treeID)
	if !ok {
		return sapflow.Tree{}, false
	}
	t, err := cfgTree.SapTree()
	if err != nil {
		return sapflow.Tree{}, false
	}
	s.trees[key] = t
	return t, true
}

func (s *SapFlowService) publisher(topic string) rabbitmq.IPublisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.topics[topic]
	if !ok {
		p = s.publishers(topic)
		s.topics[topic] = p
	}
	return p
}

func (s *SapFlowService) messageHandler(topic string, message mqtt.Message) error {
	s.metrics.Received.WithLabelValues(topic).Inc()
	if !s.deduper.ShouldProcess(dedup.Key(message.Payload())) {
		s.metrics.Dropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	var v model.SapVelocityData
	if err := json.Unmarshal(message.Payload(), &v); err != nil {
		s.metrics.Dropped.WithLabelValues("invalid").Inc()
		return fmt.Errorf("invalid SapVelocityData: %w", err)
	}
	tree, ok := s.tree(v.FieldID, v.TreeID)
	if !ok {
		s.metrics.Dropped.WithLabelValues("unknown_tree").Inc()
		s.log.Debug("reading of unknown tree", zap.String("field_id", v.FieldID), zap.String("tree_id", v.TreeID))
		return nil
	}

	start := time.Now()
	q, err := sapflow.ConvertReading(tree, v.Inner, v.Mid, v.Outer, s.cfg.SapFlow.ActiveFraction)
	s.metrics.Duration.WithLabelValues("sapflow").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Dropped.WithLabelValues("conversion").Inc()
		return fmt.Errorf("tree %s/%s: %w", v.FieldID, v.TreeID, err)
	}

	evt := model.SapFlowEvent{
		EventID:   uuid.New().String(),
		FieldID:   v.FieldID,
		TreeID:    v.TreeID,
		Inner:     model.Number(q.Inner),
		Mid:       model.Number(q.Mid),
		Outer:     model.Number(q.Outer),
		Total:     model.Number(q.Total()),
		Timestamp: v.Timestamp,
	}
	if err := s.publisher(rabbitmq.FormatTopic(s.cfg.Topics.SapFlowEvents, v.FieldID, v.TreeID)).PublishMessage(evt); err != nil {
		return err
	}
	s.metrics.Published.WithLabelValues("sapflow").Inc()
	return nil
}

// Start consumes readings until ctx is done.
func (s *SapFlowService) Start(ctx context.Context) {
	s.consumer.SetHandler(s.messageHandler)
	s.consumer.ConsumeMessage(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.topics {
		p.Close()
	}
}
