// Package rwu buffers soil-moisture readings per probe and publishes a daily
// root water uptake estimate once a day and the following night are complete.
package rwu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/dedup"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// Archive stores published day estimates.
type Archive interface {
	Save(ctx context.Context, fieldID, probeID string, days ...rootwater.DayEstimate) error
}

type probeBuffer struct {
	probe     model.Probe
	series    *timeseries.Series
	published time.Time // last published day
}

type RWUService struct {
	consumer   rabbitmq.IConsumer
	publishers rabbitmq.PublisherFactory
	cfg        *config.Config
	archive    Archive
	deduper    *dedup.Deduper
	metrics    *metrics.Metrics
	log        *zap.Logger

	mutex  sync.Mutex
	buffer map[string]*probeBuffer // key is field/probe
	topics map[string]rabbitmq.IPublisher
}

// NewRWUService wires the service. archive may be nil.
func NewRWUService(consumer rabbitmq.IConsumer, publishers rabbitmq.PublisherFactory, cfg *config.Config,
	archive Archive, m *metrics.Metrics, log *zap.Logger) *RWUService {
	return &RWUService{
		consumer:   consumer,
		publishers: publishers,
		cfg:        cfg,
		archive:    archive,
		deduper:    dedup.New(2*time.Minute, 10000),
		metrics:    m,
		log:        log,
		buffer:     make(map[string]*probeBuffer),
		topics:     make(map[string]rabbitmq.IPublisher),
	}
}

func bufferKey(fieldID, probeID string) string { return fieldID + "/" + probeID }

func (s *RWUService) messageHandler(topic string, message mqtt.Message) error {
	s.metrics.Received.WithLabelValues(topic).Inc()
	if !s.deduper.ShouldProcess(dedup.Key(message.Payload())) {
		s.metrics.Dropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	var sd model.SoilMoistureData
	if err := json.Unmarshal(message.Payload(), &sd); err != nil {
		s.metrics.Dropped.WithLabelValues("invalid").Inc()
		return fmt.Errorf("invalid SoilMoistureData: %w", err)
	}
	probe, ok := s.cfg.Probe(sd.FieldID, sd.ProbeID)
	if !ok {
		s.metrics.Dropped.WithLabelValues("unknown_probe").Inc()
		s.log.Debug("reading of unknown probe", zap.String("field_id", sd.FieldID), zap.String("probe_id", sd.ProbeID))
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	key := bufferKey(sd.FieldID, sd.ProbeID)
	b, ok := s.buffer[key]
	if !ok {
		b = &probeBuffer{probe: probe, series: &timeseries.Series{Name: key}}
		s.buffer[key] = b
	}
	if err := b.series.Append(sd.Timestamp.In(probe.Location()), sd.Moisture); err != nil {
		s.metrics.Dropped.WithLabelValues("out_of_order").Inc()
		return nil
	}
	return nil
}

// Start consumes readings and estimates at every interval until ctx is done.
func (s *RWUService) Start(ctx context.Context) {
	s.consumer.SetHandler(s.messageHandler)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.consumer.ConsumeMessage(ctx)
	}()

	ticker := time.NewTicker(s.cfg.RWU.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.closePublishers()
			return
		case <-ticker.C:
			if err := s.EstimateOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("estimation cycle failed", zap.Error(err))
			}
		}
	}
}

type snapshot struct {
	key       string
	probe     model.Probe
	series    *timeseries.Series
	published time.Time
}

// EstimateOnce runs the estimator on every buffer, publishes the days not
// published yet and trims the buffers.
func (s *RWUService) EstimateOnce(ctx context.Context) error {
	s.mutex.Lock()
	snaps := make([]snapshot, 0, len(s.buffer))
	for key, b := range s.buffer {
		snaps = append(snaps, snapshot{key: key, probe: b.probe, series: b.series.In(b.probe.Location()), published: b.published})
	}
	s.mutex.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, snap := range snaps {
		g.Go(func() error {
			last, err := s.estimateProbe(gctx, snap)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("estimation failed", zap.String("field_id", snap.probe.FieldID),
					zap.String("probe_id", snap.probe.ID), zap.Error(err))
			}
			s.mutex.Lock()
			if b := s.buffer[snap.key]; b != nil && last.After(b.published) {
				b.published = last
			}
			s.mutex.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.trim()
	return nil
}

// estimateProbe returns the last day it published.
func (s *RWUService) estimateProbe(ctx context.Context, snap snapshot) (time.Time, error) {
	start := time.Now()
	days, err := rootwater.Estimate(ctx, snap.series, s.cfg.ProbeParams(snap.probe))
	s.metrics.Duration.WithLabelValues("estimate").Observe(time.Since(start).Seconds())
	if errors.Is(err, rootwater.ErrEmptySeries) {
		// no completed day yet
		return snap.published, nil
	}
	if err != nil {
		return snap.published, err
	}

	pub := s.publisher(rabbitmq.FormatTopic(s.cfg.Topics.RWUEvents, snap.probe.FieldID, snap.probe.ID))
	last := snap.published
	var fresh []rootwater.DayEstimate
	for _, d := range days {
		if !d.Day.After(snap.published) {
			continue
		}
		if s.cfg.RWU.Safe {
			d = d.Filtered()
		}
		evt := model.NewRWUEstimateEvent(snap.probe.FieldID, snap.probe.ID, d, time.Now().UTC())
		if m, ok := snap.series.At(d.DayStart); ok {
			if h, ok := snap.probe.Head(m); ok {
				evt.HeadStart = model.Number(h)
			}
		}
		if err := pub.PublishMessage(evt); err != nil {
			return last, fmt.Errorf("publish %s: %w", d.Day.Format("2006-01-02"), err)
		}
		s.metrics.Published.WithLabelValues("rwu").Inc()
		s.metrics.Estimates.WithLabelValues(metrics.Quality(evt.Safe, d.Skipped)).Inc()
		s.log.Info("rwu estimate published",
			zap.String("field_id", snap.probe.FieldID), zap.String("probe_id", snap.probe.ID),
			zap.Time("day", d.Day), zap.Float64("rwu", d.RWU), zap.Int("step_control", d.StepControl))
		fresh = append(fresh, d)
		last = d.Day
	}

	if s.archive != nil && len(fresh) > 0 {
		if err := s.archive.Save(ctx, snap.probe.FieldID, snap.probe.ID, fresh...); err != nil {
			return last, fmt.Errorf("archive: %w", err)
		}
	}
	return last, nil
}

func (s *RWUService) publisher(topic string) rabbitmq.IPublisher {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p, ok := s.topics[topic]
	if !ok {
		p = s.publishers(topic)
		s.topics[topic] = p
	}
	return p
}

func (s *RWUService) closePublishers() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, p := range s.topics {
		p.Close()
	}
}

// trim keeps BufferDays calendar days before the day of the last reading.
func (s *RWUService) trim() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, b := range s.buffer {
		last, _, ok := b.series.Last()
		if !ok {
			continue
		}
		loc := b.probe.Location()
		b.series.TrimBefore(timeseries.Midnight(last, loc).AddDate(0, 0, -s.cfg.RWU.BufferDays))
	}
}

// Buffered returns the number of readings held for a probe.
func (s *RWUService) Buffered(fieldID, probeID string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if b := s.buffer[bufferKey(fieldID, probeID)]; b != nil {
		return b.series.Len()
	}
	return 0
}
