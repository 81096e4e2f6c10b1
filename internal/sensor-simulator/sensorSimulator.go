package sensor_simulator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

// SensorSimulator publishes synthetic moisture readings for every probe of a
// field and sap velocities for every tree.
type SensorSimulator struct {
	field      *model.Field
	generators map[string]*DataGenerator
	sap        map[string]SapGenerator
	moisture   rabbitmq.IPublisher
	velocity   rabbitmq.IPublisher
	log        *zap.Logger
	now        func() time.Time
}

func NewSensorSimulator(field *model.Field, moisture, velocity rabbitmq.IPublisher,
	params DiurnalParams, sapPeak float64, log *zap.Logger) *SensorSimulator {
	s := &SensorSimulator{
		field:      field,
		generators: make(map[string]*DataGenerator, len(field.Probes)),
		sap:        make(map[string]SapGenerator, len(field.Trees)),
		moisture:   moisture,
		velocity:   velocity,
		log:        log,
		now:        time.Now,
	}
	for i, p := range field.Probes {
		s.generators[p.ID] = NewDataGenerator(params, p.Observer(), int64(i+1))
	}
	// trees share the site of the first probe
	if len(field.Probes) > 0 {
		sun := field.Probes[0].Observer()
		for _, t := range field.Trees {
			s.sap[t.ID] = SapGenerator{Peak: sapPeak, Sun: sun}
		}
	}
	return s
}

// Seed seeds every probe from SoilGrids. A nil client uses the default seed.
func (s *SensorSimulator) Seed(ctx context.Context, sg *SoilGrids) {
	now := s.now()
	for i := range s.field.Probes {
		p := &s.field.Probes[i]
		g := s.generators[p.ID]
		if sg == nil {
			g.Seed(defaultSeed, now.In(p.Location()))
			continue
		}
		g.SeedFromSoilGrids(ctx, sg, p, now.In(p.Location()))
	}
}

// Tick publishes one reading per probe and tree.
func (s *SensorSimulator) Tick() {
	now := s.now()
	for i := range s.field.Probes {
		p := &s.field.Probes[i]
		sd := s.generators[p.ID].NextAt(p, now.In(p.Location()))
		s.log.Debug("pub moisture",
			zap.String("field", sd.FieldID), zap.String("probe", sd.ProbeID), zap.Float64("moisture", sd.Moisture))
		if err := s.moisture.PublishMessage(sd); err != nil {
			s.log.Warn("publish error", zap.String("probe", p.ID), zap.Error(err))
		}
	}
	if s.velocity == nil || len(s.field.Probes) == 0 {
		return
	}
	loc := s.field.Probes[0].Location()
	for i := range s.field.Trees {
		t := &s.field.Trees[i]
		v := s.sap[t.ID].At(t, now.In(loc))
		if err := s.velocity.PublishMessage(v); err != nil {
			s.log.Warn("publish error", zap.String("tree", t.ID), zap.Error(err))
		}
	}
}

// Start publishes at every interval until ctx is cancelled.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			s.moisture.Close()
			if s.velocity != nil {
				s.velocity.Close()
			}
			return
		case <-time.After(interval):
			s.Tick()
		}
	}
}
