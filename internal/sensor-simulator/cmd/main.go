package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/logging"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	sensorSimulator "github.com/LeonardoBeccarini/rootwater/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML configuration")
	fieldID := flag.String("field-id", "field1", "field to simulate")
	clientID := flag.String("client-id", "sensorPublisher1", "MQTT client ID")
	interval := flag.Duration("interval", 30*time.Minute, "publish interval")
	uptake := flag.Float64("uptake", 1.0, "daily root water uptake, vol.%")
	recharge := flag.Float64("recharge", 0.1, "nightly redistribution, vol.%")
	noise := flag.Float64("noise", 0.005, "reading noise, vol.%")
	sapPeak := flag.Float64("sap-peak", 12, "outer sap velocity at noon, cm/h")
	soilGrids := flag.Bool("soilgrids", false, "seed moisture from SoilGrids")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.LogLevel, "sensor-simulator")
	defer func() { _ = log.Sync() }()

	var field *model.Field
	for i := range cfg.Fields {
		if cfg.Fields[i].ID == *fieldID {
			field = &cfg.Fields[i]
		}
	}
	if field == nil {
		log.Fatal("unknown field", zap.String("field", *fieldID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.MQTT.ClientID = *clientID
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client, log)

	sim := sensorSimulator.NewSensorSimulator(field,
		rabbitmq.NewPublisher(client, cfg.Topics.SensorData, log),
		rabbitmq.NewPublisher(client, cfg.Topics.SapData, log),
		sensorSimulator.DiurnalParams{Uptake: *uptake, Recharge: *recharge, Noise: *noise},
		*sapPeak, log)

	var sg *sensorSimulator.SoilGrids
	if *soilGrids {
		sg = sensorSimulator.NewSoilGrids(log)
	}
	sim.Seed(ctx, sg)

	log.Info("simulating", zap.String("field", field.ID),
		zap.Int("probes", len(field.Probes)), zap.Int("trees", len(field.Trees)), zap.Duration("interval", *interval))
	sim.Start(ctx, *interval)
}
