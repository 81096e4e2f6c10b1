package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/logging"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/services/sapflow"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.LogLevel, "sapflow")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sapflow-service"
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client, log)

	m := metrics.New("sapflow")
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	consumer := rabbitmq.NewConsumer(client, cfg.Topics.SapData, nil, log)
	svc := sapflow.NewSapFlowService(consumer, rabbitmq.NewFactory(client, log), &cfg, m, log)

	log.Info("sapflow service is running", zap.Float64("active_fraction", cfg.SapFlow.ActiveFraction))
	svc.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
