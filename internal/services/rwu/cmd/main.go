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

	"github.com/LeonardoBeccarini/rootwater/internal/archive"
	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/logging"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/services/rwu"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.LogLevel, "rwu")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "rwu-service"
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client, log)

	var store rwu.Archive
	if cfg.Archive != "" {
		a, err := archive.Open(cfg.Archive)
		if err != nil {
			log.Fatal("open archive", zap.String("path", cfg.Archive), zap.Error(err))
		}
		defer a.Close()
		store = a
	}

	m := metrics.New("rwu")
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	consumer := rabbitmq.NewConsumer(client, cfg.Topics.SensorData, nil, log)
	svc := rwu.NewRWUService(consumer, rabbitmq.NewFactory(client, log), &cfg, store, m, log)

	log.Info("rwu service is running", zap.Duration("interval", cfg.RWU.Interval))
	svc.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
