package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/archive"
	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/logging"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/services/persistence"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.LogLevel, "persistence")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === InfluxDB ===
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.Influx.BatchSize)).
		SetFlushInterval(uint(cfg.Influx.FlushInterval.Milliseconds()))
	influx := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
	defer influx.Close()

	m := metrics.New("persistence")
	writer := persistence.NewWriter(influx.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket), m, log)
	history := persistence.NewInfluxHistory(influx.QueryAPI(cfg.Influx.Org), cfg.Influx.Bucket,
		persistence.NewBreaker("influx", cfg.Breaker))

	// === MQTT ===
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "persistence-service"
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client, log)

	// === HTTP ===
	var days persistence.DayLister
	if cfg.Archive != "" {
		a, err := archive.Open(cfg.Archive)
		if err != nil {
			log.Fatal("open archive", zap.String("path", cfg.Archive), zap.Error(err))
		}
		defer a.Close()
		days = a
	}
	api := persistence.NewAPI(&cfg, history, days, log)
	mux := persistence.NewHTTPMux(api,
		persistence.NewHealthHandler(client, influx, writer),
		persistence.NewReadyHandler(client, influx, writer, 2*time.Second),
		m.Handler())
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("persistence HTTP listening", zap.Int("port", cfg.HTTPPort))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	// === Consumer ===
	decoder := persistence.NewDecoder(cfg.Topics)
	consumer := rabbitmq.NewMultiConsumer(client, decoder.Subscriptions(), nil, log)
	persistence.NewService(consumer, decoder, writer, m, log).Start(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	log.Info("persistence: shutdown complete")
}
