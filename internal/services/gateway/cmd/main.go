package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/logging"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/services/gateway/app"
)

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.LogLevel, "gateway")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := app.NewGateway(app.Config{
		PersistenceBaseURL: getenv("PERSISTENCE_URL", "http://persistence:8080"),
		LatestPath:         getenv("LATEST_PATH", "/rwu/latest?limit=200"),
		HTTPTimeout:        3 * time.Second,
		Breaker:            cfg.Breaker,
		Logger:             log,
	})

	m := metrics.New("gateway")
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/dashboard/data", gw.HandleDashboard)
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
