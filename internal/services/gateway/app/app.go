package app

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
)

type Config struct {
	PersistenceBaseURL string
	LatestPath         string // e.g. /rwu/latest?limit=200
	HTTPTimeout        time.Duration
	Breaker            config.BreakerConfig

	Logger *zap.Logger
}

// Gateway aggregates the stored estimates for the dashboard.
type Gateway struct {
	cfg         Config
	persistence *Upstream

	mu       sync.Mutex
	lastGood []LatestRWU
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 3 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "persistence",
		Interval: cfg.Breaker.Interval,
		Timeout:  cfg.Breaker.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(max(cfg.Breaker.Failures, 1))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("breaker state", zap.String("upstream", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	p := NewUpstream("persistence", cfg.PersistenceBaseURL, cfg.LatestPath, cfg.HTTPTimeout, cb)
	return &Gateway{cfg: cfg, persistence: p}
}
