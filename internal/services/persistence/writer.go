package persistence

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
)

// Writer wraps the non-blocking WriteAPI and tracks the last write error
// for /healthz and /readyz.
type Writer struct {
	api     api.WriteAPI
	metrics *metrics.Metrics
	log     *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
	done    chan struct{}
}

// NewWriter starts listening to the asynchronous write errors. The listener
// ends when the client closes the error channel.
func NewWriter(w api.WriteAPI, m *metrics.Metrics, log *zap.Logger) *Writer {
	ww := &Writer{
		api:     w,
		metrics: m,
		log:     log,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
		done:    make(chan struct{}),
	}
	errs := w.Errors()
	go func() {
		defer close(ww.done)
		for err := range errs {
			if err == nil {
				continue
			}
			ww.mu.Lock()
			ww.lastErr = time.Now()
			ww.mu.Unlock()
			ww.metrics.Writes.WithLabelValues("error").Inc()
			ww.log.Warn("influx write error", zap.Error(err))
		}
	}()
	return ww
}

// Write queues the point of r.
func (w *Writer) Write(r Record) {
	w.api.WritePoint(RecordToPoint(r))
	w.metrics.Writes.WithLabelValues("queued").Inc()
	w.mu.Lock()
	w.counts[r.Measurement]++
	w.mu.Unlock()
}

func (w *Writer) Flush() { w.api.Flush() }

// Done is closed once the error listener returned.
func (w *Writer) Done() <-chan struct{} { return w.done }

// LastErrorAge is the time since the last write error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

// Count returns the points queued for a measurement.
func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[measurement]
}
