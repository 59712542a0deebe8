package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "tilefilter"

// Registry is the per-run metric registry. A nil *Registry is valid and
// yields unregistered metrics.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Prometheus returns the underlying registry
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Registry) factory() promauto.Factory {
	if r == nil {
		return promauto.With(nil)
	}
	return promauto.With(r.reg)
}

// CacheMetrics counts feature index cache activity
type CacheMetrics struct {
	Hits         prometheus.Counter
	Misses       prometheus.Counter
	Rebuilds     prometheus.Counter
	Evictions    prometheus.Counter
	Loads        *prometheus.CounterVec // by persisted-load outcome
	LoadDuration prometheus.Histogram
}

// NewCacheMetrics registers the cache counters on r
func NewCacheMetrics(r *Registry) *CacheMetrics {
	f := r.factory()
	return &CacheMetrics{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Resolves answered by a resident feature index",
		}),
		Misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Resolves that had to load or build a feature index",
		}),
		Rebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "rebuilds_total",
			Help: "Feature indexes rebuilt from the source dataset",
		}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Feature indexes dropped from the cache",
		}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "persisted_loads_total",
			Help: "Persisted feature index loads by outcome",
		}, []string{"outcome"}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "cache", Name: "load_duration_seconds",
			Help:    "Time to load or build a feature index",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// BatchMetrics counts filter decisions
type BatchMetrics struct {
	Decisions  *prometheus.CounterVec // by action and reason
	TileErrors prometheus.Counter
}

// NewBatchMetrics registers the batch counters on r
func NewBatchMetrics(r *Registry) *BatchMetrics {
	f := r.factory()
	return &BatchMetrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "decisions_total",
			Help: "Tile decisions by action and reason",
		}, []string{"action", "reason"}),
		TileErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "tile_errors_total",
			Help: "Tiles that could not be processed",
		}),
	}
}

// Serve exposes the registry on addr under /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, r *Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Prometheus(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
