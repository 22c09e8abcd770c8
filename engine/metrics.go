package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/model"
)

// Metrics holds the daemon's Prometheus instruments.
type Metrics struct {
	CollectionCycles  prometheus.Counter
	CollectionTargets *prometheus.CounterVec
	SamplesWritten    prometheus.Counter
	CollectionSeconds prometheus.Histogram
	AnalysisCycles    prometheus.Counter
	EventsCreated     prometheus.Counter
	EventsUpdated     prometheus.Counter
	AlertsSuppressed  prometheus.Gauge
	AlertsRateLimited prometheus.Gauge
	AlertFailures     *prometheus.GaugeVec
}

// NewMetrics registers the instruments on a fresh registry and returns
// both. A dedicated registry keeps test runs from colliding on the
// global one.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		CollectionCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlsentinel_collection_cycles_total",
			Help: "Completed collection cycles.",
		}),
		CollectionTargets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsentinel_collection_targets_total",
			Help: "Per-cycle target outcomes.",
		}, []string{"outcome"}),
		SamplesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlsentinel_samples_written_total",
			Help: "Interval samples persisted.",
		}),
		CollectionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlsentinel_collection_cycle_seconds",
			Help:    "Collection cycle wall time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AnalysisCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlsentinel_analysis_cycles_total",
			Help: "Completed analysis cycles.",
		}),
		EventsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlsentinel_events_created_total",
			Help: "Regression events created.",
		}),
		EventsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlsentinel_events_updated_total",
			Help: "Open events escalated in place.",
		}),
		AlertsSuppressed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sqlsentinel_alerts_suppressed",
			Help: "Alerts suppressed by cooldown since startup.",
		}),
		AlertsRateLimited: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sqlsentinel_alerts_rate_limited",
			Help: "Alerts dropped by the hourly cap since startup.",
		}),
		AlertFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sqlsentinel_alert_channel_failures",
			Help: "Delivery failures per channel since startup.",
		}, []string{"channel"}),
	}
	return m, reg
}

// ObserveCollection records one collection cycle.
func (m *Metrics) ObserveCollection(sum model.CollectionRunSummary) {
	m.CollectionCycles.Inc()
	m.CollectionTargets.WithLabelValues("ok").Add(float64(sum.TargetsOK))
	m.CollectionTargets.WithLabelValues("failed").Add(float64(sum.TargetsFailed))
	m.SamplesWritten.Add(float64(sum.SamplesWritten))
	m.CollectionSeconds.Observe(sum.Duration.Seconds())
}

// ObserveAnalysis records one analysis cycle.
func (m *Metrics) ObserveAnalysis(sum model.AnalysisRunSummary) {
	m.AnalysisCycles.Inc()
	m.EventsCreated.Add(float64(sum.EventsCreated))
	m.EventsUpdated.Add(float64(sum.EventsUpdated))
}

// ServeMetrics exposes the registry on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Info("metrics listener up", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics listener failed", zap.Error(err))
	}
}
