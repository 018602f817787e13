package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector instruments the processing loop. It uses a private registry so
// tests can create collectors without panicking on duplicate registration.
type Collector struct {
	registry        *prometheus.Registry
	eventsProcessed prometheus.Counter
	eventsFailed    *prometheus.CounterVec
	eventsIgnored   *prometheus.CounterVec
	eventDuration   prometheus.Histogram
	accountBalance  *prometheus.GaugeVec
	lockedAccounts  prometheus.Gauge
	logger          *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		eventsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "engine_events_processed_total",
			Help: "Total number of successfully applied transaction events",
		}),
		eventsFailed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "engine_events_failed_total",
			Help: "Total number of rejected transaction events by reason",
		}, []string{"reason"}),
		eventsIgnored: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "engine_events_ignored_total",
			Help: "Total number of silently ignored dispute-family events",
		}, []string{"type"}),
		eventDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_event_processing_duration_seconds",
			Help:    "Time taken to apply one transaction event",
			Buckets: prometheus.DefBuckets,
		}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_account_balance",
			Help: "Final account balances by client and field",
		}, []string{"client", "field"}),
		lockedAccounts: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "engine_locked_accounts",
			Help: "Number of accounts locked by a chargeback",
		}),
		logger: logger,
	}
}

func (c *Collector) RecordProcessed(duration time.Duration) {
	c.eventsProcessed.Inc()
	c.eventDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordFailed(duration time.Duration, reason string) {
	c.eventsFailed.WithLabelValues(reason).Inc()
	c.eventDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordIgnored(txType string) {
	c.eventsIgnored.WithLabelValues(txType).Inc()
}

// UpdateAccountBalance publishes the exported balances of one account.
// Gauges are float-valued, so this view is approximate; the CSV snapshot
// remains the exact record.
func (c *Collector) UpdateAccountBalance(client string, available, held, total float64, locked bool) {
	c.accountBalance.WithLabelValues(client, "available").Set(available)
	c.accountBalance.WithLabelValues(client, "held").Set(held)
	c.accountBalance.WithLabelValues(client, "total").Set(total)
	if locked {
		c.lockedAccounts.Inc()
	}
}

func (c *Collector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (c *Collector) Shutdown(ctx context.Context) error {
	c.logger.Info("Metrics collector shutdown complete")
	return nil
}
