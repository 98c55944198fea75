package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/click-redirector/internal/geo"
	"github.com/JakeFAU/click-redirector/internal/ledger"
)

// PrometheusSink exports ledger throughput via Prometheus.
type PrometheusSink struct {
	clicksRecorded *prometheus.CounterVec
	increments     prometheus.Counter
	batchSize      prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		clicksRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirector_ledger_clicks_total",
			Help: "Click rows flushed by the ledger, partitioned by country.",
		}, []string{"country"}),
		increments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirector_ledger_count_increments_total",
			Help: "Link counter increments flushed by the ledger.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redirector_ledger_batch_size",
			Help:    "Operations per ledger flush.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.clicksRecorded,
		s.increments,
		s.batchSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register ledger collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []ledger.Event) error {
	s.batchSize.Observe(float64(len(batch)))
	for _, evt := range batch {
		switch evt.Kind {
		case ledger.KindClick:
			country := evt.Click.Country
			if country == "" {
				country = geo.Unknown
			}
			s.clicksRecorded.WithLabelValues(country).Inc()
		case ledger.KindCount:
			s.increments.Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
