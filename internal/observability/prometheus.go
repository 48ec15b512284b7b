// Package observability exports iterator metrics to Prometheus.
package observability

import (
	"time"

	"github.com/hupe1980/imbin"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements imbin.MetricsCollector.
type PrometheusCollector struct {
	shardOpens    prometheus.Counter
	shardBytes    prometheus.Counter
	pageLatency   prometheus.Histogram
	prefetchWait  prometheus.Histogram
	samples       *prometheus.CounterVec
	sampleBytes   prometheus.Counter
	decodeLatency prometheus.Histogram
	epochs        prometheus.Counter
	epochSamples  prometheus.Gauge
	epochSeconds  prometheus.Gauge
}

var _ imbin.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		shardOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imbin_shard_opens_total",
			Help: "Shards opened by the page producer",
		}),
		shardBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imbin_shard_bytes_total",
			Help: "Stored size of opened shards",
		}),
		pageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imbin_page_load_seconds",
			Help:    "Time to load one page into a prefetch slot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		prefetchWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imbin_prefetch_wait_seconds",
			Help:    "Time the consumer blocked waiting for a page",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imbin_samples_total",
			Help: "Decoded samples",
		}, []string{"status"}),
		sampleBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imbin_sample_bytes_total",
			Help: "Encoded bytes of decoded samples",
		}),
		decodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imbin_decode_seconds",
			Help:    "Time to decode one sample",
			Buckets: prometheus.DefBuckets,
		}),
		epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imbin_epochs_total",
			Help: "Completed epochs",
		}),
		epochSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imbin_last_epoch_samples",
			Help: "Samples in the last completed epoch",
		}),
		epochSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imbin_last_epoch_seconds",
			Help: "Duration of the last completed epoch",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.shardOpens, c.shardBytes, c.pageLatency, c.prefetchWait, c.samples,
		c.sampleBytes, c.decodeLatency, c.epochs, c.epochSamples, c.epochSeconds,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) RecordShardOpen(size int64) {
	c.shardOpens.Inc()
	c.shardBytes.Add(float64(size))
}

func (c *PrometheusCollector) RecordPageProduced(d time.Duration) {
	c.pageLatency.Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordPrefetchWait(d time.Duration) {
	c.prefetchWait.Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordSample(bytes int, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.samples.WithLabelValues(status).Inc()
	c.sampleBytes.Add(float64(bytes))
	c.decodeLatency.Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordEpoch(samples int64, d time.Duration) {
	c.epochs.Inc()
	c.epochSamples.Set(float64(samples))
	c.epochSeconds.Set(d.Seconds())
}
