package imbin

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Producer-side methods (RecordShardOpen, RecordPageProduced) are called from
// the prefetch goroutine; the others from the consumer.
type MetricsCollector interface {
	// RecordShardOpen is called after a shard was opened.
	RecordShardOpen(size int64)

	// RecordPageProduced is called after the producer loaded a page.
	RecordPageProduced(duration time.Duration)

	// RecordPrefetchWait is called when the consumer blocked for a page.
	RecordPrefetchWait(duration time.Duration)

	// RecordSample is called after each decoded sample.
	// bytes is the encoded size, err is nil if decoding succeeded.
	RecordSample(bytes int, duration time.Duration, err error)

	// RecordEpoch is called when an epoch ends.
	RecordEpoch(samples int64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordShardOpen(int64)                 {}
func (NoopMetricsCollector) RecordPageProduced(time.Duration)       {}
func (NoopMetricsCollector) RecordPrefetchWait(time.Duration)       {}
func (NoopMetricsCollector) RecordSample(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordEpoch(int64, time.Duration)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ShardOpens        atomic.Int64
	ShardBytes        atomic.Int64
	PagesProduced     atomic.Int64
	ProduceTotalNanos atomic.Int64
	PrefetchWaits     atomic.Int64
	WaitTotalNanos    atomic.Int64
	SampleCount       atomic.Int64
	SampleBytes       atomic.Int64
	SampleErrors      atomic.Int64
	DecodeTotalNanos  atomic.Int64
	EpochCount        atomic.Int64
}

// RecordShardOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordShardOpen(size int64) {
	b.ShardOpens.Add(1)
	b.ShardBytes.Add(size)
}

// RecordPageProduced implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageProduced(duration time.Duration) {
	b.PagesProduced.Add(1)
	b.ProduceTotalNanos.Add(duration.Nanoseconds())
}

// RecordPrefetchWait implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrefetchWait(duration time.Duration) {
	b.PrefetchWaits.Add(1)
	b.WaitTotalNanos.Add(duration.Nanoseconds())
}

// RecordSample implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSample(bytes int, duration time.Duration, err error) {
	b.SampleCount.Add(1)
	b.SampleBytes.Add(int64(bytes))
	b.DecodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SampleErrors.Add(1)
	}
}

// RecordEpoch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEpoch(int64, time.Duration) {
	b.EpochCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ShardOpens:      b.ShardOpens.Load(),
		ShardBytes:      b.ShardBytes.Load(),
		PagesProduced:   b.PagesProduced.Load(),
		ProduceAvgNanos: avg(b.ProduceTotalNanos.Load(), b.PagesProduced.Load()),
		PrefetchWaits:   b.PrefetchWaits.Load(),
		WaitTotalNanos:  b.WaitTotalNanos.Load(),
		SampleCount:     b.SampleCount.Load(),
		SampleBytes:     b.SampleBytes.Load(),
		SampleErrors:    b.SampleErrors.Load(),
		DecodeAvgNanos:  avg(b.DecodeTotalNanos.Load(), b.SampleCount.Load()),
		EpochCount:      b.EpochCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ShardOpens      int64
	ShardBytes      int64
	PagesProduced   int64
	ProduceAvgNanos int64
	PrefetchWaits   int64
	WaitTotalNanos  int64
	SampleCount     int64
	SampleBytes     int64
	SampleErrors    int64
	DecodeAvgNanos  int64
	EpochCount      int64
}
