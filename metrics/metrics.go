// Package metrics holds the OpenTelemetry instruments of the voice pipeline.
//
// Instruments are created from any metric.MeterProvider. InitProvider wires
// a Prometheus exporter so the values can be scraped from /metrics; tests
// use an sdkmetric.ManualReader instead.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "assistant-voice-pipeline"

type Metrics struct {
	KeywordHits       metric.Int64Counter
	FalseAlarms       metric.Int64Counter
	UtterancesEmitted metric.Int64Counter
	// UtterancesDropped counts hand-offs rejected by a full sink queue.
	UtterancesDropped metric.Int64Counter
	// WindowsClassified is keyed by attribute "detector" ("keyword" or "vad").
	WindowsClassified metric.Int64Counter
	SourceOverflows   metric.Int64Counter

	UtteranceDuration     metric.Float64Histogram
	ClassificationLatency metric.Float64Histogram
}

var durationBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.KeywordHits, err = m.Int64Counter("voice_pipeline.keyword.hits",
		metric.WithDescription("Keyword hits that started a capture episode."),
	); err != nil {
		return nil, err
	}
	if met.FalseAlarms, err = m.Int64Counter("voice_pipeline.keyword.false_alarms",
		metric.WithDescription("Episodes dropped because no voice followed the keyword."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesEmitted, err = m.Int64Counter("voice_pipeline.utterances.emitted",
		metric.WithDescription("Utterances handed to the sink."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("voice_pipeline.utterances.dropped",
		metric.WithDescription("Utterances dropped because the sink queue was full."),
	); err != nil {
		return nil, err
	}
	if met.WindowsClassified, err = m.Int64Counter("voice_pipeline.windows.classified",
		metric.WithDescription("Detector windows classified by detector."),
	); err != nil {
		return nil, err
	}
	if met.SourceOverflows, err = m.Int64Counter("voice_pipeline.source.overflows",
		metric.WithDescription("Input overflows reported by the sample source."),
	); err != nil {
		return nil, err
	}

	if met.UtteranceDuration, err = m.Float64Histogram("voice_pipeline.utterance.duration",
		metric.WithDescription("Length of emitted utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassificationLatency, err = m.Float64Histogram("voice_pipeline.classification.latency",
		metric.WithDescription("Time spent classifying one detector window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordClassification counts one classified window and its latency.
func (m *Metrics) RecordClassification(ctx context.Context, detector string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("detector", detector))

	m.WindowsClassified.Add(ctx, 1, attrs)
	m.ClassificationLatency.Record(ctx, took.Seconds(), attrs)
}

func (m *Metrics) RecordUtterance(ctx context.Context, duration time.Duration) {
	m.UtterancesEmitted.Add(ctx, 1)
	m.UtteranceDuration.Record(ctx, duration.Seconds())
}
