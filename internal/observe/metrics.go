// Package observe provides OpenTelemetry metrics and tracing for the relay
// daemon. Metrics are exported through a Prometheus bridge so they can be
// scraped from the optional /metrics listener.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/parley"

// Metrics holds the instruments recorded by the session, pipeline and
// delivery workers. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// StageDuration tracks engine latency per pipeline stage. Attribute: stage.
	StageDuration metric.Float64Histogram

	// RecordingDuration tracks how long the key was held per session.
	RecordingDuration metric.Float64Histogram

	// PipelineOutcomes counts finished pipeline runs. Attribute: status.
	PipelineOutcomes metric.Int64Counter

	// DeliveryChunks counts synthesized chunks. Attribute: result (delivered|dropped|failed).
	DeliveryChunks metric.Int64Counter

	// MuteActions counts mute control calls. Attribute: action (mute|unmute|skip).
	MuteActions metric.Int64Counter
}

// latencyBuckets are tuned for local inference and cloud round trips.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

var recordingBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("parley.stage.duration",
		metric.WithDescription("Latency of one pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("parley.recording.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineOutcomes, err = m.Int64Counter("parley.pipeline.outcomes",
		metric.WithDescription("Finished pipeline runs by status."),
	); err != nil {
		return nil, err
	}
	if met.DeliveryChunks, err = m.Int64Counter("parley.delivery.chunks",
		metric.WithDescription("Synthesized audio chunks by delivery result."),
	); err != nil {
		return nil, err
	}
	if met.MuteActions, err = m.Int64Counter("parley.mute.actions",
		metric.WithDescription("Upstream source mute control calls."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordStage records the latency of one stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordRecording records the captured utterance length.
func (m *Metrics) RecordRecording(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Record(ctx, d.Seconds())
}

// RecordOutcome counts one finished pipeline run.
func (m *Metrics) RecordOutcome(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordChunk counts one synthesized chunk.
func (m *Metrics) RecordChunk(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.DeliveryChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordMute counts one mute control decision.
func (m *Metrics) RecordMute(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.MuteActions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
