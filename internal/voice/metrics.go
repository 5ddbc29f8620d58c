package voice

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics counts the observable outcomes of the voice pipeline.
// Instruments come from the global meter provider, so with no SDK installed
// every call is a no-op.
type pipelineMetrics struct {
	sessionsStarted  metric.Int64Counter
	commandsParsed   metric.Int64Counter
	transcriptFailed metric.Int64Counter
	utteranceSeconds metric.Float64Histogram
}

func newPipelineMetrics(log *slog.Logger) *pipelineMetrics {
	meter := otel.Meter("github.com/ledgervoice/ledgervoice-core/voice")
	m := &pipelineMetrics{}
	var err error

	if m.sessionsStarted, err = meter.Int64Counter("ledgervoice.sessions.started",
		metric.WithDescription("Capture sessions started")); err != nil {
		log.Warn("metric init failed", slog.String("error", err.Error()))
	}
	if m.commandsParsed, err = meter.Int64Counter("ledgervoice.commands.parsed",
		metric.WithDescription("Commands produced by the interpreter")); err != nil {
		log.Warn("metric init failed", slog.String("error", err.Error()))
	}
	if m.transcriptFailed, err = meter.Int64Counter("ledgervoice.transcriptions.failed",
		metric.WithDescription("Utterances that produced no usable transcript")); err != nil {
		log.Warn("metric init failed", slog.String("error", err.Error()))
	}
	if m.utteranceSeconds, err = meter.Float64Histogram("ledgervoice.utterance.seconds",
		metric.WithDescription("Captured utterance duration")); err != nil {
		log.Warn("metric init failed", slog.String("error", err.Error()))
	}
	return m
}

func (m *pipelineMetrics) sessionStarted(ctx context.Context) {
	if m.sessionsStarted != nil {
		m.sessionsStarted.Add(ctx, 1)
	}
}

func (m *pipelineMetrics) commandParsed(ctx context.Context, intent string, confirmed bool) {
	if m.commandsParsed != nil {
		m.commandsParsed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.Bool("requires_confirmation", confirmed),
		))
	}
}

func (m *pipelineMetrics) transcriptionFailed(ctx context.Context) {
	if m.transcriptFailed != nil {
		m.transcriptFailed.Add(ctx, 1)
	}
}

func (m *pipelineMetrics) utteranceDuration(ctx context.Context, seconds float64) {
	if m.utteranceSeconds != nil {
		m.utteranceSeconds.Record(ctx, seconds)
	}
}
