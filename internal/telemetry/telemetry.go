// Package telemetry holds the OpenTelemetry tracer and metric instruments
// used by the scanner and the remediation engine. Instruments are created
// once in New and reused for every invocation. With no providers installed
// by the host, the global no-op providers make every call free.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

const instrumentationName = "github.com/pankaj-dahiya-devops/sgguard"

// Span names.
const (
	SpanScan      = "sgguard.scan"
	SpanRemediate = "sgguard.remediate"
	SpanRevoke    = "sgguard.revoke"
)

// Options selects the providers to draw instruments from. Nil fields fall
// back to the globally registered providers.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Telemetry bundles the tracer and counters shared by both stages.
type Telemetry struct {
	tracer trace.Tracer

	// findingsCounter counts findings emitted by the scanner.
	findingsCounter metric.Int64Counter

	// resultsCounter counts remediation results, labelled by action.
	resultsCounter metric.Int64Counter
}

// New creates the tracer and all metric instruments.
func New(opts Options) (*Telemetry, error) {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.findingsCounter, err = meter.Int64Counter(
		"sgguard.findings.detected",
		metric.WithDescription("World-open ingress findings emitted by the scanner"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create findings counter: %w", err)
	}

	t.resultsCounter, err = meter.Int64Counter(
		"sgguard.remediation.results",
		metric.WithDescription("Remediation results by action"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create results counter: %w", err)
	}

	return t, nil
}

// Noop returns a Telemetry that records nothing.
func Noop() *Telemetry {
	t, _ := New(Options{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	return t
}

// Start opens a span named name carrying attrs.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End closes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// FindingsDetected adds n to the findings counter.
func (t *Telemetry) FindingsDetected(ctx context.Context, n int, accountID, region string) {
	t.findingsCounter.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("account", accountID),
		attribute.String("region", region),
	))
}

// RemediationResult counts one remediation result.
func (t *Telemetry) RemediationResult(ctx context.Context, r models.RemediationResult) {
	t.resultsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(r.Action)),
		attribute.Bool("already_remediated", r.AlreadyRemediated),
	))
}
