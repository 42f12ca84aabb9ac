// Package telemetry wires OpenTelemetry for fpw.
//
// Two signals are produced. Metrics (store operations, authorization
// outcomes) go to a collector over OTLP/HTTP and optionally to stdout.
// Traces (one span per store call and per FAS submission) are a debugging
// aid and are only exported to stdout.
//
// Everything is off unless telemetry.enabled is set; disabled, Init installs
// no-op providers and WrapStorage returns the store untouched.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/fpw-project/fpw"

// DefaultMetricsInterval is how often metrics are pushed to the collector.
const DefaultMetricsInterval = 30 * time.Second

// Options selects what Init installs.
type Options struct {
	ServiceName string
	Version     string

	Enabled bool
	// Stdout prints spans and metrics to stdout.
	Stdout bool
	// MetricsEndpoint is an OTLP/HTTP collector, host:port or a URL. When
	// empty, OTEL_EXPORTER_OTLP_METRICS_ENDPOINT and
	// OTEL_EXPORTER_OTLP_ENDPOINT are consulted.
	MetricsEndpoint string
	MetricsInterval time.Duration
}

func (o Options) metricsEndpoint() string {
	return firstNonEmpty(
		o.MetricsEndpoint,
		os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	)
}

var (
	mu        sync.Mutex
	enabled   bool
	shutdowns []func(context.Context) error
)

// Enabled reports whether the last Init turned telemetry on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Init installs the global tracer and meter providers described by opts.
func Init(ctx context.Context, opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if !opts.Enabled {
		enabled = false
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), opts.ServiceName)),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	mp, err := newMeterProvider(ctx, res, opts)
	if err != nil {
		return fmt.Errorf("telemetry: metrics: %w", err)
	}
	tp, err := newTracerProvider(res, opts)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return fmt.Errorf("telemetry: traces: %w", err)
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown, mp.Shutdown)
	enabled = true
	return nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, opts Options) (*sdkmetric.MeterProvider, error) {
	interval := opts.MetricsInterval
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if endpoint := opts.metricsEndpoint(); endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter for %s: %w", endpoint, err)
		}
		mopts = append(mopts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}
	if opts.Stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		mopts = append(mopts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}
	return sdkmetric.NewMeterProvider(mopts...), nil
}

// Without Stdout spans are still created (so span contexts propagate) but
// never exported.
func newTracerProvider(res *resource.Resource, opts Options) (*sdktrace.TracerProvider, error) {
	topts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		topts = append(topts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(topts...), nil
}

// Tracer returns a tracer for name, defaulting to the module scope.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(firstNonEmpty(name, instrumentationScope))
}

// Meter returns a meter for name, defaulting to the module scope.
func Meter(name string) metric.Meter {
	return otel.Meter(firstNonEmpty(name, instrumentationScope))
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdowns
	shutdowns = nil
	enabled = false
	mu.Unlock()

	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
