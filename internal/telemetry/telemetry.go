package telemetry

import (
	"context"
	"errors"
	"os"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"
)

const ServiceName = "lmsdownloader"

type Config struct {
	// PushgatewayURL receives the run metrics on Shutdown when set.
	PushgatewayURL string
	// PyroscopeEndpoint enables continuous profiling of the run when set.
	PyroscopeEndpoint string
}

// Telemetry owns the process-wide tracer provider, the metric registry and
// the optional profiler of one CLI invocation.
type Telemetry struct {
	config   Config
	registry *prometheus.Registry
	metrics  *Metrics

	shutdowns []func(context.Context) error
}

func otlpConfigured() bool {
	for _, key := range []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return true
		}
	}
	return false
}

// newTracerProvider returns nil when neither an OTLP endpoint nor a profiler
// is configured. With a profiler alone spans are recorded but not exported,
// so that profiles can still be labelled with them.
func newTracerProvider(ctx context.Context, config Config, r *sdkresource.Resource) (trace.TracerProvider, func(context.Context) error, error) {
	exported := otlpConfigured()
	if !exported && config.PyroscopeEndpoint == "" {
		return nil, nil, nil
	}

	options := []sdktrace.TracerProviderOption{sdktrace.WithResource(r)}
	if exported {
		traceExporter, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to create trace exporter: %w", err)
		}
		options = append(options, sdktrace.WithBatcher(traceExporter))
	}
	traceProvider := sdktrace.NewTracerProvider(options...)

	if config.PyroscopeEndpoint == "" {
		return traceProvider, traceProvider.Shutdown, nil
	}
	return otelpyroscope.NewTracerProvider(traceProvider), traceProvider.Shutdown, nil
}

func Setup(ctx context.Context, config Config) (*Telemetry, error) {
	t := &Telemetry{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(ServiceName)),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create resource: %w", err)
	}

	traceProvider, shutdown, err := newTracerProvider(ctx, config, r)
	if err != nil {
		return nil, err
	}
	if traceProvider != nil {
		otel.SetTracerProvider(traceProvider)
		t.shutdowns = append(t.shutdowns, shutdown)
	}

	if config.PyroscopeEndpoint != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: ServiceName,
			ServerAddress:   config.PyroscopeEndpoint,
			UploadRate:      15 * time.Second,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to create profiler: %w", err)
		}
		t.shutdowns = append(t.shutdowns, func(context.Context) error {
			return profiler.Stop()
		})
	}

	exporter, err := otelprometheus.New(
		otelprometheus.WithRegisterer(t.registry),
		otelprometheus.WithoutScopeInfo(),
		otelprometheus.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(r), sdkmetric.WithReader(exporter))
	t.shutdowns = append(t.shutdowns, meterProvider.Shutdown)

	t.metrics, err = NewMetrics(meterProvider.Meter(ServiceName))
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

func (t *Telemetry) Gatherer() prometheus.Gatherer {
	return t.registry
}

// Shutdown pushes the collected metrics and flushes every exporter. It keeps
// going after a failure and reports all of them.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.config.PushgatewayURL != "" {
		if err := push.New(t.config.PushgatewayURL, ServiceName).Gatherer(t.registry).PushContext(ctx); err != nil {
			errs = append(errs, xerrors.Errorf("failed to push metrics: %w", err))
		}
	}

	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
