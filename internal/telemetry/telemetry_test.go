package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestMetricsAreExported(t *testing.T) {
	ctx := context.Background()

	tel, err := Setup(ctx, Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	tel.Metrics().PageCaptured(ctx, "H5PPresentation")
	tel.Metrics().PageCaptured(ctx, "H5PPresentation")
	tel.Metrics().RunFinished(ctx, "success", 3*time.Second)

	families, err := tel.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
		if f.GetName() == "lmsdownloader_pages_captured_total" {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("want 2 pages, got %v", got)
			}
		}
	}
	sort.Strings(names)

	want := []string{
		"lmsdownloader_pages_captured_total",
		"lmsdownloader_run_duration_seconds",
		"lmsdownloader_runs_total",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestShutdownPushes(t *testing.T) {
	ctx := context.Background()

	var pushed atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/metrics/job/"+ServiceName) {
			pushed.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tel, err := Setup(ctx, Config{PushgatewayURL: server.URL})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	tel.Metrics().RunFinished(ctx, "failure", time.Second)

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !pushed.Load() {
		t.Error("want metrics pushed to the gateway")
	}
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.PageCaptured(context.Background(), "ScormBook")
	m.RunFinished(context.Background(), "success", time.Second)
}

func TestTracerProvider(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	ctx := context.Background()

	provider, shutdown, err := newTracerProvider(ctx, Config{}, sdkresource.Default())
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}
	if provider != nil {
		t.Error("want no tracer provider without OTLP or profiling")
	}

	provider, shutdown, err = newTracerProvider(ctx, Config{PyroscopeEndpoint: "http://localhost:4040"}, sdkresource.Default())
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}
	if provider == nil {
		t.Fatal("want a tracer provider for profiling alone")
	}
	defer shutdown(ctx)

	if _, ok := provider.(*sdktrace.TracerProvider); ok {
		t.Error("want the provider to be wrapped for profile labels")
	}
	_, span := provider.Tracer("test").Start(ctx, "download")
	defer span.End()
	if sc := span.SpanContext(); !sc.IsValid() || !sc.IsSampled() {
		t.Errorf("want a recorded span to label profiles with, got %v", sc)
	}
}
