package otel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"

	"loyalty-server/internal/infrastructure/config"
)

// InitMeter メーターを初期化
// prometheusエクスポーターの場合は /metrics で公開するハンドラーを返す（それ以外はnil）
func InitMeter(cfg *config.OpenTelemetryConfig, environment string) (func(context.Context) error, http.Handler, error) {
	noopShutdown := func(context.Context) error { return nil }
	if !cfg.Enabled {
		// OpenTelemetryが無効な場合は、Noopメーターを使用
		return noopShutdown, nil, nil
	}

	res, err := newResource(cfg, environment)
	if err != nil {
		return nil, nil, err
	}

	var reader metric.Reader
	var handler http.Handler

	switch cfg.MetricsExporter {
	case "otlp":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(context.Background(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(exporter)
	case "prometheus":
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = exporter
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case "none":
		return noopShutdown, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metrics exporter: %s", cfg.MetricsExporter)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp.Shutdown, handler, nil
}
