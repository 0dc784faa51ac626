package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"reviewhub/pkg/config"
)

// Config конфигурация телеметрии
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Version     string
	Environment string
	SampleRate  float64
}

// FromConfig собирает конфигурацию телеметрии из настроек сервиса
func FromConfig(app config.AppConfig, tracing config.TracingConfig) Config {
	name := tracing.ServiceName
	if name == "" {
		name = app.Name
	}
	return Config{
		Enabled:     tracing.Enabled,
		Endpoint:    tracing.Endpoint,
		ServiceName: name,
		Version:     app.Version,
		Environment: app.Environment,
		SampleRate:  tracing.SampleRate,
	}
}

// Provider обёртка над TracerProvider
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var globalProvider *Provider

// Init инициализирует телеметрию с OTLP/gRPC экспортом
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer: otel.Tracer(cfg.ServiceName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return InitWithExporter(cfg, exporter)
}

// InitWithExporter устанавливает глобальный provider с заданным экспортёром
func InitWithExporter(cfg Config, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	provider := &Provider{
		tp:     tp,
		tracer: tp.Tracer(cfg.ServiceName),
	}

	globalProvider = provider
	return provider, nil
}

// newResource описывает сервис. Schema URL задаёт только детектор SDK,
// атрибуты сервиса и OTEL_RESOURCE_ATTRIBUTES добавляются без схемы.
func newResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.New(context.Background(),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}
	return res, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown сбрасывает буфер экспортёра и завершает работу
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// ForceFlush выгружает накопленные span'ы
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.ForceFlush(ctx)
	}
	return nil
}

// Tracer возвращает tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Get возвращает глобальный provider
func Get() *Provider {
	if globalProvider == nil {
		return &Provider{
			tracer: otel.Tracer("reviewhub"),
		}
	}
	return globalProvider
}

// StartSpan начинает новый span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Get().tracer.Start(ctx, name, opts...)
}

// SpanFromContext получает span из контекста
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent добавляет событие в текущий span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetError помечает span как ошибочный
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordError записывает некритичную ошибку без изменения статуса span
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).RecordError(err, opts...)
}

// SetAttributes устанавливает атрибуты span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// WithAttributes создаёт SpanStartOption с атрибутами
func WithAttributes(attrs ...attribute.KeyValue) trace.SpanStartOption {
	return trace.WithAttributes(attrs...)
}
