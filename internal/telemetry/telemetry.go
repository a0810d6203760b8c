// Package telemetry configura o tracing OpenTelemetry do gateway.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const DefaultServiceName = "risk-gateway"

type Options struct {
	ServiceName string
	// Endpoint aceita a URL base do coletor (http://collector:4318, como em
	// OTEL_EXPORTER_OTLP_ENDPOINT) ou host:port. Vazio: spans são gerados
	// (trace id no audit) mas não exportados.
	Endpoint string
	// Insecure só vale para host:port; numa URL o esquema decide.
	Insecure bool
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Init registra o TracerProvider global e devolve o shutdown.
// Endpoint malformado é erro; falha ao criar o exporter não impede a subida
// e o gateway segue sem exportar.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = DefaultServiceName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", name),
	))
	if err != nil {
		res = resource.Default()
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}

	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		expOpts, err := exporterOptions(endpoint, opts.Insecure)
		if err != nil {
			return nil, err
		}
		expOpts = append(expOpts, otlptracehttp.WithTimeout(opts.Timeout))
		exporter, err := otlptracehttp.New(ctx, expOpts...)
		if err != nil {
			opts.Logger.Warn("otel exporter disabled", "error", err)
		} else {
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		}
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

const tracesPath = "/v1/traces"

// exporterOptions traduz o endpoint configurado. Numa URL base o caminho do
// sinal é acrescentado, como manda a convenção da variável genérica.
func exporterOptions(endpoint string, insecure bool) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return opts, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("otlp endpoint %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("otlp endpoint %q: expected http(s)://host:port", endpoint)
	}
	if !strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), tracesPath) {
		u = u.JoinPath(tracesPath)
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u.String())}, nil
}

// HTTPMiddleware abre um span por requisição recebida.
func HTTPMiddleware(operation string) func(http.Handler) http.Handler {
	if strings.TrimSpace(operation) == "" {
		operation = DefaultServiceName
	}
	return otelhttp.NewMiddleware(operation)
}

// Transport propaga o contexto de trace para o upstream.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}
