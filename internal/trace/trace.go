package trace

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

const otlpTracesPath = "/otel/v1/traces"

type zapErrorHandler struct {
	logger *zap.Logger
}

func (h zapErrorHandler) Handle(err error) {
	h.logger.Warn("otel error", zap.Error(err))
}

// Init installs a global tracer provider exporting OTLP/HTTP to the LangChain
// endpoint. It returns a no-op shutdown when tracing is disabled.
func Init(ctx context.Context, cfg utils.LangChainConfig, serviceName, version string, logger *zap.Logger) (func(context.Context) error, error) {
	if !cfg.TracingV2 || strings.TrimSpace(cfg.Endpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	otel.SetErrorHandler(zapErrorHandler{logger: logger})

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}
	if cfg.Project != "" {
		headers["Langsmith-Project"] = cfg.Project
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(ExporterURL(cfg.Endpoint)),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithHTTPClient(&http.Client{Transport: http.DefaultTransport}),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("tracing enabled", zap.String("endpoint", ExporterURL(cfg.Endpoint)), zap.String("project", cfg.Project))
	return tp.Shutdown, nil
}

// ExporterURL appends the OTLP traces path unless the endpoint already
// names one.
func ExporterURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasSuffix(endpoint, "/v1/traces") {
		return endpoint
	}
	return endpoint + otlpTracesPath
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(name)
}
