package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"fanout/internal/config"
)

const (
	QueueNameKey          = attribute.Key("fanout.queue_name")
	TopicARNKey           = attribute.Key("fanout.topic_arn")
	InitializationTypeKey = attribute.Key("fanout.initialization_type")
)

// Identity names the queue and topic this process is bound to. It is recorded
// on the tracer resource so every span carries it.
type Identity struct {
	ServiceName        string
	QueueName          string
	TopicARN           string
	InitializationType string
}

// IdentityFromConfig fills the identity from the loaded configuration. The
// queue is left empty when the process does not consume.
func IdentityFromConfig(cfg *config.Config, initType string, consumes bool) Identity {
	id := Identity{
		ServiceName:        cfg.Tracing.ServiceName,
		TopicARN:           cfg.Producer.TopicARN,
		InitializationType: initType,
	}
	if id.ServiceName == "" {
		id.ServiceName = cfg.Service.Name
	}
	if consumes {
		id.QueueName = cfg.ResolvedQueueName()
	}
	return id
}

func (id Identity) Attributes() []attribute.KeyValue {
	name := id.ServiceName
	if name == "" {
		name = instrumentationName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.MessagingSystemAWSSqs,
	}
	if id.QueueName != "" {
		attrs = append(attrs, QueueNameKey.String(id.QueueName))
	}
	if id.TopicARN != "" {
		attrs = append(attrs, TopicARNKey.String(id.TopicARN))
	}
	if id.InitializationType != "" {
		attrs = append(attrs, InitializationTypeKey.String(id.InitializationType))
	}
	return attrs
}

func (id Identity) Resource() *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL, id.Attributes()...)
}

type TracerProvider struct {
	tp  *sdktrace.TracerProvider
	res *resource.Resource
}

func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.tp.Tracer(name)
}

// Provider exposes the SDK provider for instrumentation that takes one
// explicitly.
func (tp *TracerProvider) Provider() trace.TracerProvider {
	return tp.tp
}

func (tp *TracerProvider) Resource() *resource.Resource {
	return tp.res
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Init builds the tracer provider. With tracing disabled spans are recorded
// nowhere but still carry the identity, so trace ids keep flowing into logs
// and message attributes.
func Init(cfg config.TracingConfig, id Identity) (*TracerProvider, error) {
	res := id.Resource()

	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		return &TracerProvider{tp: tp, res: res}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint),
	}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.Sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp, res: res}, nil
}

func createSampler(cfg config.SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.Param)
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Param))
	default:
		return sdktrace.AlwaysSample()
	}
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
