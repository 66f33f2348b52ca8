// Package telemetry installs the OpenTelemetry tracer provider that the
// chat engine reports its spans to, exporting them over OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mimir/internal/core"
	"github.com/flemzord/mimir/internal/security"
)

// ServiceName is the name the tracer provider is published under.
const ServiceName = "telemetry.tracer_provider"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the telemetry.otel module configuration.
type Config struct {
	// Endpoint is the OTLP/HTTP collector, as host:port or a full URL.
	// Tracing stays disabled when empty.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for host:port endpoints.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// ServiceName is reported as service.name. Defaults to "mimir".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces kept. Defaults to 1.
	SampleRatio *float64 `yaml:"sample_ratio"`
}

func (c *Config) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "mimir"
	}
	if c.SampleRatio == nil {
		r := 1.0
		c.SampleRatio = &r
	}
}

func (c *Config) validate() error {
	var errs []error
	if r := *c.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample_ratio must be within [0, 1], got %g", r))
	}
	if strings.ContainsAny(c.Endpoint, " \t") {
		errs = append(errs, fmt.Errorf("telemetry: invalid endpoint %q", c.Endpoint))
	}
	return errors.Join(errs...)
}

// Module configures the global tracer provider.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otel",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. It runs before the chat engine is
// provisioned, so the engine's tracer comes from the installed provider.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if r, ok := core.Lookup[*security.Redactor](ctx, security.RedactorService); ok {
		for _, v := range m.config.Headers {
			r.AddLiteral(v)
		}
	}

	if m.config.Endpoint == "" {
		m.logger.Info("tracing disabled, no OTLP endpoint configured")
		return nil
	}

	exporter, err := otlptracehttp.New(context.Background(), m.exporterOptions()...)
	if err != nil {
		return fmt.Errorf("telemetry: create exporter: %w", err)
	}

	m.provider = NewTracerProvider(m.config, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	ctx.RegisterService(ServiceName, m.provider)

	m.logger.Info("tracing enabled",
		"endpoint", m.config.Endpoint,
		"service_name", m.config.ServiceName,
		"sample_ratio", *m.config.SampleRatio,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

// Provider returns the installed provider, or nil when tracing is disabled.
func (m *Module) Provider() *sdktrace.TracerProvider {
	return m.provider
}

func (m *Module) exporterOptions() []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	if strings.Contains(m.config.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(m.config.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(m.config.Endpoint))
		if m.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}
	if len(m.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
	}
	return opts
}

// NewTracerProvider builds a provider for cfg with the given extra options
// (exporters or span processors).
func NewTracerProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	cfg.defaults()
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*cfg.SampleRatio))),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}
