package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"

	"github.com/kbukum/buildgraph/component"
	"github.com/kbukum/buildgraph/logger"
)

// Telemetry owns the tracer and meter providers of one process and the
// Metrics recorded into them. It is a component.Component so that the CLI
// can stop it together with the cache backends.
type Telemetry struct {
	cfg     Config
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	metrics *Metrics
	log     *logger.Logger

	mu      sync.Mutex
	stopped bool
}

var _ component.Component = (*Telemetry)(nil)

// Setup initializes tracing and metrics from cfg. With cfg.Enabled false no
// exporter is created and Metrics records into a no-op meter.
func Setup(ctx context.Context, cfg Config, log *logger.Logger) (*Telemetry, error) {
	cfg.ApplyDefaults()
	log = logger.OrGlobal(log).WithComponent("telemetry")
	t := &Telemetry{cfg: cfg, log: log}

	var meter metric.Meter = noop.NewMeterProvider().Meter(defaultTracerName)
	if cfg.Enabled {
		tp, err := InitTracer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		mp, err := InitMeter(ctx, cfg)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		t.tp, t.mp = tp, mp
		meter = mp.Meter(defaultTracerName)
		log.Info("telemetry initialized", logger.Fields(
			"endpoint", cfg.Endpoint,
			"sample_rate", cfg.SampleRate,
			"interval", cfg.ExportInterval.String(),
		))
	}

	metrics, err := NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	t.metrics = metrics
	return t, nil
}

// Metrics returns the instruments to record into.
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// Enabled reports whether exporters are running.
func (t *Telemetry) Enabled() bool { return t.cfg.Enabled }

// Shutdown flushes and stops both providers. Safe to call more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true

	var errs error
	if t.tp != nil {
		errs = multierr.Append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = multierr.Append(errs, t.mp.Shutdown(ctx))
	}
	return errs
}

func (t *Telemetry) Name() string                  { return "telemetry" }
func (t *Telemetry) Start(_ context.Context) error { return nil }
func (t *Telemetry) Stop(ctx context.Context) error {
	return t.Shutdown(ctx)
}

func (t *Telemetry) Health(_ context.Context) component.Health {
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	if !t.cfg.Enabled {
		h.Message = "disabled"
	}
	return h
}
