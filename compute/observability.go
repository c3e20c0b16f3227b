package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/observability"
)

// WithTracing wraps a Computation so that every Transform runs in a span
// named "{prefix}.{kind}".
func WithTracing(c Computation, prefix string) Computation {
	return &tracingComputation{Computation: c, prefix: prefix}
}

type tracingComputation struct {
	Computation
	prefix string
}

func (c *tracingComputation) Transform(ctx context.Context, key Key, env Environment) (any, error) {
	ctx, span := observability.StartSpan(ctx, c.prefix+"."+string(c.Kind()))
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrKind, string(c.Kind()))
	observability.SetSpanAttribute(ctx, observability.AttrKey, fmt.Sprint(key))
	observability.SetSpanAttribute(ctx, observability.AttrDeps, len(env.Keys()))

	result, err := c.Computation.Transform(ctx, key, env)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return result, err
}

// WithMetrics wraps a Computation with operation count, duration and error
// recording.
func WithMetrics(c Computation, metrics *observability.Metrics) Computation {
	return &metricsComputation{Computation: c, metrics: metrics}
}

type metricsComputation struct {
	Computation
	metrics *observability.Metrics
}

func (c *metricsComputation) Transform(ctx context.Context, key Key, env Environment) (any, error) {
	start := time.Now()
	result, err := c.Computation.Transform(ctx, key, env)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordError(ctx, "transform", string(c.Kind()))
	}
	c.metrics.RecordOperation(ctx, string(c.Kind()), "compute.transform", status, duration)

	return result, err
}

// WithLogging wraps a Computation with transform logging.
func WithLogging(c Computation, log *logger.Logger) Computation {
	return &loggingComputation{Computation: c, log: log}
}

type loggingComputation struct {
	Computation
	log *logger.Logger
}

func (c *loggingComputation) Transform(ctx context.Context, key Key, env Environment) (any, error) {
	start := time.Now()
	result, err := c.Computation.Transform(ctx, key, env)
	duration := time.Since(start)

	fields := map[string]interface{}{
		logger.FieldKind:     string(c.Kind()),
		logger.FieldKey:      fmt.Sprint(key),
		logger.FieldDuration: duration.Milliseconds(),
	}

	if err != nil {
		fields[logger.FieldError] = err.Error()
		c.log.WithContext(ctx).Error("computation failed", fields)
	} else {
		c.log.WithContext(ctx).Debug("computation completed", fields)
	}

	return result, err
}
