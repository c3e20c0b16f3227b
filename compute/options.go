package compute

import (
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/observability"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	store       Store
	log         *logger.Logger
	parallelism int
	metrics     *observability.Metrics
	tracePrefix string
}

// WithStore sets the result store. Defaults to a fresh MemoryStore.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the engine logger. Defaults to the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithParallelism bounds how many computation callbacks run at once.
// Values <= 0 leave callbacks unbounded.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithOperationMetrics records every transform on m.
func WithOperationMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSpanPrefix wraps every transform in a span named "{prefix}.{kind}".
func WithSpanPrefix(prefix string) Option {
	return func(o *options) { o.tracePrefix = prefix }
}
