// Package component defines lifecycle and health interfaces for the
// infrastructure buildgraph talks to: artifact cache backends and the
// telemetry exporters.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse order.
package component
